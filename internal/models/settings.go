package models

// UserSettings holds the account parameters used for position sizing and
// the dashboard preferences stored alongside them.
type UserSettings struct {
	RiskPercent    float64 `json:"riskPercent" validate:"gt=0,lte=100"`
	Leverage       float64 `json:"leverage" validate:"gte=1,lte=125"`
	AccountBalance float64 `json:"accountBalance" validate:"gt=0"`
	Theme          string  `json:"theme" validate:"oneof=dark light"`
}

// DefaultUserSettings returns the settings a fresh install starts with
func DefaultUserSettings() UserSettings {
	return UserSettings{
		RiskPercent:    1.5,
		Leverage:       20,
		AccountBalance: 100,
		Theme:          "dark",
	}
}
