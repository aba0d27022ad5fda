// Package indicator implements the technical indicators used by the signal
// engine as pure functions over oldest-to-newest float64 slices.
//
// Every function fails soft: when the input is shorter than the indicator's
// window it returns optional.None instead of an error or a zero value, so the
// caller decides what "not enough history" means.
package indicator
