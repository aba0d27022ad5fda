package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/moznion/go-optional"

	"github.com/mohamedkhairy/signal-engine/internal/config"
	"github.com/mohamedkhairy/signal-engine/internal/models"
	"github.com/mohamedkhairy/signal-engine/pkg/logger"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS trading_signals (
	id            VARCHAR PRIMARY KEY,
	symbol        TEXT NOT NULL,
	side          TEXT NOT NULL,
	entry         DOUBLE PRECISION NOT NULL,
	take_profit   DOUBLE PRECISION NOT NULL,
	stop_loss     DOUBLE PRECISION NOT NULL,
	trail_stop    DOUBLE PRECISION NOT NULL,
	liquidation   DOUBLE PRECISION NOT NULL,
	quantity      DOUBLE PRECISION NOT NULL,
	margin_usdt   DOUBLE PRECISION NOT NULL,
	trend         TEXT NOT NULL,
	bb_direction  TEXT NOT NULL,
	score         DOUBLE PRECISION NOT NULL,
	status        TEXT NOT NULL DEFAULT 'active',
	pnl           DOUBLE PRECISION,
	created_at    TIMESTAMPTZ NOT NULL,
	closed_at     TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_trading_signals_symbol_created
	ON trading_signals (symbol, created_at DESC);

CREATE TABLE IF NOT EXISTS technical_indicators (
	symbol     TEXT NOT NULL,
	timeframe  TEXT NOT NULL,
	timestamp  TIMESTAMPTZ NOT NULL,
	price      DOUBLE PRECISION NOT NULL,
	ema9       DOUBLE PRECISION,
	ema21      DOUBLE PRECISION,
	sma20      DOUBLE PRECISION,
	rsi        DOUBLE PRECISION,
	macd       DOUBLE PRECISION,
	bb_upper   DOUBLE PRECISION,
	bb_middle  DOUBLE PRECISION,
	bb_lower   DOUBLE PRECISION,
	atr        DOUBLE PRECISION,
	volume     DOUBLE PRECISION,
	PRIMARY KEY (symbol, timeframe, timestamp)
);
`

// PostgresArchive implements ArchiveWriter on PostgreSQL
type PostgresArchive struct {
	db *sql.DB
}

// NewPostgresArchive connects, verifies the connection and ensures the schema
func NewPostgresArchive(dbConfig config.DatabaseConfig) (*PostgresArchive, error) {
	connStr := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		dbConfig.Host,
		dbConfig.Port,
		dbConfig.User,
		dbConfig.Password,
		dbConfig.Database,
		dbConfig.SSLMode,
	)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	db.SetMaxOpenConns(dbConfig.MaxConnections)
	db.SetMaxIdleConns(dbConfig.MaxIdleConns)
	db.SetConnMaxLifetime(dbConfig.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	archive := &PostgresArchive{db: db}
	if err := archive.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("Connected to PostgreSQL archive",
		logger.String("host", dbConfig.Host),
		logger.Int("port", dbConfig.Port),
		logger.String("database", dbConfig.Database),
	)

	return archive, nil
}

// EnsureSchema creates the archive tables if they do not exist
func (p *PostgresArchive) EnsureSchema(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to create archive schema: %w", err)
	}
	return nil
}

var psql = squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)

var signalColumns = []string{
	"id", "symbol", "side", "entry", "take_profit", "stop_loss", "trail_stop",
	"liquidation", "quantity", "margin_usdt", "trend", "bb_direction", "score",
	"status", "pnl", "created_at", "closed_at",
}

var snapshotColumns = []string{
	"symbol", "timeframe", "timestamp", "price", "ema9", "ema21", "sma20", "rsi",
	"macd", "bb_upper", "bb_middle", "bb_lower", "atr", "volume",
}

// signalUpsert builds one multi-row upsert. A conflicting id only updates
// the fields that change when a signal closes.
func signalUpsert(signals []models.TradingSignal) squirrel.InsertBuilder {
	q := psql.Insert("trading_signals").Columns(signalColumns...)
	for i := range signals {
		s := &signals[i]
		q = q.Values(
			s.ID,
			s.Symbol,
			string(s.Side),
			s.Entry,
			s.TakeProfit,
			s.StopLoss,
			s.TrailStop,
			s.Liquidation,
			s.Quantity,
			s.MarginAmount,
			string(s.Trend),
			string(s.BBDirection),
			s.Score,
			string(s.Status),
			nullable(s.PnL),
			s.CreatedAt,
			nullable(s.ClosedAt),
		)
	}
	return q.Suffix("ON CONFLICT (id) DO UPDATE SET status = EXCLUDED.status, pnl = EXCLUDED.pnl, closed_at = EXCLUDED.closed_at")
}

func snapshotInsert(snapshots []models.IndicatorSnapshot) squirrel.InsertBuilder {
	q := psql.Insert("technical_indicators").Columns(snapshotColumns...)
	for i := range snapshots {
		s := &snapshots[i]
		q = q.Values(
			s.Symbol,
			string(s.Timeframe),
			s.Timestamp,
			s.Price,
			nullable(s.EMA9),
			nullable(s.EMA21),
			nullable(s.SMA20),
			nullable(s.RSI),
			nullable(s.MACD),
			nullable(s.BBUpper),
			nullable(s.BBMiddle),
			nullable(s.BBLower),
			nullable(s.ATR),
			s.Volume,
		)
	}
	return q.Suffix("ON CONFLICT (symbol, timeframe, timestamp) DO NOTHING")
}

// WriteSignals upserts signals by id so a closed signal overwrites its
// earlier active row
func (p *PostgresArchive) WriteSignals(ctx context.Context, signals []models.TradingSignal) error {
	if len(signals) == 0 {
		return nil
	}
	// Postgres rejects an upsert that touches the same id twice, keep the last state
	return p.execInTx(ctx, "signals", signalUpsert(latestByID(signals)))
}

// WriteSnapshots inserts snapshots, ignoring ones already archived
func (p *PostgresArchive) WriteSnapshots(ctx context.Context, snapshots []models.IndicatorSnapshot) error {
	if len(snapshots) == 0 {
		return nil
	}
	return p.execInTx(ctx, "snapshots", snapshotInsert(snapshots))
}

func (p *PostgresArchive) execInTx(ctx context.Context, kind string, q squirrel.InsertBuilder) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := q.RunWith(tx).ExecContext(ctx); err != nil {
		return fmt.Errorf("failed to write %s: %w", kind, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func latestByID(signals []models.TradingSignal) []models.TradingSignal {
	index := make(map[string]int, len(signals))
	out := make([]models.TradingSignal, 0, len(signals))
	for _, s := range signals {
		if i, ok := index[s.ID]; ok {
			out[i] = s
			continue
		}
		index[s.ID] = len(out)
		out = append(out, s)
	}
	return out
}

// Close closes the database connection
func (p *PostgresArchive) Close() error {
	return p.db.Close()
}

// nullable maps None to SQL NULL
func nullable[T any](o optional.Option[T]) any {
	v, err := o.Take()
	if err != nil {
		return nil
	}
	return v
}
