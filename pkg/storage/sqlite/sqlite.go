// Package sqlite stores the turn log in a SQLite database. Appends are single
// INSERT statements, so concurrent writers never lose each other's turns.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/papercomputeco/callflow/pkg/llm"
	"github.com/papercomputeco/callflow/pkg/storage"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS turns (
	id        INTEGER PRIMARY KEY AUTOINCREMENT,
	call_id   TEXT,
	request   TEXT NOT NULL,
	response  TEXT NOT NULL,
	timestamp TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_turns_timestamp ON turns(timestamp, id);
`

// Driver implements storage.Driver on SQLite.
type Driver struct {
	db           *sql.DB
	historyLimit int
	logger       *zap.Logger
}

var _ storage.Driver = (*Driver)(nil)

// NewDriver opens (and if needed creates) the database at dbPath.
// Use ":memory:" for an in-memory database.
func NewDriver(ctx context.Context, dbPath string, historyLimit int, logger *zap.Logger) (*Driver, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Each connection to ":memory:" is its own database.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	if historyLimit <= 0 {
		historyLimit = storage.DefaultLimit
	}

	return &Driver{
		db:           db,
		historyLimit: historyLimit,
		logger:       logger.With(zap.String("store", dbPath)),
	}, nil
}

// Load implements storage.Driver.
func (d *Driver) Load(ctx context.Context, limit int) []llm.Turn {
	query := `SELECT call_id, request, response, timestamp FROM turns ORDER BY timestamp ASC, id ASC`
	args := []any{}
	if limit > 0 {
		query = `SELECT call_id, request, response, timestamp FROM (
			SELECT id, call_id, request, response, timestamp FROM turns
			ORDER BY timestamp DESC, id DESC LIMIT ?
		) ORDER BY timestamp ASC, id ASC`
		args = append(args, limit)
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		d.logger.Error("failed to query turns", zap.Error(err))
		return []llm.Turn{}
	}
	defer rows.Close()

	turns := []llm.Turn{}
	for rows.Next() {
		var (
			t      llm.Turn
			callID sql.NullString
		)
		if err := rows.Scan(&callID, &t.Request, &t.Response, &t.Timestamp); err != nil {
			d.logger.Error("failed to scan turn", zap.Error(err))
			return []llm.Turn{}
		}
		if callID.Valid {
			id := callID.String
			t.CallID = &id
		}
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		d.logger.Error("failed to read turns", zap.Error(err))
		return []llm.Turn{}
	}

	d.logger.Debug("loaded turns", zap.Int("count", len(turns)))
	return turns
}

// Append implements storage.Driver.
func (d *Driver) Append(ctx context.Context, turn llm.Turn) bool {
	if turn.Timestamp == "" {
		turn.Timestamp = llm.Timestamp(time.Now())
	}

	var callID sql.NullString
	if turn.CallID != nil {
		callID = sql.NullString{String: *turn.CallID, Valid: true}
	}

	_, err := d.db.ExecContext(ctx,
		`INSERT INTO turns (call_id, request, response, timestamp) VALUES (?, ?, ?, ?)`,
		callID, turn.Request, turn.Response, turn.Timestamp,
	)
	if err != nil {
		d.logger.Error("failed to save turn", zap.Error(err))
		return false
	}

	d.logger.Info("saved turn", zap.String("call_id", turn.CallIDString()))
	return true
}

// HistoryFor implements storage.Driver.
func (d *Driver) HistoryFor(ctx context.Context, callID string) []llm.Turn {
	turns := storage.FilterCall(d.Load(ctx, d.historyLimit), callID)

	d.logger.Info("found call history",
		zap.String("call_id", callID),
		zap.Int("count", len(turns)),
	)
	return turns
}

// Close implements storage.Driver.
func (d *Driver) Close() error {
	return d.db.Close()
}
