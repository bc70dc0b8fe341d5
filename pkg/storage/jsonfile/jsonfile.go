// Package jsonfile stores the turn log as a single pretty-printed JSON array.
//
// Every Append rewrites the whole file. Reads and read-modify-write cycles are
// serialized by a mutex, and the file is replaced by rename so readers never
// observe a partially written array.
package jsonfile

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/papercomputeco/callflow/pkg/llm"
	"github.com/papercomputeco/callflow/pkg/storage"
)

// Driver implements storage.Driver on top of one JSON file.
type Driver struct {
	path         string
	historyLimit int
	logger       *zap.Logger

	mu sync.Mutex
}

var _ storage.Driver = (*Driver)(nil)

// Option configures a Driver.
type Option func(*Driver)

// WithHistoryLimit sets how many recent turns HistoryFor filters.
func WithHistoryLimit(n int) Option {
	return func(d *Driver) {
		if n > 0 {
			d.historyLimit = n
		}
	}
}

// NewDriver returns a driver backed by the file at path. The file is created
// lazily on first Load.
func NewDriver(path string, logger *zap.Logger, opts ...Option) (*Driver, error) {
	if path == "" {
		return nil, fmt.Errorf("turn log path is required")
	}

	d := &Driver{
		path:         path,
		historyLimit: storage.DefaultLimit,
		logger:       logger.With(zap.String("store", path)),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Path returns the backing file path.
func (d *Driver) Path() string {
	return d.path
}

// Load implements storage.Driver.
func (d *Driver) Load(_ context.Context, limit int) []llm.Turn {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.load(limit)
}

// Append implements storage.Driver.
func (d *Driver) Append(_ context.Context, turn llm.Turn) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	turns := d.load(storage.Unbounded)

	if turn.Timestamp == "" {
		turn.Timestamp = llm.Timestamp(time.Now())
	}
	turns = append(turns, turn)

	if err := d.write(turns); err != nil {
		d.logger.Error("failed to save turn", zap.Error(err))
		return false
	}

	d.logger.Info("saved turn",
		zap.String("call_id", turn.CallIDString()),
		zap.Int("total", len(turns)),
	)
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

// Close implements storage.Driver. The file is not held open between calls.
func (d *Driver) Close() error {
	return nil
}

// load reads, sorts and truncates the log. The caller holds d.mu.
func (d *Driver) load(limit int) []llm.Turn {
	data, err := os.ReadFile(d.path)
	if errors.Is(err, os.ErrNotExist) {
		d.logger.Info("creating new turn log")
		if err := d.write([]llm.Turn{}); err != nil {
			d.logger.Error("failed to create turn log", zap.Error(err))
		}
		return []llm.Turn{}
	}
	if err != nil {
		d.logger.Error("failed to read turn log", zap.Error(err))
		return []llm.Turn{}
	}

	var turns []llm.Turn
	if err := json.Unmarshal(data, &turns); err != nil {
		d.logger.Error("failed to decode turn log", zap.Error(err))
		return []llm.Turn{}
	}
	if turns == nil {
		turns = []llm.Turn{}
	}

	// Fixed-width ISO-8601 text sorts chronologically; a missing timestamp
	// is "" and sorts first.
	sort.SliceStable(turns, func(i, j int) bool {
		return turns[i].Timestamp < turns[j].Timestamp
	})

	recent := storage.Recent(turns, limit)
	d.logger.Debug("loaded turns",
		zap.Int("count", len(recent)),
		zap.Int("total", len(turns)),
	)
	return recent
}

// write replaces the backing file with turns. The caller holds d.mu.
func (d *Driver) write(turns []llm.Turn) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(turns); err != nil {
		return fmt.Errorf("encode turns: %w", err)
	}

	dir := filepath.Dir(d.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(d.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmpName, d.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace turn log: %w", err)
	}
	return nil
}
