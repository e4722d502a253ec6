// Package pointstore implements the append-only time-series sink the bot
// persists to. Rows are points tagged with a measurement name, written in
// batches and queried by "last point of measurement". Prior rows are never
// mutated or deleted.
package pointstore

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/gowal"

	"github.com/mitsutoshi/yajirobe/internal/domain"
)

const (
	defaultDir       = "./wal/points"
	segmentThreshold = 1000
	maxSegments      = 100
)

// Point is one row of a measurement: a timestamp, a tag set and a field set.
type Point struct {
	Measurement string                     `json:"measurement"`
	Time        time.Time                  `json:"time"`
	Tags        map[string]string          `json:"tags,omitempty"`
	Fields      map[string]decimal.Decimal `json:"fields"`
}

// Field reads a named field, returning zero when absent.
func (p Point) Field(name string) decimal.Decimal {
	return p.Fields[name]
}

// Store is a WAL-backed point store.
type Store struct {
	wal *gowal.Wal
	mu  sync.RWMutex
}

// Open initializes the store under the provided directory.
func Open(dir string) (*Store, error) {
	if dir == "" {
		dir = defaultDir
	}

	cfg := gowal.Config{
		Dir:              dir,
		Prefix:           "points_",
		SegmentThreshold: segmentThreshold,
		MaxSegments:      maxSegments,
		IsInSyncDiskMode: true,
	}

	wal, err := gowal.NewWAL(cfg)
	if err != nil {
		return nil, &domain.StoreError{Op: "open", Err: err}
	}
	return &Store{wal: wal}, nil
}

// Write appends the points in order as one batch.
func (s *Store) Write(points []Point) error {
	if s == nil || s.wal == nil {
		return &domain.StoreError{Op: "write", Err: errors.New("store is not initialized")}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range points {
		payload, err := json.Marshal(p)
		if err != nil {
			return &domain.StoreError{Op: "write", Err: errors.Wrap(err, "marshal point")}
		}
		if err := s.wal.Write(s.wal.CurrentIndex()+1, p.Measurement, payload); err != nil {
			return &domain.StoreError{Op: "write", Err: err}
		}
	}
	return nil
}

// Last returns the most recently written point of the measurement, or
// (nil, nil) when the store holds none. Errors are store failures, never a
// silent "no checkpoint".
func (s *Store) Last(measurement string) (*Point, error) {
	if s == nil || s.wal == nil {
		return nil, &domain.StoreError{Op: "query", Err: errors.New("store is not initialized")}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for idx := s.wal.CurrentIndex(); idx >= 1; idx-- {
		key, payload, err := s.wal.Get(idx)
		if err != nil || key != measurement {
			continue
		}
		var p Point
		if err := json.Unmarshal(payload, &p); err != nil {
			return nil, &domain.StoreError{Op: "query", Err: errors.Wrap(err, "decode point")}
		}
		return &p, nil
	}
	return nil, nil
}

// Points returns every point of the measurement in write order.
func (s *Store) Points(measurement string) ([]Point, error) {
	if s == nil || s.wal == nil {
		return nil, &domain.StoreError{Op: "query", Err: errors.New("store is not initialized")}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var points []Point
	for msg := range s.wal.Iterator() {
		if msg.Key != measurement {
			continue
		}
		var p Point
		if err := json.Unmarshal(msg.Value, &p); err != nil {
			return nil, &domain.StoreError{Op: "query", Err: errors.Wrap(err, "decode point")}
		}
		points = append(points, p)
	}
	return points, nil
}

// SumField sums a field of the measurement over points newer than since.
func (s *Store) SumField(measurement, field string, since time.Time) (decimal.Decimal, error) {
	points, err := s.Points(measurement)
	if err != nil {
		return decimal.Zero, err
	}

	sum := decimal.Zero
	for _, p := range points {
		if !p.Time.After(since) {
			continue
		}
		sum = sum.Add(p.Field(field))
	}
	return sum, nil
}

// Close closes the underlying WAL.
func (s *Store) Close() error {
	if s == nil || s.wal == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.wal.Close()
}
