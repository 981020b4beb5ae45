// Package memory is an in-process storage backend. Samples are lost when the
// agent exits.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/cpp11nullptr/vikki/internal/models"
	"github.com/cpp11nullptr/vikki/internal/storage"
)

// Name is the capability name of this backend.
const Name = "memory"

// Storage keeps one timestamp-indexed map per sensor.
type Storage struct {
	mu       sync.RWMutex
	open     bool
	entities map[string]map[int64][]byte
}

// New returns a closed backend.
func New() *Storage {
	return &Storage{}
}

func (s *Storage) Name() string { return Name }

func (s *Storage) Open(_ context.Context, _ map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.entities == nil {
		s.entities = make(map[string]map[int64][]byte)
	}
	s.open = true
	return nil
}

func (s *Storage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.open = false
	s.entities = nil
	return nil
}

func (s *Storage) PrepareEntity(_ context.Context, sensor string) error {
	if err := storage.ValidateEntity(sensor); err != nil {
		return storage.Wrap("prepare", sensor, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.open {
		return storage.Wrap("prepare", sensor, storage.ErrNotOpen)
	}
	if _, ok := s.entities[sensor]; !ok {
		s.entities[sensor] = make(map[int64][]byte)
	}
	return nil
}

func (s *Storage) Put(_ context.Context, sensor string, ts int64, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.open {
		return storage.Wrap("put", sensor, storage.ErrNotOpen)
	}
	entity, ok := s.entities[sensor]
	if !ok {
		entity = make(map[int64][]byte)
		s.entities[sensor] = entity
	}
	entity[ts] = append([]byte(nil), payload...)
	return nil
}

func (s *Storage) Get(_ context.Context, sensor string, from, to int64) ([]models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.open {
		return nil, storage.Wrap("get", sensor, storage.ErrNotOpen)
	}

	var records []models.Record
	for ts, payload := range s.entities[sensor] {
		if models.InRange(ts, from, to) {
			records = append(records, models.Record{
				Timestamp: ts,
				Payload:   append([]byte(nil), payload...),
			})
		}
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].Timestamp < records[j].Timestamp
	})
	return records, nil
}
