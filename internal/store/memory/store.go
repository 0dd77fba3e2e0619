// Package memory implements store.Store in process memory. Units of work run one at a time
// under a single mutex and roll back by restoring a snapshot, so it enforces the same
// invariants as the Postgres store without a database.
package memory

import (
	"context"
	"maps"
	"sync"

	"github.com/google/uuid"

	"github.com/sashimi3433/Attendance-Check/internal/models"
	"github.com/sashimi3433/Attendance-Check/internal/store"
)

type state struct {
	users        map[uuid.UUID]models.User
	tokens       map[uuid.UUID]models.AttendanceToken
	tokenByValue map[string]uuid.UUID
	lessons      map[uuid.UUID]models.Lesson
	kiosks       map[uuid.UUID]models.Kiosk
	records      map[uuid.UUID]models.AttendanceRecord
}

func (s *state) clone() state {
	return state{
		users:        maps.Clone(s.users),
		tokens:       maps.Clone(s.tokens),
		tokenByValue: maps.Clone(s.tokenByValue),
		lessons:      maps.Clone(s.lessons),
		kiosks:       maps.Clone(s.kiosks),
		records:      maps.Clone(s.records),
	}
}

// Store is an in-memory store.Store.
type Store struct {
	mu sync.Mutex
	st state
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{st: state{
		users:        make(map[uuid.UUID]models.User),
		tokens:       make(map[uuid.UUID]models.AttendanceToken),
		tokenByValue: make(map[string]uuid.UUID),
		lessons:      make(map[uuid.UUID]models.Lesson),
		kiosks:       make(map[uuid.UUID]models.Kiosk),
		records:      make(map[uuid.UUID]models.AttendanceRecord),
	}}
}

// WithTx runs fn exclusively. If fn fails every write it made is discarded.
func (s *Store) WithTx(ctx context.Context, fn func(tx store.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := s.st.clone()
	if err := fn(&txn{st: &s.st}); err != nil {
		s.st = snapshot
		return err
	}
	return nil
}

type txn struct {
	st *state
}

var _ store.Tx = (*txn)(nil)
