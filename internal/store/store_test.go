package store

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

type scriptedStore struct {
	errs  []error
	calls int
}

func (s *scriptedStore) WithTx(_ context.Context, fn func(tx Tx) error) error {
	s.calls++
	if err := fn(nil); err != nil {
		return err
	}
	if len(s.errs) == 0 {
		return nil
	}
	err := s.errs[0]
	s.errs = s.errs[1:]
	return err
}

func TestRun(t *testing.T) {
	other := errors.New("disk full")
	tests := []struct {
		name      string
		errs      []error
		wantCalls int
		wantErr   error
	}{
		{name: "success", wantCalls: 1},
		{name: "conflict then success", errs: []error{ErrConflict}, wantCalls: 2},
		{name: "wrapped conflict is retried", errs: []error{fmt.Errorf("commit: %w", ErrConflict)}, wantCalls: 2},
		{name: "retries only once", errs: []error{ErrConflict, ErrConflict}, wantCalls: 2, wantErr: ErrConflict},
		{name: "other errors are not retried", errs: []error{other}, wantCalls: 1, wantErr: other},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &scriptedStore{errs: tt.errs}
			err := Run(context.Background(), s, func(Tx) error { return nil })
			if s.calls != tt.wantCalls {
				t.Fatalf("calls = %d, want %d", s.calls, tt.wantCalls)
			}
			if !errors.Is(err, tt.wantErr) || (tt.wantErr == nil && err != nil) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}
}
