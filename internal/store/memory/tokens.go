package memory

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/sashimi3433/Attendance-Check/internal/models"
)

func (t *txn) CreateToken(_ context.Context, tok *models.AttendanceToken) error {
	if _, ok := t.st.tokenByValue[tok.Value]; ok {
		return errors.New("memory: duplicate token value")
	}
	if !tok.ExpiresAt.After(tok.IssuedAt) {
		return errors.New("memory: token expiry must be after issuance")
	}
	tok.ID = uuid.New()
	tok.Used = false
	tok.UpdatedAt = tok.IssuedAt
	t.st.tokens[tok.ID] = *tok
	t.st.tokenByValue[tok.Value] = tok.ID
	return nil
}

func (t *txn) GetTokenForUpdate(_ context.Context, value string) (*models.AttendanceToken, error) {
	id, ok := t.st.tokenByValue[value]
	if !ok {
		return nil, models.ErrNotFound
	}
	tok := t.st.tokens[id]
	return &tok, nil
}

func (t *txn) MarkTokenUsed(_ context.Context, id uuid.UUID, at time.Time) error {
	tok, ok := t.st.tokens[id]
	if !ok {
		return models.ErrNotFound
	}
	if tok.Used {
		return models.ErrAlreadyUsed
	}
	tok.Used = true
	tok.UpdatedAt = at
	t.st.tokens[id] = tok
	return nil
}

func stale(tok models.AttendanceToken, cutoff time.Time) bool {
	return !tok.Used && tok.ExpiresAt.Before(cutoff)
}

func (t *txn) CountStaleTokens(_ context.Context, cutoff time.Time) (int64, error) {
	var n int64
	for _, tok := range t.st.tokens {
		if stale(tok, cutoff) {
			n++
		}
	}
	return n, nil
}

func (t *txn) DeleteStaleTokens(_ context.Context, cutoff time.Time) (int64, error) {
	var n int64
	for id, tok := range t.st.tokens {
		if stale(tok, cutoff) {
			delete(t.st.tokens, id)
			delete(t.st.tokenByValue, tok.Value)
			n++
		}
	}
	return n, nil
}

func (t *txn) TokenStats(_ context.Context, now time.Time) (models.TokenStats, error) {
	var s models.TokenStats
	for _, tok := range t.st.tokens {
		s.Total++
		if tok.Used {
			s.Used++
			continue
		}
		s.Unused++
		if tok.ExpiresAt.Before(now) {
			s.ExpiredUnused++
		}
	}
	return s, nil
}
