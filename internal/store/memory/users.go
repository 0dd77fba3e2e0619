package memory

import (
	"context"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/sashimi3433/Attendance-Check/internal/models"
)

func (t *txn) CreateUser(_ context.Context, u *models.User) error {
	for _, existing := range t.st.users {
		if existing.Username == u.Username {
			return models.ErrUsernameTaken
		}
	}
	now := time.Now()
	u.ID = uuid.New()
	u.IsActive = true
	u.CurrentSessionID = nil
	u.CreatedAt, u.UpdatedAt = now, now
	t.st.users[u.ID] = *u
	return nil
}

func (t *txn) GetUser(_ context.Context, id uuid.UUID) (*models.User, error) {
	u, ok := t.st.users[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return &u, nil
}

func (t *txn) GetUserByUsername(_ context.Context, username string) (*models.User, error) {
	for _, u := range t.st.users {
		if u.Username == username {
			return &u, nil
		}
	}
	return nil, models.ErrNotFound
}

func (t *txn) LockUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return t.GetUser(ctx, id)
}

func (t *txn) SetCurrentSession(_ context.Context, userID uuid.UUID, sessionID *string) error {
	u, ok := t.st.users[userID]
	if !ok {
		return models.ErrNotFound
	}
	if sessionID != nil {
		sid := *sessionID
		sessionID = &sid
	}
	u.CurrentSessionID = sessionID
	u.UpdatedAt = time.Now()
	t.st.users[userID] = u
	return nil
}

func (t *txn) ListUsersWithSession(_ context.Context) ([]models.User, error) {
	var list []models.User
	for _, u := range t.st.users {
		if u.CurrentSessionID != nil {
			list = append(list, u)
		}
	}
	slices.SortFunc(list, func(a, b models.User) int { return compareUUID(a.ID, b.ID) })
	return list, nil
}

func compareUUID(a, b uuid.UUID) int {
	return slices.Compare(a[:], b[:])
}
