package auth

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/sashimi3433/Attendance-Check/internal/models"
	"github.com/sashimi3433/Attendance-Check/internal/store"
)

// Repository handles user and kiosk persistence.
type Repository struct {
	store store.Store
}

// NewRepository creates an auth repository.
func NewRepository(st store.Store) *Repository {
	return &Repository{store: st}
}

// GetByID returns a user by ID.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var u *models.User
	err := r.store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		u, err = tx.GetUser(ctx, id)
		return err
	})
	return u, err
}

// GetByUsername returns a user by username.
func (r *Repository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	var u *models.User
	err := r.store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		u, err = tx.GetUserByUsername(ctx, strings.TrimSpace(username))
		return err
	})
	return u, err
}

// CreateUserParams holds the fields of a new account. PasswordHash must already be hashed.
type CreateUserParams struct {
	Username     string
	PasswordHash string
	FullName     string
	Role         models.Role
	Grade        string
	Major        string
}

func (p CreateUserParams) user() *models.User {
	return &models.User{
		Username: strings.TrimSpace(p.Username),
		Password: p.PasswordHash,
		FullName: strings.TrimSpace(p.FullName),
		Role:     p.Role,
		Grade:    strings.TrimSpace(p.Grade),
		Major:    strings.TrimSpace(p.Major),
	}
}

// Create inserts a user.
func (r *Repository) Create(ctx context.Context, p CreateUserParams) (*models.User, error) {
	u := p.user()
	err := store.Run(ctx, r.store, func(tx store.Tx) error {
		return tx.CreateUser(ctx, u)
	})
	if err != nil {
		return nil, err
	}
	return u, nil
}

// CreateKiosk inserts a kiosk-role user and its kiosk in one unit.
func (r *Repository) CreateKiosk(ctx context.Context, p CreateUserParams, name, location string) (*models.User, *models.Kiosk, error) {
	p.Role = models.RoleKiosk
	u := p.user()
	k := &models.Kiosk{Name: strings.TrimSpace(name), Location: strings.TrimSpace(location)}
	err := store.Run(ctx, r.store, func(tx store.Tx) error {
		if err := tx.CreateUser(ctx, u); err != nil {
			return err
		}
		k.UserID = u.ID
		return tx.CreateKiosk(ctx, k)
	})
	if err != nil {
		return nil, nil, err
	}
	return u, k, nil
}
