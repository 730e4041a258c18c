package identity

import (
	"context"

	"github.com/google/uuid"
)

// Repositories return apperr.NotFound for a missing record, apperr.Conflict
// when a unique email or phone is taken, and apperr.Persistence otherwise.

type DoctorRepository interface {
	Create(ctx context.Context, d *Doctor) error
	GetByID(ctx context.Context, id uuid.UUID) (*Doctor, error)
	GetByEmail(ctx context.Context, email string) (*Doctor, error)
	ExistsByEmailOrPhone(ctx context.Context, email, phone string) (bool, error)
	Update(ctx context.Context, d *Doctor) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, limit, offset int) ([]*Doctor, int, error)
}

type PatientRepository interface {
	Create(ctx context.Context, p *Patient) error
	// GetByID loads the patient with replies in insertion order.
	GetByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	GetByEmail(ctx context.Context, email string) (*Patient, error)
	// GetByIDs skips ids that do not exist. Replies are not loaded.
	GetByIDs(ctx context.Context, ids []uuid.UUID) ([]*Patient, error)
	ExistsByEmailOrPhone(ctx context.Context, email, phone string) (bool, error)
	// Update writes profile fields only; replies are untouched.
	Update(ctx context.Context, p *Patient) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, limit, offset int) ([]*Patient, int, error)
}

type AdminRepository interface {
	Create(ctx context.Context, a *Admin) error
	GetByEmail(ctx context.Context, email string) (*Admin, error)
}
