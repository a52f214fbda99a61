package registry

import (
	"context"

	"github.com/google/uuid"
)

type PatientRepository interface {
	Create(ctx context.Context, p *Patient) error
	GetByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	GetByHN(ctx context.Context, hn string) (*Patient, error)
	UpdateDisplayName(ctx context.Context, id uuid.UUID, displayName string) error
	List(ctx context.Context, limit, offset int) ([]*Patient, int, error)
	UpsertByHN(ctx context.Context, patients []*Patient) (int, error)
}

type DoctorRepository interface {
	Create(ctx context.Context, d *Doctor) error
	GetByID(ctx context.Context, id uuid.UUID) (*Doctor, error)
	Update(ctx context.Context, d *Doctor) error
	List(ctx context.Context, activeOnly bool, limit, offset int) ([]*Doctor, int, error)
}
