package registry

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/patientflow/patientflow/pkg/errs"
)

type Service struct {
	patients PatientRepository
	doctors  DoctorRepository
}

func NewService(patients PatientRepository, doctors DoctorRepository) *Service {
	return &Service{patients: patients, doctors: doctors}
}

// -- Patient --

// RegisterPatient creates a patient record on first visit. When the HN is
// already registered the existing record is returned unchanged.
func (s *Service) RegisterPatient(ctx context.Context, p *Patient) (*Patient, error) {
	p.HN = strings.TrimSpace(p.HN)
	if p.HN == "" {
		return nil, fmt.Errorf("hn is required")
	}

	existing, err := s.patients.GetByHN(ctx, p.HN)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, errs.ErrNotFound) {
		return nil, err
	}

	if err := s.patients.Create(ctx, p); err != nil {
		if errors.Is(err, errs.ErrConflict) {
			// Lost the create race; the record exists now.
			return s.patients.GetByHN(ctx, p.HN)
		}
		return nil, err
	}
	return p, nil
}

func (s *Service) GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return s.patients.GetByID(ctx, id)
}

func (s *Service) GetPatientByHN(ctx context.Context, hn string) (*Patient, error) {
	return s.patients.GetByHN(ctx, strings.TrimSpace(hn))
}

func (s *Service) RenamePatient(ctx context.Context, id uuid.UUID, displayName string) error {
	return s.patients.UpdateDisplayName(ctx, id, displayName)
}

func (s *Service) ListPatients(ctx context.Context, limit, offset int) ([]*Patient, int, error) {
	return s.patients.List(ctx, limit, offset)
}

// ImportPatients upserts a batch of patients keyed by HN. Rows without an HN
// are rejected before any write happens.
func (s *Service) ImportPatients(ctx context.Context, patients []*Patient) (int, error) {
	for i, p := range patients {
		p.HN = strings.TrimSpace(p.HN)
		if p.HN == "" {
			return 0, fmt.Errorf("import row %d missing hn", i)
		}
	}
	return s.patients.UpsertByHN(ctx, patients)
}

// -- Doctor --

func (s *Service) CreateDoctor(ctx context.Context, d *Doctor) error {
	if strings.TrimSpace(d.Name) == "" {
		return fmt.Errorf("doctor name is required")
	}
	if strings.TrimSpace(d.SPID) == "" {
		return fmt.Errorf("spid is required")
	}
	return s.doctors.Create(ctx, d)
}

func (s *Service) GetDoctor(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	return s.doctors.GetByID(ctx, id)
}

func (s *Service) UpdateDoctor(ctx context.Context, d *Doctor) error {
	if strings.TrimSpace(d.Name) == "" {
		return fmt.Errorf("doctor name is required")
	}
	if strings.TrimSpace(d.SPID) == "" {
		return fmt.Errorf("spid is required")
	}
	return s.doctors.Update(ctx, d)
}

func (s *Service) ListDoctors(ctx context.Context, activeOnly bool, limit, offset int) ([]*Doctor, int, error) {
	return s.doctors.List(ctx, activeOnly, limit, offset)
}
