package datasets

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/dataspect/dataspect/internal/domain"
	"github.com/dataspect/dataspect/internal/frame"
	"github.com/dataspect/dataspect/internal/repository"
)

// Service registers dataset files and serves loaded frames to the engine.
type Service struct {
	repo   repository.DatasetRepository
	loader *Loader
}

// NewService creates a dataset service.
func NewService(repo repository.DatasetRepository, loader *Loader) *Service {
	return &Service{repo: repo, loader: loader}
}

// RegisterRequest describes a dataset file to register.
type RegisterRequest struct {
	OwnerID     uuid.UUID
	Name        string
	Description string
	FilePath    string
	FileType    string
}

// Register loads the file once to infer its schema and row counts, then
// stores the descriptor. The frame itself is not retained; queries reload it.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (domain.Dataset, error) {
	now := time.Now().UTC()
	d := domain.Dataset{
		ID:          uuid.New(),
		OwnerID:     req.OwnerID,
		Name:        req.Name,
		Description: req.Description,
		FilePath:    req.FilePath,
		FileType:    req.FileType,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	described, _, err := s.loader.Describe(ctx, d)
	if err != nil {
		return domain.Dataset{}, err
	}

	created, err := s.repo.Create(ctx, described)
	if err != nil {
		return domain.Dataset{}, fmt.Errorf("register dataset: %w", err)
	}
	log.Printf("[datasets] registered %q (%d rows, %d columns)", created.Name, created.RowCount, created.ColumnCount)
	return created, nil
}

// Get returns a dataset descriptor.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (domain.Dataset, error) {
	d, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return domain.Dataset{}, &domain.DatasetNotFoundError{DatasetID: id}
	}
	return d, nil
}

// List returns every dataset owned by ownerID.
func (s *Service) List(ctx context.Context, ownerID uuid.UUID) ([]domain.Dataset, error) {
	stored, err := s.repo.List(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list datasets: %w", err)
	}
	return stored, nil
}

// Delete removes a dataset descriptor. Contexts referencing it keep their
// dangling reference; validation surfaces it the next time they change.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete dataset: %w", err)
	}
	return nil
}

// LoadFrame resolves a dataset by id and loads its frame.
func (s *Service) LoadFrame(ctx context.Context, id uuid.UUID) (domain.Dataset, *frame.Frame, error) {
	d, err := s.Get(ctx, id)
	if err != nil {
		return domain.Dataset{}, nil, err
	}
	f, err := s.loader.Load(ctx, d)
	if err != nil {
		return domain.Dataset{}, nil, err
	}
	return d, f, nil
}

// Profile loads a dataset and returns its frame statistics.
func (s *Service) Profile(ctx context.Context, id uuid.UUID) (domain.FrameStats, error) {
	_, f, err := s.LoadFrame(ctx, id)
	if err != nil {
		return domain.FrameStats{}, err
	}
	return Stats(f), nil
}
