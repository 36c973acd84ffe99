package contexts

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"

	"github.com/dataspect/dataspect/internal/domain"
	"github.com/dataspect/dataspect/internal/index"
	"github.com/dataspect/dataspect/internal/repository"
)

// ErrNotFound is returned when a requested context does not exist.
var ErrNotFound = errors.New("context not found")

// Service manages the context lifecycle: parse, validate, store, index.
type Service struct {
	repo     repository.ContextRepository
	index    *index.Association
	registry DatasetChecker
}

// NewService creates a context service backed by repo and assoc. registry may
// be nil, in which case dataset references are not resolved during
// validation.
func NewService(repo repository.ContextRepository, assoc *index.Association, registry DatasetChecker) *Service {
	return &Service{repo: repo, index: assoc, registry: registry}
}

// CreateRequest is the input for creating a context from raw text.
type CreateRequest struct {
	OwnerID uuid.UUID
	Source  string
	// DatasetID optionally binds a simplified narrative that declares no
	// datasets of its own.
	DatasetID *uuid.UUID
	// Activate requests active status; granted only when validation passes.
	Activate bool
}

// Create parses and validates raw context text and stores the result.
// Parse failures are hard errors. Validation failures are not: the context is
// stored as a draft carrying its issues, so the author can inspect and fix
// it. Submitting text identical to an existing context returns the stored
// one instead of a duplicate.
func (s *Service) Create(ctx context.Context, req CreateRequest) (domain.Context, error) {
	hash := domain.HashSource(req.Source)
	if existing, err := s.repo.GetBySourceHash(ctx, req.OwnerID, hash); err == nil {
		log.Printf("[contexts] create deduplicated to existing context %s", existing.ID)
		return existing, nil
	}

	c, err := Parse(req.OwnerID, req.Source, req.DatasetID)
	if err != nil {
		return domain.Context{}, err
	}
	c.SourceHash = hash

	c.Validation = ValidateWithRegistry(ctx, c, s.registry)
	c.Status = resolveStatus(c.Validation, req.Activate)
	if !c.Validation.Passed() {
		log.Printf("[contexts] context %q stored as draft with %d validation errors", c.Name, len(c.Validation.Errors))
	}

	created, err := s.repo.Create(ctx, c)
	if err != nil {
		return domain.Context{}, fmt.Errorf("create context: %w", err)
	}
	s.index.Upsert(created.ID, created.DatasetIDs())
	return created, nil
}

// UpdateRequest is the input for replacing a context's definition text.
type UpdateRequest struct {
	ID        uuid.UUID
	Source    string
	DatasetID *uuid.UUID
	Activate  bool
}

// Update re-parses the replacement text and swaps the stored definition,
// preserving identity and creation time. Validation runs again; a previously
// active context that now fails validation is downgraded to draft.
func (s *Service) Update(ctx context.Context, req UpdateRequest) (domain.Context, error) {
	existing, err := s.repo.GetByID(ctx, req.ID)
	if err != nil {
		return domain.Context{}, ErrNotFound
	}

	c, err := Parse(existing.OwnerID, req.Source, req.DatasetID)
	if err != nil {
		return domain.Context{}, err
	}
	c.ID = existing.ID
	c.CreatedAt = existing.CreatedAt
	c.SourceHash = domain.HashSource(req.Source)

	c.Validation = ValidateWithRegistry(ctx, c, s.registry)
	wantActive := req.Activate || existing.Status == domain.ContextStatusActive
	c.Status = resolveStatus(c.Validation, wantActive)
	if existing.Status == domain.ContextStatusActive && c.Status != domain.ContextStatusActive {
		log.Printf("[contexts] context %s downgraded to draft after failed validation", c.ID)
	}

	updated, err := s.repo.Update(ctx, c)
	if err != nil {
		return domain.Context{}, fmt.Errorf("update context: %w", err)
	}
	s.index.Upsert(updated.ID, updated.DatasetIDs())
	return updated, nil
}

// Get returns a stored context by id. Reads never fail on validation state;
// a draft with errors is returned as-is.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (domain.Context, error) {
	c, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return domain.Context{}, ErrNotFound
	}
	return c, nil
}

// List returns every context owned by ownerID.
func (s *Service) List(ctx context.Context, ownerID uuid.UUID) ([]domain.Context, error) {
	stored, err := s.repo.List(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list contexts: %w", err)
	}
	return stored, nil
}

// ListByDataset returns the contexts referencing datasetID, resolved through
// the association index rather than a storage scan.
func (s *Service) ListByDataset(ctx context.Context, datasetID uuid.UUID) ([]domain.Context, error) {
	out := make([]domain.Context, 0)
	for _, contextID := range s.index.Get(datasetID) {
		c, err := s.repo.GetByID(ctx, contextID)
		if err != nil {
			// Index may momentarily lead storage; skip the orphan.
			log.Printf("[contexts] index entry %s has no stored context: %v", contextID, err)
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

// Delete removes a context and its index associations.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete context: %w", err)
	}
	s.index.Remove(id)
	return nil
}

// Deprecate marks a context deprecated without touching its definition.
func (s *Service) Deprecate(ctx context.Context, id uuid.UUID) (domain.Context, error) {
	c, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return domain.Context{}, ErrNotFound
	}
	c.Status = domain.ContextStatusDeprecated
	updated, err := s.repo.Update(ctx, c)
	if err != nil {
		return domain.Context{}, fmt.Errorf("deprecate context: %w", err)
	}
	return updated, nil
}

// Render serializes a stored context back to structured text.
func (s *Service) Render(ctx context.Context, id uuid.UUID) (string, error) {
	c, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return "", ErrNotFound
	}
	return Serialize(c)
}

func resolveStatus(v domain.ValidationState, activate bool) domain.ContextStatus {
	if activate && v.Passed() {
		return domain.ContextStatusActive
	}
	return domain.ContextStatusDraft
}
