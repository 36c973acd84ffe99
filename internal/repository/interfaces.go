package repository

import (
	"context"

	"github.com/dataspect/dataspect/internal/domain"

	"github.com/google/uuid"
)

// ContextRepository defines the interface for context persistence.
type ContextRepository interface {
	Create(ctx context.Context, c domain.Context) (domain.Context, error)
	GetByID(ctx context.Context, id uuid.UUID) (domain.Context, error)
	GetByName(ctx context.Context, ownerID uuid.UUID, name string) (domain.Context, error)
	GetBySourceHash(ctx context.Context, ownerID uuid.UUID, hash string) (domain.Context, error)
	List(ctx context.Context, ownerID uuid.UUID) ([]domain.Context, error)
	ListByDataset(ctx context.Context, datasetID uuid.UUID) ([]domain.Context, error)
	Update(ctx context.Context, c domain.Context) (domain.Context, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// DatasetRepository defines the interface for dataset metadata persistence.
// Dataset rows live in their source files; only descriptors are stored.
type DatasetRepository interface {
	Create(ctx context.Context, d domain.Dataset) (domain.Dataset, error)
	GetByID(ctx context.Context, id uuid.UUID) (domain.Dataset, error)
	List(ctx context.Context, ownerID uuid.UUID) ([]domain.Dataset, error)
	Update(ctx context.Context, d domain.Dataset) (domain.Dataset, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// QueryRecordRepository stores the append-only history of executed queries.
type QueryRecordRepository interface {
	Record(ctx context.Context, rec domain.QueryRecord) (domain.QueryRecord, error)
	GetByID(ctx context.Context, id uuid.UUID) (domain.QueryRecord, error)
	List(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]domain.QueryRecord, error)
	ListByContext(ctx context.Context, contextID uuid.UUID, limit, offset int) ([]domain.QueryRecord, error)
}
