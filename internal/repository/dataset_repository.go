package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dataspect/dataspect/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const datasetColumns = `id, owner_id, name, description, file_path, file_type,
	columns, row_count, column_count, created_at, updated_at`

type datasetRepository struct {
	pool *pgxpool.Pool
}

// NewDatasetRepository creates a PostgreSQL-backed dataset registry.
func NewDatasetRepository(pool *pgxpool.Pool) DatasetRepository {
	return &datasetRepository{pool: pool}
}

func (r *datasetRepository) Create(ctx context.Context, d domain.Dataset) (domain.Dataset, error) {
	columnsJSON, err := domain.MarshalJSONB(d.Columns)
	if err != nil {
		return domain.Dataset{}, fmt.Errorf("marshal columns: %w", err)
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO datasets (id, owner_id, name, description, file_path, file_type,
			columns, row_count, column_count, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING `+datasetColumns,
		d.ID, d.OwnerID, d.Name, d.Description, d.FilePath, d.FileType,
		columnsJSON, d.RowCount, d.ColumnCount, d.CreatedAt, d.UpdatedAt,
	)
	created, err := scanDataset(row)
	if err != nil {
		return domain.Dataset{}, fmt.Errorf("create dataset: %w", err)
	}
	return created, nil
}

func (r *datasetRepository) GetByID(ctx context.Context, id uuid.UUID) (domain.Dataset, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+datasetColumns+` FROM datasets WHERE id = $1`, id)
	d, err := scanDataset(row)
	if err != nil {
		return domain.Dataset{}, fmt.Errorf("get dataset: %w", err)
	}
	return d, nil
}

func (r *datasetRepository) List(ctx context.Context, ownerID uuid.UUID) ([]domain.Dataset, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+datasetColumns+` FROM datasets WHERE owner_id = $1 ORDER BY created_at DESC`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list datasets: %w", err)
	}
	defer rows.Close()

	result := make([]domain.Dataset, 0)
	for rows.Next() {
		d, err := scanDataset(rows)
		if err != nil {
			return nil, fmt.Errorf("scan dataset: %w", err)
		}
		result = append(result, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate datasets: %w", err)
	}
	return result, nil
}

func (r *datasetRepository) Update(ctx context.Context, d domain.Dataset) (domain.Dataset, error) {
	columnsJSON, err := domain.MarshalJSONB(d.Columns)
	if err != nil {
		return domain.Dataset{}, fmt.Errorf("marshal columns: %w", err)
	}

	row := r.pool.QueryRow(ctx, `
		UPDATE datasets SET
			name = $2, description = $3, file_path = $4, file_type = $5,
			columns = $6, row_count = $7, column_count = $8, updated_at = $9
		WHERE id = $1
		RETURNING `+datasetColumns,
		d.ID, d.Name, d.Description, d.FilePath, d.FileType,
		columnsJSON, d.RowCount, d.ColumnCount, d.UpdatedAt,
	)
	updated, err := scanDataset(row)
	if err != nil {
		return domain.Dataset{}, fmt.Errorf("update dataset: %w", err)
	}
	return updated, nil
}

func (r *datasetRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM datasets WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete dataset: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("delete dataset: %w", pgx.ErrNoRows)
	}
	return nil
}

func scanDataset(row pgx.Row) (domain.Dataset, error) {
	var d domain.Dataset
	var columns []byte

	err := row.Scan(
		&d.ID, &d.OwnerID, &d.Name, &d.Description, &d.FilePath, &d.FileType,
		&columns, &d.RowCount, &d.ColumnCount, &d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		return domain.Dataset{}, err
	}

	if len(columns) > 0 {
		if err := json.Unmarshal(columns, &d.Columns); err != nil {
			return domain.Dataset{}, fmt.Errorf("unmarshal dataset columns: %w", err)
		}
	}
	return d, nil
}
