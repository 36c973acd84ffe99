package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dataspect/dataspect/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const queryRecordColumns = `id, owner_id, context_id, query_type, original_input,
	generated_query, result_rows, result_columns, execution_time_ns, usage,
	warnings, error, created_at`

type queryRecordRepository struct {
	pool *pgxpool.Pool
}

// NewQueryRecordRepository creates the append-only query history store.
func NewQueryRecordRepository(pool *pgxpool.Pool) QueryRecordRepository {
	return &queryRecordRepository{pool: pool}
}

func (r *queryRecordRepository) Record(ctx context.Context, rec domain.QueryRecord) (domain.QueryRecord, error) {
	usageJSON, err := domain.MarshalJSONB(rec.Usage)
	if err != nil {
		return domain.QueryRecord{}, fmt.Errorf("marshal usage: %w", err)
	}
	warningsJSON, err := domain.MarshalJSONB(rec.Warnings)
	if err != nil {
		return domain.QueryRecord{}, fmt.Errorf("marshal warnings: %w", err)
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO query_records (id, owner_id, context_id, query_type, original_input,
			generated_query, result_rows, result_columns, execution_time_ns, usage,
			warnings, error, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING `+queryRecordColumns,
		rec.ID, rec.OwnerID, rec.ContextID, rec.Type, rec.OriginalInput,
		rec.GeneratedQuery, rec.ResultRows, rec.ResultColumns,
		rec.ExecutionTime.Nanoseconds(), usageJSON, warningsJSON, rec.Error, rec.CreatedAt,
	)
	created, err := scanQueryRecord(row)
	if err != nil {
		return domain.QueryRecord{}, fmt.Errorf("record query: %w", err)
	}
	return created, nil
}

func (r *queryRecordRepository) GetByID(ctx context.Context, id uuid.UUID) (domain.QueryRecord, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+queryRecordColumns+` FROM query_records WHERE id = $1`, id)
	rec, err := scanQueryRecord(row)
	if err != nil {
		return domain.QueryRecord{}, fmt.Errorf("get query record: %w", err)
	}
	return rec, nil
}

func (r *queryRecordRepository) List(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]domain.QueryRecord, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+queryRecordColumns+` FROM query_records
		WHERE owner_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`, ownerID, normalizeLimit(limit), offset)
	if err != nil {
		return nil, fmt.Errorf("list query records: %w", err)
	}
	defer rows.Close()
	return collectQueryRecords(rows)
}

func (r *queryRecordRepository) ListByContext(ctx context.Context, contextID uuid.UUID, limit, offset int) ([]domain.QueryRecord, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+queryRecordColumns+` FROM query_records
		WHERE context_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`, contextID, normalizeLimit(limit), offset)
	if err != nil {
		return nil, fmt.Errorf("list query records by context: %w", err)
	}
	defer rows.Close()
	return collectQueryRecords(rows)
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return 50
	}
	return limit
}

func scanQueryRecord(row pgx.Row) (domain.QueryRecord, error) {
	var rec domain.QueryRecord
	var executionNS int64
	var usage, warnings []byte

	err := row.Scan(
		&rec.ID, &rec.OwnerID, &rec.ContextID, &rec.Type, &rec.OriginalInput,
		&rec.GeneratedQuery, &rec.ResultRows, &rec.ResultColumns, &executionNS,
		&usage, &warnings, &rec.Error, &rec.CreatedAt,
	)
	if err != nil {
		return domain.QueryRecord{}, err
	}

	rec.ExecutionTime = time.Duration(executionNS)
	if len(usage) > 0 {
		if err := json.Unmarshal(usage, &rec.Usage); err != nil {
			return domain.QueryRecord{}, fmt.Errorf("unmarshal usage: %w", err)
		}
	}
	if len(warnings) > 0 {
		if err := json.Unmarshal(warnings, &rec.Warnings); err != nil {
			return domain.QueryRecord{}, fmt.Errorf("unmarshal warnings: %w", err)
		}
	}
	return rec, nil
}

func collectQueryRecords(rows pgx.Rows) ([]domain.QueryRecord, error) {
	result := make([]domain.QueryRecord, 0)
	for rows.Next() {
		rec, err := scanQueryRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan query record: %w", err)
		}
		result = append(result, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate query records: %w", err)
	}
	return result, nil
}
