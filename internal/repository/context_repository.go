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

const contextColumns = `id, owner_id, name, version, description, context_type, status,
	body, source, datasets, relationships, metrics, filters, business_rules,
	glossary, validation, source_hash, created_at, updated_at`

type contextRepository struct {
	pool *pgxpool.Pool
}

// NewContextRepository creates a PostgreSQL-backed context repository.
func NewContextRepository(pool *pgxpool.Pool) ContextRepository {
	return &contextRepository{pool: pool}
}

func (r *contextRepository) Create(ctx context.Context, c domain.Context) (domain.Context, error) {
	blobs, err := marshalContextBlobs(c)
	if err != nil {
		return domain.Context{}, err
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return domain.Context{}, fmt.Errorf("begin create context: %w", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `
		INSERT INTO contexts (id, owner_id, name, version, description, context_type, status,
			body, source, datasets, relationships, metrics, filters, business_rules,
			glossary, validation, source_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
		RETURNING `+contextColumns,
		c.ID, c.OwnerID, c.Name, c.Version, c.Description, c.Type, c.Status,
		c.Body, c.Source, blobs.datasets, blobs.relationships, blobs.metrics,
		blobs.filters, blobs.rules, blobs.glossary, blobs.validation,
		c.SourceHash, c.CreatedAt, c.UpdatedAt,
	)
	created, err := scanContext(row)
	if err != nil {
		return domain.Context{}, fmt.Errorf("create context: %w", err)
	}

	if err := syncContextDatasets(ctx, tx, created); err != nil {
		return domain.Context{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.Context{}, fmt.Errorf("commit create context: %w", err)
	}
	return created, nil
}

func (r *contextRepository) GetByID(ctx context.Context, id uuid.UUID) (domain.Context, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+contextColumns+` FROM contexts WHERE id = $1`, id)
	c, err := scanContext(row)
	if err != nil {
		return domain.Context{}, fmt.Errorf("get context: %w", err)
	}
	return c, nil
}

func (r *contextRepository) GetByName(ctx context.Context, ownerID uuid.UUID, name string) (domain.Context, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+contextColumns+` FROM contexts WHERE owner_id = $1 AND name = $2
		 ORDER BY updated_at DESC LIMIT 1`, ownerID, name)
	c, err := scanContext(row)
	if err != nil {
		return domain.Context{}, fmt.Errorf("get context by name: %w", err)
	}
	return c, nil
}

func (r *contextRepository) GetBySourceHash(ctx context.Context, ownerID uuid.UUID, hash string) (domain.Context, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+contextColumns+` FROM contexts WHERE owner_id = $1 AND source_hash = $2
		 ORDER BY updated_at DESC LIMIT 1`, ownerID, hash)
	c, err := scanContext(row)
	if err != nil {
		return domain.Context{}, fmt.Errorf("get context by source hash: %w", err)
	}
	return c, nil
}

func (r *contextRepository) List(ctx context.Context, ownerID uuid.UUID) ([]domain.Context, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+contextColumns+` FROM contexts WHERE owner_id = $1 ORDER BY created_at DESC`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list contexts: %w", err)
	}
	defer rows.Close()
	return collectContexts(rows)
}

func (r *contextRepository) ListByDataset(ctx context.Context, datasetID uuid.UUID) ([]domain.Context, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+prefixColumns("c.", contextColumns)+`
		FROM contexts c
		JOIN context_datasets cd ON cd.context_id = c.id
		WHERE cd.dataset_id = $1
		ORDER BY c.created_at DESC`, datasetID)
	if err != nil {
		return nil, fmt.Errorf("list contexts by dataset: %w", err)
	}
	defer rows.Close()
	return collectContexts(rows)
}

func (r *contextRepository) Update(ctx context.Context, c domain.Context) (domain.Context, error) {
	blobs, err := marshalContextBlobs(c)
	if err != nil {
		return domain.Context{}, err
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return domain.Context{}, fmt.Errorf("begin update context: %w", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `
		UPDATE contexts SET
			name = $2, version = $3, description = $4, context_type = $5, status = $6,
			body = $7, source = $8, datasets = $9, relationships = $10, metrics = $11,
			filters = $12, business_rules = $13, glossary = $14, validation = $15,
			source_hash = $16, updated_at = $17
		WHERE id = $1
		RETURNING `+contextColumns,
		c.ID, c.Name, c.Version, c.Description, c.Type, c.Status,
		c.Body, c.Source, blobs.datasets, blobs.relationships, blobs.metrics,
		blobs.filters, blobs.rules, blobs.glossary, blobs.validation,
		c.SourceHash, c.UpdatedAt,
	)
	updated, err := scanContext(row)
	if err != nil {
		return domain.Context{}, fmt.Errorf("update context: %w", err)
	}

	if err := syncContextDatasets(ctx, tx, updated); err != nil {
		return domain.Context{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.Context{}, fmt.Errorf("commit update context: %w", err)
	}
	return updated, nil
}

func (r *contextRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM contexts WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete context: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("delete context: %w", pgx.ErrNoRows)
	}
	return nil
}

// ListContextOwners returns the distinct owner scopes with stored contexts.
// Startup uses it to rebuild the in-memory association index.
func ListContextOwners(ctx context.Context, pool *pgxpool.Pool) ([]uuid.UUID, error) {
	rows, err := pool.Query(ctx, `SELECT DISTINCT owner_id FROM contexts`)
	if err != nil {
		return nil, fmt.Errorf("list context owners: %w", err)
	}
	defer rows.Close()

	var owners []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan owner: %w", err)
		}
		owners = append(owners, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate owners: %w", err)
	}
	return owners, nil
}

// syncContextDatasets rewrites the association rows backing ListByDataset.
func syncContextDatasets(ctx context.Context, tx pgx.Tx, c domain.Context) error {
	if _, err := tx.Exec(ctx, `DELETE FROM context_datasets WHERE context_id = $1`, c.ID); err != nil {
		return fmt.Errorf("clear context datasets: %w", err)
	}
	for _, ref := range c.Datasets {
		if ref.DatasetID == uuid.Nil {
			continue
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO context_datasets (context_id, dataset_id, alias)
			VALUES ($1, $2, $3)
			ON CONFLICT (context_id, dataset_id) DO UPDATE SET alias = EXCLUDED.alias`,
			c.ID, ref.DatasetID, ref.Alias)
		if err != nil {
			return fmt.Errorf("link context dataset: %w", err)
		}
	}
	return nil
}

type contextBlobs struct {
	datasets      json.RawMessage
	relationships json.RawMessage
	metrics       json.RawMessage
	filters       json.RawMessage
	rules         json.RawMessage
	glossary      json.RawMessage
	validation    json.RawMessage
}

func marshalContextBlobs(c domain.Context) (contextBlobs, error) {
	var blobs contextBlobs
	var err error
	if blobs.datasets, err = domain.MarshalJSONB(c.Datasets); err != nil {
		return blobs, fmt.Errorf("marshal datasets: %w", err)
	}
	if blobs.relationships, err = domain.MarshalJSONB(c.Relationships); err != nil {
		return blobs, fmt.Errorf("marshal relationships: %w", err)
	}
	if blobs.metrics, err = domain.MarshalJSONB(c.Metrics); err != nil {
		return blobs, fmt.Errorf("marshal metrics: %w", err)
	}
	if blobs.filters, err = domain.MarshalJSONB(c.Filters); err != nil {
		return blobs, fmt.Errorf("marshal filters: %w", err)
	}
	if blobs.rules, err = domain.MarshalJSONB(c.BusinessRules); err != nil {
		return blobs, fmt.Errorf("marshal business rules: %w", err)
	}
	if blobs.glossary, err = domain.MarshalJSONB(c.Glossary); err != nil {
		return blobs, fmt.Errorf("marshal glossary: %w", err)
	}
	if blobs.validation, err = domain.MarshalJSONB(c.Validation); err != nil {
		return blobs, fmt.Errorf("marshal validation: %w", err)
	}
	return blobs, nil
}

func scanContext(row pgx.Row) (domain.Context, error) {
	var c domain.Context
	var datasets, relationships, metrics, filters, rules, glossary, validation []byte

	err := row.Scan(
		&c.ID, &c.OwnerID, &c.Name, &c.Version, &c.Description, &c.Type, &c.Status,
		&c.Body, &c.Source, &datasets, &relationships, &metrics, &filters, &rules,
		&glossary, &validation, &c.SourceHash, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return domain.Context{}, err
	}

	for _, blob := range []struct {
		raw []byte
		dst any
	}{
		{datasets, &c.Datasets},
		{relationships, &c.Relationships},
		{metrics, &c.Metrics},
		{filters, &c.Filters},
		{rules, &c.BusinessRules},
		{glossary, &c.Glossary},
		{validation, &c.Validation},
	} {
		if len(blob.raw) == 0 {
			continue
		}
		if err := json.Unmarshal(blob.raw, blob.dst); err != nil {
			return domain.Context{}, fmt.Errorf("unmarshal context column: %w", err)
		}
	}

	return c, nil
}

func collectContexts(rows pgx.Rows) ([]domain.Context, error) {
	result := make([]domain.Context, 0)
	for rows.Next() {
		c, err := scanContext(rows)
		if err != nil {
			return nil, fmt.Errorf("scan context: %w", err)
		}
		result = append(result, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate contexts: %w", err)
	}
	return result, nil
}

// prefixColumns qualifies a comma-separated column list with a table alias.
func prefixColumns(prefix, columns string) string {
	out := ""
	for i, col := range splitColumns(columns) {
		if i > 0 {
			out += ", "
		}
		out += prefix + col
	}
	return out
}

func splitColumns(columns string) []string {
	var out []string
	field := ""
	for _, r := range columns {
		switch r {
		case ',':
			out = append(out, field)
			field = ""
		case ' ', '\t', '\n':
			// column lists carry formatting whitespace
		default:
			field += string(r)
		}
	}
	if field != "" {
		out = append(out, field)
	}
	return out
}
