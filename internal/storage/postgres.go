package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/your-org/idgate/internal/config"
	"github.com/your-org/idgate/internal/match"
	"github.com/your-org/idgate/internal/models"
)

type PostgresStore struct {
	pool *pgxpool.Pool
	dim  int
}

func NewPostgresStore(cfg config.DatabaseConfig, embeddingDim int) (*PostgresStore, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.MaxConns)

	pool, err := pgxpool.NewWithConfig(context.Background(), poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &PostgresStore{pool: pool, dim: embeddingDim}, nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Migrate creates the schema if it does not exist yet.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		`CREATE TABLE IF NOT EXISTS attribute_definitions (
			id UUID PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			label TEXT NOT NULL,
			kind TEXT NOT NULL,
			field_order INT NOT NULL DEFAULT 0,
			is_required BOOLEAN NOT NULL DEFAULT FALSE,
			is_searchable BOOLEAN NOT NULL DEFAULT FALSE,
			is_system BOOLEAN NOT NULL DEFAULT FALSE,
			configuration JSONB NOT NULL DEFAULT '{}',
			compliance_rule JSONB,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS persons (
			id UUID PRIMARY KEY,
			first_name TEXT NOT NULL,
			last_name TEXT NOT NULL,
			attribute_values JSONB NOT NULL DEFAULT '{}',
			photo_key TEXT NOT NULL DEFAULT '',
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			deleted_at TIMESTAMPTZ
		)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS face_representations (
			id UUID PRIMARY KEY,
			person_id UUID NOT NULL REFERENCES persons(id) ON DELETE CASCADE,
			variant TEXT NOT NULL,
			embedding vector(%d) NOT NULL,
			generation INT NOT NULL DEFAULT 1,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, s.dim),
		`CREATE INDEX IF NOT EXISTS idx_face_representations_variant ON face_representations (variant)`,
		`CREATE TABLE IF NOT EXISTS roles (
			id UUID PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			description TEXT NOT NULL DEFAULT '',
			permissions JSONB NOT NULL DEFAULT '{}',
			visible_attributes JSONB,
			editable_attributes JSONB,
			scanner_config JSONB,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS users (
			id UUID PRIMARY KEY,
			email TEXT NOT NULL UNIQUE,
			full_name TEXT NOT NULL,
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			is_superadmin BOOLEAN NOT NULL DEFAULT FALSE,
			field_override JSONB,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS user_roles (
			user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			role_id UUID NOT NULL REFERENCES roles(id) ON DELETE CASCADE,
			PRIMARY KEY (user_id, role_id)
		)`,
		`CREATE TABLE IF NOT EXISTS scan_events (
			id UUID PRIMARY KEY,
			person_id UUID,
			requester_id UUID NOT NULL,
			method TEXT NOT NULL,
			variant TEXT NOT NULL DEFAULT '',
			confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
			distance DOUBLE PRECISION NOT NULL DEFAULT 0,
			result TEXT NOT NULL,
			reasons JSONB NOT NULL DEFAULT '[]',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// --- Attribute definitions ---

func (s *PostgresStore) CreateAttributeDefinition(ctx context.Context, def *models.AttributeDefinition) error {
	if def.ID == uuid.Nil {
		def.ID = uuid.New()
	}
	if def.Configuration == nil {
		def.Configuration = json.RawMessage("{}")
	}
	rule, err := marshalNullable(def.Rule)
	if err != nil {
		return fmt.Errorf("marshal compliance rule: %w", err)
	}
	err = s.pool.QueryRow(ctx,
		`INSERT INTO attribute_definitions (id, name, label, kind, field_order, is_required, is_searchable, is_system, configuration, compliance_rule)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10) RETURNING created_at, updated_at`,
		def.ID, def.Name, def.Label, def.Kind, def.Order, def.Required, def.Searchable, def.System, def.Configuration, rule,
	).Scan(&def.CreatedAt, &def.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create attribute definition: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetAttributeDefinition(ctx context.Context, id uuid.UUID) (*models.AttributeDefinition, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, name, label, kind, field_order, is_required, is_searchable, is_system, configuration, compliance_rule, created_at, updated_at
		 FROM attribute_definitions WHERE id = $1`, id)
	def, err := scanAttributeDefinition(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get attribute definition: %w", err)
	}
	return def, nil
}

// GetAttributeDefinitions returns all definitions in display order.
func (s *PostgresStore) GetAttributeDefinitions(ctx context.Context) ([]models.AttributeDefinition, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, label, kind, field_order, is_required, is_searchable, is_system, configuration, compliance_rule, created_at, updated_at
		 FROM attribute_definitions ORDER BY field_order, name`)
	if err != nil {
		return nil, fmt.Errorf("list attribute definitions: %w", err)
	}
	defer rows.Close()

	var defs []models.AttributeDefinition
	for rows.Next() {
		def, err := scanAttributeDefinition(rows)
		if err != nil {
			return nil, fmt.Errorf("scan attribute definition: %w", err)
		}
		defs = append(defs, *def)
	}
	return defs, rows.Err()
}

func (s *PostgresStore) UpdateAttributeDefinition(ctx context.Context, def *models.AttributeDefinition) error {
	rule, err := marshalNullable(def.Rule)
	if err != nil {
		return fmt.Errorf("marshal compliance rule: %w", err)
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE attribute_definitions
		 SET name = $2, label = $3, kind = $4, field_order = $5, is_required = $6, is_searchable = $7, configuration = $8, compliance_rule = $9, updated_at = now()
		 WHERE id = $1`,
		def.ID, def.Name, def.Label, def.Kind, def.Order, def.Required, def.Searchable, def.Configuration, rule)
	if err != nil {
		return fmt.Errorf("update attribute definition: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("attribute definition not found")
	}
	return nil
}

func (s *PostgresStore) DeleteAttributeDefinition(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM attribute_definitions WHERE id = $1 AND is_system = FALSE`, id)
	if err != nil {
		return fmt.Errorf("delete attribute definition: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("attribute definition not found or is a system attribute")
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAttributeDefinition(row rowScanner) (*models.AttributeDefinition, error) {
	def := &models.AttributeDefinition{}
	var rule []byte
	err := row.Scan(&def.ID, &def.Name, &def.Label, &def.Kind, &def.Order,
		&def.Required, &def.Searchable, &def.System, &def.Configuration, &rule,
		&def.CreatedAt, &def.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if len(rule) > 0 {
		def.Rule = &models.ComplianceRule{}
		if err := json.Unmarshal(rule, def.Rule); err != nil {
			return nil, fmt.Errorf("decode compliance rule: %w", err)
		}
	}
	return def, nil
}

// --- Persons ---

func (s *PostgresStore) CreatePerson(ctx context.Context, p *models.Person) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	values, err := marshalValues(p.Values)
	if err != nil {
		return err
	}
	err = s.pool.QueryRow(ctx,
		`INSERT INTO persons (id, first_name, last_name, attribute_values, photo_key, is_active)
		 VALUES ($1, $2, $3, $4, $5, TRUE) RETURNING created_at, updated_at`,
		p.ID, p.FirstName, p.LastName, values, p.PhotoKey,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create person: %w", err)
	}
	p.Active = true
	return nil
}

func (s *PostgresStore) GetPerson(ctx context.Context, id uuid.UUID) (*models.Person, error) {
	p := &models.Person{}
	var values []byte
	err := s.pool.QueryRow(ctx,
		`SELECT id, first_name, last_name, attribute_values, photo_key, is_active, created_at, updated_at, deleted_at
		 FROM persons WHERE id = $1 AND deleted_at IS NULL`, id,
	).Scan(&p.ID, &p.FirstName, &p.LastName, &values, &p.PhotoKey, &p.Active, &p.CreatedAt, &p.UpdatedAt, &p.DeletedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get person: %w", err)
	}
	if p.Values, err = unmarshalValues(values); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *PostgresStore) ListPersons(ctx context.Context, limit, offset int) ([]models.Person, int, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}

	var total int
	if err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM persons WHERE deleted_at IS NULL`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count persons: %w", err)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, first_name, last_name, attribute_values, photo_key, is_active, created_at, updated_at, deleted_at
		 FROM persons WHERE deleted_at IS NULL ORDER BY last_name, first_name LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list persons: %w", err)
	}
	defer rows.Close()

	var persons []models.Person
	for rows.Next() {
		var p models.Person
		var values []byte
		if err := rows.Scan(&p.ID, &p.FirstName, &p.LastName, &values, &p.PhotoKey, &p.Active, &p.CreatedAt, &p.UpdatedAt, &p.DeletedAt); err != nil {
			return nil, 0, fmt.Errorf("scan person: %w", err)
		}
		if p.Values, err = unmarshalValues(values); err != nil {
			return nil, 0, err
		}
		persons = append(persons, p)
	}
	return persons, total, rows.Err()
}

// UpdatePersonValues merges the given attribute values into the person's
// set. A nil entry clears the attribute back to "not filled".
func (s *PostgresStore) UpdatePersonValues(ctx context.Context, id uuid.UUID, updates map[uuid.UUID]any) (*models.Person, error) {
	p, err := s.GetPerson(ctx, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, nil
	}
	if p.Values == nil {
		p.Values = map[uuid.UUID]any{}
	}
	for attrID, v := range updates {
		if v == nil {
			delete(p.Values, attrID)
			continue
		}
		p.Values[attrID] = v
	}

	values, err := marshalValues(p.Values)
	if err != nil {
		return nil, err
	}
	_, err = s.pool.Exec(ctx,
		`UPDATE persons SET attribute_values = $2, updated_at = now() WHERE id = $1`, id, values)
	if err != nil {
		return nil, fmt.Errorf("update person values: %w", err)
	}
	return p, nil
}

// GetPersonAttributeValues returns the person's dynamic values keyed by
// attribute ID.
func (s *PostgresStore) GetPersonAttributeValues(ctx context.Context, id uuid.UUID) (map[uuid.UUID]any, error) {
	p, err := s.GetPerson(ctx, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, fmt.Errorf("person %s not found", id)
	}
	return p.Values, nil
}

func (s *PostgresStore) SetPersonPhoto(ctx context.Context, id uuid.UUID, photoKey string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE persons SET photo_key = $2, updated_at = now() WHERE id = $1 AND deleted_at IS NULL`, id, photoKey)
	if err != nil {
		return fmt.Errorf("set person photo: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("person not found")
	}
	return nil
}

func (s *PostgresStore) DeletePerson(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE persons SET deleted_at = now(), is_active = FALSE WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		return fmt.Errorf("delete person: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("person not found")
	}
	return nil
}

// SearchPersonsByText matches the query against names and the values of
// the given searchable attributes.
func (s *PostgresStore) SearchPersonsByText(ctx context.Context, query string, attributeIDs []uuid.UUID, limit int) ([]models.Person, error) {
	if limit <= 0 {
		limit = 10
	}
	pattern := "%" + query + "%"

	attrKeys := make([]string, 0, len(attributeIDs))
	for _, id := range attributeIDs {
		attrKeys = append(attrKeys, id.String())
	}

	rows, err := s.pool.Query(ctx,
		`SELECT DISTINCT p.id, p.first_name, p.last_name, p.attribute_values, p.photo_key, p.is_active, p.created_at, p.updated_at, p.deleted_at
		 FROM persons p
		 LEFT JOIN LATERAL jsonb_each_text(p.attribute_values) kv ON kv.key = ANY($3)
		 WHERE p.deleted_at IS NULL
		   AND (p.first_name ILIKE $1 OR p.last_name ILIKE $1 OR kv.value ILIKE $1)
		 ORDER BY p.last_name, p.first_name
		 LIMIT $2`, pattern, limit, attrKeys)
	if err != nil {
		return nil, fmt.Errorf("search persons: %w", err)
	}
	defer rows.Close()

	var persons []models.Person
	for rows.Next() {
		var p models.Person
		var values []byte
		if err := rows.Scan(&p.ID, &p.FirstName, &p.LastName, &values, &p.PhotoKey, &p.Active, &p.CreatedAt, &p.UpdatedAt, &p.DeletedAt); err != nil {
			return nil, fmt.Errorf("scan person: %w", err)
		}
		if p.Values, err = unmarshalValues(values); err != nil {
			return nil, err
		}
		persons = append(persons, p)
	}
	return persons, rows.Err()
}

// --- Face representations ---

// ReplaceFaceRepresentations swaps the person's whole representation set
// for a new generation in one transaction. Representations are never
// patched individually.
func (s *PostgresStore) ReplaceFaceRepresentations(ctx context.Context, personID uuid.UUID, reps []models.FaceRepresentation) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	var generation int
	if err := tx.QueryRow(ctx,
		`SELECT COALESCE(MAX(generation), 0) FROM face_representations WHERE person_id = $1`, personID,
	).Scan(&generation); err != nil {
		return fmt.Errorf("current generation: %w", err)
	}
	generation++

	if _, err := tx.Exec(ctx,
		`DELETE FROM face_representations WHERE person_id = $1`, personID); err != nil {
		return fmt.Errorf("drop old representations: %w", err)
	}

	for i := range reps {
		reps[i].ID = uuid.New()
		reps[i].PersonID = personID
		reps[i].Generation = generation
		vec := pgvector.NewVector(reps[i].Vector)
		if err := tx.QueryRow(ctx,
			`INSERT INTO face_representations (id, person_id, variant, embedding, generation)
			 VALUES ($1, $2, $3, $4, $5) RETURNING created_at`,
			reps[i].ID, personID, reps[i].Variant, vec, generation,
		).Scan(&reps[i].CreatedAt); err != nil {
			return fmt.Errorf("insert representation: %w", err)
		}
	}

	return tx.Commit(ctx)
}

func (s *PostgresStore) ListFaceRepresentations(ctx context.Context, personID uuid.UUID) ([]models.FaceRepresentation, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, person_id, variant, generation, created_at
		 FROM face_representations WHERE person_id = $1 ORDER BY variant`, personID)
	if err != nil {
		return nil, fmt.Errorf("list representations: %w", err)
	}
	defer rows.Close()

	var reps []models.FaceRepresentation
	for rows.Next() {
		var r models.FaceRepresentation
		if err := rows.Scan(&r.ID, &r.PersonID, &r.Variant, &r.Generation, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan representation: %w", err)
		}
		reps = append(reps, r)
	}
	return reps, rows.Err()
}

// RetrieveNearest returns the nearest stored vector of the given variant
// across the active population, using pgvector's L2 operator.
func (s *PostgresStore) RetrieveNearest(ctx context.Context, variant models.Variant, probe []float32) (match.Neighbor, error) {
	vec := pgvector.NewVector(probe)
	var n match.Neighbor
	err := s.pool.QueryRow(ctx,
		`SELECT fr.person_id, fr.embedding <-> $1 AS distance
		 FROM face_representations fr
		 JOIN persons p ON p.id = fr.person_id
		 WHERE fr.variant = $2 AND p.is_active AND p.deleted_at IS NULL
		 ORDER BY fr.embedding <-> $1
		 LIMIT 1`, vec, variant,
	).Scan(&n.PersonID, &n.Distance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return match.Neighbor{}, match.ErrNoCandidates
		}
		return match.Neighbor{}, fmt.Errorf("retrieve nearest: %w", err)
	}
	return n, nil
}

// --- JSONB helpers ---

func marshalValues(values map[uuid.UUID]any) ([]byte, error) {
	if values == nil {
		return []byte("{}"), nil
	}
	data, err := json.Marshal(values)
	if err != nil {
		return nil, fmt.Errorf("marshal attribute values: %w", err)
	}
	return data, nil
}

func unmarshalValues(data []byte) (map[uuid.UUID]any, error) {
	values := map[uuid.UUID]any{}
	if len(data) == 0 {
		return values, nil
	}
	if err := json.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("decode attribute values: %w", err)
	}
	return values, nil
}

func marshalNullable(v any) ([]byte, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case *models.ComplianceRule:
		if val == nil {
			return nil, nil
		}
	case *models.ScannerConfig:
		if val == nil {
			return nil, nil
		}
	case *models.FieldOverride:
		if val == nil {
			return nil, nil
		}
	}
	return json.Marshal(v)
}
