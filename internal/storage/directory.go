package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/your-org/idgate/internal/models"
)

// --- Roles ---

func (s *PostgresStore) CreateRole(ctx context.Context, role *models.Role) error {
	if role.ID == uuid.Nil {
		role.ID = uuid.New()
	}
	perms, err := json.Marshal(role.Permissions)
	if err != nil {
		return fmt.Errorf("marshal permissions: %w", err)
	}
	visible, err := marshalNullable(role.VisibleAttributes)
	if err != nil {
		return fmt.Errorf("marshal visible attributes: %w", err)
	}
	editable, err := marshalNullable(role.EditableAttributes)
	if err != nil {
		return fmt.Errorf("marshal editable attributes: %w", err)
	}
	scanner, err := marshalNullable(role.Scanner)
	if err != nil {
		return fmt.Errorf("marshal scanner config: %w", err)
	}
	err = s.pool.QueryRow(ctx,
		`INSERT INTO roles (id, name, description, permissions, visible_attributes, editable_attributes, scanner_config)
		 VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING created_at`,
		role.ID, role.Name, role.Description, perms, visible, editable, scanner,
	).Scan(&role.CreatedAt)
	if err != nil {
		return fmt.Errorf("create role: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetRole(ctx context.Context, id uuid.UUID) (*models.Role, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, name, description, permissions, visible_attributes, editable_attributes, scanner_config, created_at
		 FROM roles WHERE id = $1`, id)
	role, err := scanRole(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get role: %w", err)
	}
	return role, nil
}

func (s *PostgresStore) ListRoles(ctx context.Context) ([]models.Role, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, description, permissions, visible_attributes, editable_attributes, scanner_config, created_at
		 FROM roles ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list roles: %w", err)
	}
	defer rows.Close()

	var roles []models.Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, fmt.Errorf("scan role: %w", err)
		}
		roles = append(roles, *role)
	}
	return roles, rows.Err()
}

func scanRole(row rowScanner) (*models.Role, error) {
	role := &models.Role{}
	var perms, visible, editable, scanner []byte
	err := row.Scan(&role.ID, &role.Name, &role.Description, &perms, &visible, &editable, &scanner, &role.CreatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(perms, &role.Permissions); err != nil {
		return nil, fmt.Errorf("decode permissions: %w", err)
	}
	if len(visible) > 0 {
		if err := json.Unmarshal(visible, &role.VisibleAttributes); err != nil {
			return nil, fmt.Errorf("decode visible attributes: %w", err)
		}
	}
	if len(editable) > 0 {
		if err := json.Unmarshal(editable, &role.EditableAttributes); err != nil {
			return nil, fmt.Errorf("decode editable attributes: %w", err)
		}
	}
	if len(scanner) > 0 {
		role.Scanner = &models.ScannerConfig{}
		if err := json.Unmarshal(scanner, role.Scanner); err != nil {
			return nil, fmt.Errorf("decode scanner config: %w", err)
		}
	}
	return role, nil
}

// --- Users ---

func (s *PostgresStore) CreateUser(ctx context.Context, user *models.User, roleIDs []uuid.UUID) error {
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	override, err := marshalNullable(user.Override)
	if err != nil {
		return fmt.Errorf("marshal field override: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx,
		`INSERT INTO users (id, email, full_name, is_active, is_superadmin, field_override)
		 VALUES ($1, $2, $3, TRUE, $4, $5) RETURNING created_at, updated_at`,
		user.ID, user.Email, user.FullName, user.Superadmin, override,
	).Scan(&user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	user.Active = true

	for _, roleID := range roleIDs {
		if _, err := tx.Exec(ctx,
			`INSERT INTO user_roles (user_id, role_id) VALUES ($1, $2)`, user.ID, roleID); err != nil {
			return fmt.Errorf("assign role: %w", err)
		}
	}
	return tx.Commit(ctx)
}

func (s *PostgresStore) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	user := &models.User{}
	var override []byte
	err := s.pool.QueryRow(ctx,
		`SELECT id, email, full_name, is_active, is_superadmin, field_override, created_at, updated_at
		 FROM users WHERE id = $1`, id,
	).Scan(&user.ID, &user.Email, &user.FullName, &user.Active, &user.Superadmin, &override, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	if len(override) > 0 {
		user.Override = &models.FieldOverride{}
		if err := json.Unmarshal(override, user.Override); err != nil {
			return nil, fmt.Errorf("decode field override: %w", err)
		}
	}
	return user, nil
}

func (s *PostgresStore) ListUsers(ctx context.Context) ([]models.User, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, email, full_name, is_active, is_superadmin, field_override, created_at, updated_at
		 FROM users ORDER BY email`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		var user models.User
		var override []byte
		if err := rows.Scan(&user.ID, &user.Email, &user.FullName, &user.Active, &user.Superadmin, &override, &user.CreatedAt, &user.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		if len(override) > 0 {
			user.Override = &models.FieldOverride{}
			if err := json.Unmarshal(override, user.Override); err != nil {
				return nil, fmt.Errorf("decode field override: %w", err)
			}
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

func (s *PostgresStore) GetUserRoleIDs(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT role_id FROM user_roles WHERE user_id = $1 ORDER BY role_id`, userID)
	if err != nil {
		return nil, fmt.Errorf("list user role ids: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan role id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// GetRequester resolves a user together with their roles and override, as
// consumed by the permission resolver and the scan orchestrator.
func (s *PostgresStore) GetRequester(ctx context.Context, id uuid.UUID) (*models.Requester, error) {
	user, err := s.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}
	if user == nil || !user.Active {
		return nil, nil
	}

	rows, err := s.pool.Query(ctx,
		`SELECT r.id, r.name, r.description, r.permissions, r.visible_attributes, r.editable_attributes, r.scanner_config, r.created_at
		 FROM roles r JOIN user_roles ur ON ur.role_id = r.id
		 WHERE ur.user_id = $1 ORDER BY r.name`, id)
	if err != nil {
		return nil, fmt.Errorf("list user roles: %w", err)
	}
	defer rows.Close()

	req := &models.Requester{
		ID:         user.ID,
		Superadmin: user.Superadmin,
		Override:   user.Override,
	}
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, fmt.Errorf("scan role: %w", err)
		}
		req.Roles = append(req.Roles, *role)
	}
	return req, rows.Err()
}

// --- Scan events ---

func (s *PostgresStore) CreateScanEvent(ctx context.Context, ev *models.ScanEvent) error {
	if ev.ID == uuid.Nil {
		ev.ID = uuid.New()
	}
	reasons := []byte("[]")
	if ev.Reasons != nil {
		var err error
		reasons, err = json.Marshal(ev.Reasons)
		if err != nil {
			return fmt.Errorf("marshal reasons: %w", err)
		}
	}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO scan_events (id, person_id, requester_id, method, variant, confidence, distance, result, reasons)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING created_at`,
		ev.ID, ev.PersonID, ev.RequesterID, ev.Method, ev.Variant, ev.Confidence, ev.Distance, ev.Result, reasons,
	).Scan(&ev.CreatedAt)
	if err != nil {
		return fmt.Errorf("create scan event: %w", err)
	}
	return nil
}

func (s *PostgresStore) QueryScanEvents(ctx context.Context, personID *uuid.UUID, limit, offset int) ([]models.ScanEvent, int, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}

	where := ""
	args := []any{}
	if personID != nil {
		where = "WHERE person_id = $1"
		args = append(args, *personID)
	}

	var total int
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM scan_events "+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count scan events: %w", err)
	}

	query := fmt.Sprintf(
		`SELECT id, person_id, requester_id, method, variant, confidence, distance, result, reasons, created_at
		 FROM scan_events %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		where, len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query scan events: %w", err)
	}
	defer rows.Close()

	var events []models.ScanEvent
	for rows.Next() {
		var ev models.ScanEvent
		var reasons []byte
		if err := rows.Scan(&ev.ID, &ev.PersonID, &ev.RequesterID, &ev.Method, &ev.Variant, &ev.Confidence, &ev.Distance, &ev.Result, &reasons, &ev.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan event row: %w", err)
		}
		if err := json.Unmarshal(reasons, &ev.Reasons); err != nil {
			return nil, 0, fmt.Errorf("decode reasons: %w", err)
		}
		events = append(events, ev)
	}
	return events, total, rows.Err()
}
