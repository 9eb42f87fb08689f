package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepository implements Repository using PostgreSQL.
//
// Expected schema:
//
//	CREATE TABLE users (
//	    id            UUID PRIMARY KEY,
//	    email         TEXT UNIQUE NOT NULL,
//	    name          TEXT NOT NULL DEFAULT '',
//	    password_hash TEXT NOT NULL DEFAULT '',
//	    object_guid   TEXT NOT NULL DEFAULT '',
//	    domain        TEXT NOT NULL DEFAULT '',
//	    phone         TEXT NOT NULL DEFAULT '',
//	    department    TEXT NOT NULL DEFAULT '',
//	    title         TEXT NOT NULL DEFAULT '',
//	    attributes    JSONB NOT NULL DEFAULT '{}',
//	    created_at    TIMESTAMPTZ NOT NULL,
//	    updated_at    TIMESTAMPTZ NOT NULL,
//	    deleted_at    TIMESTAMPTZ
//	);
//	CREATE UNIQUE INDEX users_object_guid_idx ON users (object_guid)
//	    WHERE object_guid <> '';
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL repository
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// Ping checks if the database connection is alive
func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

const userColumns = `
	id, email, name, password_hash, object_guid, domain,
	phone, department, title, attributes,
	created_at, updated_at, deleted_at`

// column whitelist; FindByField interpolates the column name
var fieldColumns = map[string]string{
	"email":      "email",
	"name":       "name",
	"domain":     "domain",
	"phone":      "phone",
	"department": "department",
	"title":      "title",
}

// FindByField retrieves a user by a settable column
func (r *PostgresRepository) FindByField(ctx context.Context, field, value string, includeTrashed bool) (*User, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	column, ok := fieldColumns[field]
	if !ok {
		return nil, fmt.Errorf("unknown user field %q", field)
	}

	query := fmt.Sprintf(`SELECT %s FROM users WHERE %s = $1`, userColumns, column)
	if !includeTrashed {
		query += ` AND deleted_at IS NULL`
	}
	query += ` LIMIT 1`

	return r.scanUser(r.pool.QueryRow(ctx, query, value))
}

// FindByGUID retrieves a user by directory identifier, trashed rows included
func (r *PostgresRepository) FindByGUID(ctx context.Context, guid string) (*User, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	query := fmt.Sprintf(`SELECT %s FROM users WHERE object_guid = $1 LIMIT 1`, userColumns)
	return r.scanUser(r.pool.QueryRow(ctx, query, guid))
}

// Create inserts a new user
func (r *PostgresRepository) Create(ctx context.Context, user *User) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	attributesJSON, err := json.Marshal(user.Attributes)
	if err != nil {
		return fmt.Errorf("marshal attributes: %w", err)
	}

	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now

	query := `
		INSERT INTO users (
			id, email, name, password_hash, object_guid, domain,
			phone, department, title, attributes,
			created_at, updated_at, deleted_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13
		)
	`

	_, err = r.pool.Exec(ctx, query,
		user.ID, user.Email, user.Name, user.PasswordHash, user.ObjectGUID, user.Domain,
		user.Phone, user.Department, user.Title, attributesJSON,
		user.CreatedAt, user.UpdatedAt, user.DeletedAt,
	)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}

	return nil
}

// Save updates an existing user
func (r *PostgresRepository) Save(ctx context.Context, user *User) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	attributesJSON, err := json.Marshal(user.Attributes)
	if err != nil {
		return fmt.Errorf("marshal attributes: %w", err)
	}

	user.UpdatedAt = time.Now()

	query := `
		UPDATE users SET
			email = $2, name = $3, password_hash = $4, object_guid = $5,
			domain = $6, phone = $7, department = $8, title = $9,
			attributes = $10, updated_at = $11
		WHERE id = $1
	`

	result, err := r.pool.Exec(ctx, query,
		user.ID, user.Email, user.Name, user.PasswordHash, user.ObjectGUID,
		user.Domain, user.Phone, user.Department, user.Title,
		attributesJSON, user.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("user not found: %s", user.ID)
	}

	return nil
}

// SoftDelete marks a user deleted
func (r *PostgresRepository) SoftDelete(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	query := `UPDATE users SET deleted_at = $1 WHERE id = $2 AND deleted_at IS NULL`
	now := time.Now()

	result, err := r.pool.Exec(ctx, query, now, id)
	if err != nil {
		return fmt.Errorf("soft delete user: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("user not found: %s", id)
	}

	return nil
}

// Restore clears a user's soft delete
func (r *PostgresRepository) Restore(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	query := `UPDATE users SET deleted_at = NULL, updated_at = $1 WHERE id = $2`

	result, err := r.pool.Exec(ctx, query, time.Now(), id)
	if err != nil {
		return fmt.Errorf("restore user: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("user not found: %s", id)
	}

	return nil
}

// scanUser scans a User from a database row
func (r *PostgresRepository) scanUser(row pgx.Row) (*User, error) {
	var user User
	var attributesJSON []byte

	err := row.Scan(
		&user.ID, &user.Email, &user.Name, &user.PasswordHash, &user.ObjectGUID, &user.Domain,
		&user.Phone, &user.Department, &user.Title, &attributesJSON,
		&user.CreatedAt, &user.UpdatedAt, &user.DeletedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}

	if len(attributesJSON) > 0 && string(attributesJSON) != "null" {
		if err := json.Unmarshal(attributesJSON, &user.Attributes); err != nil {
			return nil, fmt.Errorf("unmarshal attributes: %w", err)
		}
	}

	return &user, nil
}
