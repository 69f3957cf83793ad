package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Repository persists the catalog.
type Repository interface {
	ListEndpoints(ctx context.Context) ([]Endpoint, error)
	GetEndpoint(ctx context.Context, id string) (*Endpoint, error)
	ListCommands(ctx context.Context) ([]Command, error)
	EndpointConfig(ctx context.Context, endpointID string) (map[string]string, error)
	Import(ctx context.Context, seed *Seed) error
}

// SQLiteRepository stores the catalog in SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a catalog repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// ListEndpoints returns every endpoint ordered by ID.
func (r *SQLiteRepository) ListEndpoints(ctx context.Context) ([]Endpoint, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, protocol, enabled, created_at, updated_at FROM endpoints ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("querying endpoints: %w", err)
	}
	defer rows.Close()

	var out []Endpoint
	for rows.Next() {
		ep, err := scanEndpoint(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *ep)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating endpoints: %w", err)
	}
	return out, nil
}

// GetEndpoint returns one endpoint or ErrEndpointNotFound.
func (r *SQLiteRepository) GetEndpoint(ctx context.Context, id string) (*Endpoint, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, name, protocol, enabled, created_at, updated_at FROM endpoints WHERE id = ?`, id)
	ep, err := scanEndpoint(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrEndpointNotFound
	}
	return ep, err
}

// ListCommands returns every command ordered by ID.
func (r *SQLiteRepository) ListCommands(ctx context.Context) ([]Command, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, display_name, endpoint_id, category, created_at FROM commands ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("querying commands: %w", err)
	}
	defer rows.Close()

	var out []Command
	for rows.Next() {
		var c Command
		var display sql.NullString
		var category, createdAt string
		if err := rows.Scan(&c.ID, &c.Name, &display, &c.EndpointID, &category, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning command: %w", err)
		}
		c.DisplayName = display.String
		c.Category = Category(category)
		c.CreatedAt = parseTime(createdAt)
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating commands: %w", err)
	}
	return out, nil
}

// EndpointConfig returns the key/value rows for an endpoint.
func (r *SQLiteRepository) EndpointConfig(ctx context.Context, endpointID string) (map[string]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT key, value FROM endpoint_config WHERE endpoint_id = ?`, endpointID)
	if err != nil {
		return nil, fmt.Errorf("querying endpoint config: %w", err)
	}
	defer rows.Close()

	kv := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("scanning endpoint config: %w", err)
		}
		kv[k] = v
	}
	return kv, rows.Err()
}

// Import upserts every endpoint, its config and its commands in one
// transaction. Config rows and commands not present in the seed are removed
// for the endpoints the seed names; other endpoints are left alone.
func (r *SQLiteRepository) Import(ctx context.Context, seed *Seed) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting import: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	now := time.Now().UTC().Format(time.RFC3339)
	for _, ep := range seed.Endpoints {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO endpoints (id, name, protocol, enabled, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?)
			 ON CONFLICT(id) DO UPDATE SET
			   name = excluded.name, protocol = excluded.protocol,
			   enabled = excluded.enabled, updated_at = excluded.updated_at`,
			ep.ID, ep.Name, ep.Protocol, boolToInt(ep.isEnabled()), now, now,
		); err != nil {
			return fmt.Errorf("upserting endpoint %s: %w", ep.ID, err)
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM endpoint_config WHERE endpoint_id = ?`, ep.ID); err != nil {
			return fmt.Errorf("clearing config for %s: %w", ep.ID, err)
		}
		for k, v := range ep.Config {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO endpoint_config (endpoint_id, key, value) VALUES (?, ?, ?)`,
				ep.ID, k, v,
			); err != nil {
				return fmt.Errorf("inserting config %s for %s: %w", k, ep.ID, err)
			}
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM commands WHERE endpoint_id = ?`, ep.ID); err != nil {
			return fmt.Errorf("clearing commands for %s: %w", ep.ID, err)
		}
		for _, c := range ep.Commands {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO commands (id, name, display_name, endpoint_id, category, created_at)
				 VALUES (?, ?, ?, ?, ?, ?)`,
				c.ID, c.Name, nullableString(c.DisplayName), ep.ID, string(c.Category), now,
			); err != nil {
				return fmt.Errorf("inserting command %s: %w", c.ID, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing import: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEndpoint(row rowScanner) (*Endpoint, error) {
	var ep Endpoint
	var enabled int
	var createdAt, updatedAt string
	if err := row.Scan(&ep.ID, &ep.Name, &ep.Protocol, &enabled, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning endpoint: %w", err)
	}
	ep.Enabled = enabled != 0
	ep.CreatedAt = parseTime(createdAt)
	ep.UpdatedAt = parseTime(updatedAt)
	return &ep, nil
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339, s) //nolint:errcheck // written by us in RFC3339
	return t
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
