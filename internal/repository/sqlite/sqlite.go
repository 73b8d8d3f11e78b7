package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"

	"interlink/internal/domain"
)

// Repository implements repository.Repository using SQLite
type Repository struct {
	db *sql.DB
}

// New creates a new SQLite repository
func New(dbPath string) (*Repository, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection keeps :memory: databases shared and serialises writers
	db.SetMaxOpenConns(1)

	repo := &Repository{db: db}
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return repo, nil
}

func (r *Repository) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS profiles (
		id TEXT PRIMARY KEY,
		name TEXT,
		kind TEXT NOT NULL DEFAULT 'unknown',
		address TEXT,
		source TEXT,
		interfaces JSON,
		reachable INTEGER NOT NULL DEFAULT 0,
		checked_at INTEGER,
		first_seen INTEGER,
		last_seen INTEGER,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_profiles_kind ON profiles(kind);
	CREATE INDEX IF NOT EXISTS idx_profiles_first_seen ON profiles(first_seen);
	`

	_, err := r.db.Exec(schema)
	return err
}

// SaveProfiles upserts profiles in a single transaction.
// first_seen keeps the earliest recorded value.
func (r *Repository) SaveProfiles(ctx context.Context, profiles []domain.SystemProfile) error {
	if len(profiles) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO profiles (`+profileColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			kind = excluded.kind,
			address = excluded.address,
			source = excluded.source,
			interfaces = excluded.interfaces,
			reachable = excluded.reachable,
			checked_at = excluded.checked_at,
			first_seen = COALESCE(profiles.first_seen, excluded.first_seen),
			last_seen = excluded.last_seen,
			updated_at = CURRENT_TIMESTAMP
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, p := range profiles {
		args, err := insertArgs(p)
		if err != nil {
			return fmt.Errorf("failed to encode profile %s: %w", p.ID, err)
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("failed to upsert profile %s: %w", p.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit profiles: %w", err)
	}
	return nil
}

// GetProfile retrieves a single profile by ID
func (r *Repository) GetProfile(ctx context.Context, id string) (domain.SystemProfile, error) {
	var row profileRow
	err := r.db.QueryRowContext(ctx,
		`SELECT `+profileColumns+` FROM profiles WHERE id = ?`, id,
	).Scan(row.scanArgs()...)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.SystemProfile{}, fmt.Errorf("profile %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.SystemProfile{}, fmt.Errorf("failed to query profile: %w", err)
	}
	return row.toDomain()
}

// ListProfiles returns all profiles ordered by first sighting
func (r *Repository) ListProfiles(ctx context.Context) ([]domain.SystemProfile, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+profileColumns+` FROM profiles ORDER BY first_seen, rowid`)
	if err != nil {
		return nil, fmt.Errorf("failed to query profiles: %w", err)
	}
	defer rows.Close()

	var profiles []domain.SystemProfile
	for rows.Next() {
		var row profileRow
		if err := rows.Scan(row.scanArgs()...); err != nil {
			return nil, fmt.Errorf("failed to scan profile: %w", err)
		}
		p, err := row.toDomain()
		if err != nil {
			return nil, fmt.Errorf("failed to decode profile %s: %w", row.ID, err)
		}
		profiles = append(profiles, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating profiles: %w", err)
	}
	return profiles, nil
}

// Close closes the database connection
func (r *Repository) Close() error {
	return r.db.Close()
}
