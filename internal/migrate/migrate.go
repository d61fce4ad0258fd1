// Package migrate keeps the identity schema current. Migrations and seeds
// are plain SQL files applied in filename order; each applied file name is
// recorded in a bookkeeping table so reruns only pick up what is new.
package migrate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	migrationsTable = "schema_migrations"
	seedsTable      = "schema_seeds"
)

// Runner applies migration and seed files from two directories against one
// database handle.
type Runner struct {
	db            *sql.DB
	migrationsDir string
	seedsDir      string
}

func NewRunner(db *sql.DB, migrationsDir, seedsDir string) *Runner {
	return &Runner{db: db, migrationsDir: migrationsDir, seedsDir: seedsDir}
}

// Up applies every migration that has no record yet, oldest first.
func (r *Runner) Up(ctx context.Context) error {
	return r.applyPending(ctx, migrationsTable, r.migrationsDir, ".up.sql")
}

// Seed applies pending seed files. Applied seeds are skipped, so seeding is
// safe to run on every deploy.
func (r *Runner) Seed(ctx context.Context) error {
	return r.applyPending(ctx, seedsTable, r.seedsDir, ".sql")
}

// Down reverts the most recently applied migration using its .down.sql twin.
func (r *Runner) Down(ctx context.Context) error {
	if err := r.ensureBookkeeping(ctx); err != nil {
		return err
	}
	applied, err := r.applied(ctx, migrationsTable)
	if err != nil {
		return err
	}
	if len(applied) == 0 {
		return errors.New("nothing to roll back")
	}
	last := applied[len(applied)-1]
	down := strings.TrimSuffix(last, ".up.sql") + ".down.sql"
	downPath := filepath.Join(r.migrationsDir, down)
	if _, err := os.Stat(downPath); err != nil {
		return fmt.Errorf("missing %s for applied migration %s", down, last)
	}
	if err := r.applyFile(ctx, downPath); err != nil {
		return fmt.Errorf("roll back %s: %w", last, err)
	}
	_, err = r.db.ExecContext(ctx,
		fmt.Sprintf(`delete from %s where name = $1`, migrationsTable), last)
	return err
}

// Status lists applied migrations in application order.
func (r *Runner) Status(ctx context.Context) ([]string, error) {
	if err := r.ensureBookkeeping(ctx); err != nil {
		return nil, err
	}
	return r.applied(ctx, migrationsTable)
}

func (r *Runner) applyPending(ctx context.Context, table, dir, suffix string) error {
	if err := r.ensureBookkeeping(ctx); err != nil {
		return err
	}
	applied, err := r.applied(ctx, table)
	if err != nil {
		return err
	}
	done := make(map[string]bool, len(applied))
	for _, name := range applied {
		done[name] = true
	}
	names, err := sqlFiles(dir, suffix)
	if err != nil {
		return err
	}
	for _, name := range names {
		if done[name] {
			continue
		}
		if err := r.applyFile(ctx, filepath.Join(dir, name)); err != nil {
			return fmt.Errorf("apply %s: %w", name, err)
		}
		if _, err := r.db.ExecContext(ctx,
			fmt.Sprintf(`insert into %s (name) values ($1)`, table), name); err != nil {
			return fmt.Errorf("record %s: %w", name, err)
		}
	}
	return nil
}

func (r *Runner) ensureBookkeeping(ctx context.Context) error {
	for _, table := range []string{migrationsTable, seedsTable} {
		ddl := fmt.Sprintf(`
			create table if not exists %s (
				name text primary key,
				applied_at timestamptz not null default now()
			);`, table)
		if _, err := r.db.ExecContext(ctx, ddl); err != nil {
			return err
		}
	}
	return nil
}

func (r *Runner) applied(ctx context.Context, table string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		fmt.Sprintf(`select name from %s order by applied_at, name`, table))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// applyFile runs every statement of one file inside a single transaction, so
// a half-applied file never gets a bookkeeping record.
func (r *Runner) applyFile(ctx context.Context, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	for _, stmt := range splitStatements(string(raw)) {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// sqlFiles returns the file names in dir carrying the suffix, in name order.
// A missing directory behaves as an empty one.
func sqlFiles(dir, suffix string) ([]string, error) {
	if dir == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), suffix) {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

// splitStatements cuts a script on semicolons sitting outside single-quoted
// literals and drops whitespace-only fragments.
func splitStatements(script string) []string {
	var (
		out    []string
		buf    strings.Builder
		quoted bool
	)
	flush := func() {
		if s := buf.String(); strings.TrimSpace(s) != "" {
			out = append(out, s)
		}
		buf.Reset()
	}
	for _, c := range script {
		buf.WriteRune(c)
		switch c {
		case '\'':
			quoted = !quoted
		case ';':
			if !quoted {
				flush()
			}
		}
	}
	flush()
	return out
}
