package mirtarget

import (
	"context"
	"fmt"
	"strings"

	"github.com/carbocation/pfx"
	"github.com/jmoiron/sqlx"

	_ "github.com/mattn/go-sqlite3"
)

// Schema creates the two interaction tables. Validated rows leave score NULL.
const Schema = `
CREATE TABLE IF NOT EXISTS validated (
	org TEXT NOT NULL,
	mature_mirna_id TEXT NOT NULL,
	target_symbol TEXT NOT NULL,
	target_entrez TEXT NOT NULL DEFAULT '',
	"database" TEXT NOT NULL,
	score REAL
);
CREATE INDEX IF NOT EXISTS validated_mirna ON validated (org, mature_mirna_id);
CREATE TABLE IF NOT EXISTS predicted (
	org TEXT NOT NULL,
	mature_mirna_id TEXT NOT NULL,
	target_symbol TEXT NOT NULL,
	target_entrez TEXT NOT NULL DEFAULT '',
	"database" TEXT NOT NULL,
	score REAL
);
CREATE INDEX IF NOT EXISTS predicted_mirna ON predicted (org, mature_mirna_id);
`

// SQLSource reads interactions from a SQLite annotation database.
type SQLSource struct {
	DB *sqlx.DB
}

// OpenSQLite connects to the SQLite file at path.
func OpenSQLite(path string) (*SQLSource, error) {
	// URI filenames have to begin with 'file:'; see
	// https://www.sqlite.org/c3ref/open.html
	if !strings.HasPrefix(path, "file:") {
		path = "file:" + path
	}

	db, err := sqlx.Connect("sqlite3", path)
	if err != nil {
		return nil, pfx.Err(err)
	}

	return &SQLSource{DB: db}, nil
}

// Close releases the database handle.
func (s *SQLSource) Close() error {
	return s.DB.Close()
}

// CreateSchema creates the interaction tables if they do not exist.
func (s *SQLSource) CreateSchema(ctx context.Context) error {
	_, err := s.DB.ExecContext(ctx, Schema)
	return err
}

// Insert appends rows to table for org, preserving their order.
func (s *SQLSource) Insert(ctx context.Context, org string, table Table, rows []Target) error {
	if _, err := ParseTable(string(table)); err != nil {
		return err
	}

	tx, err := s.DB.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}

	query := fmt.Sprintf(`INSERT INTO %s (org, mature_mirna_id, target_symbol, target_entrez, "database", score) VALUES (?, ?, ?, ?, ?, ?)`, table)
	for _, r := range rows {
		if _, err := tx.ExecContext(ctx, query, org, r.MatureMirnaID, r.TargetSymbol, r.TargetEntrez, r.Database, r.Score); err != nil {
			tx.Rollback()
			return err
		}
	}

	return tx.Commit()
}

// Targets implements Source. Rows are returned in insertion order.
func (s *SQLSource) Targets(ctx context.Context, org string, table Table, mirnas []string) ([]Target, error) {
	if _, err := ParseTable(string(table)); err != nil {
		return nil, err
	}
	if len(mirnas) == 0 {
		return nil, nil
	}

	query, args, err := sqlx.In(fmt.Sprintf(`SELECT mature_mirna_id, target_symbol, target_entrez, "database", score FROM %s WHERE org = ? AND mature_mirna_id IN (?) ORDER BY rowid`, table), org, mirnas)
	if err != nil {
		return nil, err
	}

	out := []Target{}
	if err := s.DB.SelectContext(ctx, &out, s.DB.Rebind(query), args...); err != nil {
		return nil, err
	}

	return out, nil
}
