// Package postgres implements memory.Store on PostgreSQL with the pgvector
// extension.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/becomeliminal/nim-recall/memory"
)

// DefaultTable is the table used when none is configured.
const DefaultTable = "memories"

// Store persists records in a pgvector-enabled table.
type Store struct {
	pool  *pgxpool.Pool
	table string // sanitized identifier
}

var _ memory.Store = (*Store)(nil)

// New connects to databaseURL and creates the schema if missing.
func New(ctx context.Context, databaseURL, table string, dims int) (*Store, error) {
	if dims <= 0 {
		return nil, errors.New("postgres: dimensions must be positive")
	}
	if table == "" {
		table = DefaultTable
	}
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	s := &Store{pool: pool, table: pgx.Identifier{table}.Sanitize()}
	if err := s.initSchema(ctx, table, dims); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initSchema(ctx context.Context, table string, dims int) error {
	index := pgx.Identifier{"idx_" + table + "_type"}.Sanitize()
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector;`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			content TEXT NOT NULL,
			type TEXT NOT NULL,
			importance DOUBLE PRECISION NOT NULL,
			content_length INTEGER NOT NULL,
			extra JSONB NOT NULL DEFAULT '{}'::jsonb,
			embedding vector(%d) NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ
		);`, s.table, dims),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (type);`, index, s.table),
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

const columns = `id, content, type, importance, content_length, extra, embedding::text, created_at, updated_at`

// Add inserts a record.
func (s *Store) Add(ctx context.Context, rec *memory.Record) error {
	extra, err := encodeExtra(rec.Extra)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx,
		fmt.Sprintf(`INSERT INTO %s (id, content, type, importance, content_length, extra, embedding, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7::vector, $8, $9)`, s.table),
		rec.ID,
		rec.Content,
		string(rec.Type),
		rec.Importance,
		rec.ContentLength,
		extra,
		vectorLiteral(rec.Embedding),
		rec.CreatedAt,
		nullTime(rec.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert memory: %w", err)
	}
	return nil
}

// Query orders by cosine distance with all filters applied in SQL.
func (s *Store) Query(ctx context.Context, embedding []float32, k int, filter memory.Filter) ([]memory.Hit, error) {
	if k <= 0 {
		return nil, nil
	}
	extra, err := encodeExtra(filter.Extra)
	if err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx,
		fmt.Sprintf(`SELECT %s, embedding <=> $1::vector AS distance
		 FROM %s
		 WHERE ($2 = '' OR type = $2) AND importance >= $3 AND extra @> $4::jsonb
		 ORDER BY distance
		 LIMIT $5`, columns, s.table),
		vectorLiteral(embedding),
		string(filter.Type),
		filter.MinImportance,
		extra,
		k,
	)
	if err != nil {
		return nil, fmt.Errorf("query memories: %w", err)
	}
	defer rows.Close()

	var hits []memory.Hit
	for rows.Next() {
		var distance float64
		rec, err := scanRecord(rows, &distance)
		if err != nil {
			return nil, err
		}
		hits = append(hits, memory.Hit{Record: rec, Distance: distance})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate memory rows: %w", err)
	}
	return hits, nil
}

// Get returns the record with the given ID.
func (s *Store) Get(ctx context.Context, id string) (*memory.Record, error) {
	row := s.pool.QueryRow(ctx, fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, columns, s.table), id)
	rec, err := scanRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", memory.ErrNotFound, id)
	}
	return rec, err
}

// Update rewrites every mutable column of an existing record.
func (s *Store) Update(ctx context.Context, rec *memory.Record) error {
	extra, err := encodeExtra(rec.Extra)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx,
		fmt.Sprintf(`UPDATE %s SET content = $2, type = $3, importance = $4, content_length = $5,
		 extra = $6::jsonb, embedding = $7::vector, updated_at = $8
		 WHERE id = $1`, s.table),
		rec.ID,
		rec.Content,
		string(rec.Type),
		rec.Importance,
		rec.ContentLength,
		extra,
		vectorLiteral(rec.Embedding),
		nullTime(rec.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("update memory: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", memory.ErrNotFound, rec.ID)
	}
	return nil
}

// Delete removes records by ID.
func (s *Store) Delete(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	if _, err := s.pool.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = ANY($1)`, s.table), ids); err != nil {
		return fmt.Errorf("delete memories: %w", err)
	}
	return nil
}

// List returns up to limit records, newest first.
func (s *Store) List(ctx context.Context, limit int) ([]*memory.Record, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s ORDER BY created_at DESC`, columns, s.table)
	args := []any{}
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list memories: %w", err)
	}
	defer rows.Close()

	var out []*memory.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate memory rows: %w", err)
	}
	return out, nil
}

// Count returns the number of rows.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, fmt.Sprintf(`SELECT count(*) FROM %s`, s.table)).Scan(&n); err != nil {
		return 0, fmt.Errorf("count memories: %w", err)
	}
	return n, nil
}

// Clear removes every row.
func (s *Store) Clear(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, fmt.Sprintf(`TRUNCATE %s`, s.table)); err != nil {
		return fmt.Errorf("clear memories: %w", err)
	}
	return nil
}

// Close closes the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func scanRecord(row pgx.Row, extraDest ...any) (*memory.Record, error) {
	var (
		rec       memory.Record
		typ       string
		extra     []byte
		embedding string
		updatedAt *time.Time
	)
	dest := append([]any{
		&rec.ID, &rec.Content, &typ, &rec.Importance, &rec.ContentLength,
		&extra, &embedding, &rec.CreatedAt, &updatedAt,
	}, extraDest...)
	if err := row.Scan(dest...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan memory row: %w", err)
	}
	rec.Type = memory.Type(typ)
	if updatedAt != nil {
		rec.UpdatedAt = *updatedAt
	}
	if len(extra) > 0 && string(extra) != "{}" {
		if err := json.Unmarshal(extra, &rec.Extra); err != nil {
			return nil, fmt.Errorf("decode extra: %w", err)
		}
	}
	vec, err := parseVector(embedding)
	if err != nil {
		return nil, err
	}
	rec.Embedding = vec
	return &rec, nil
}

func encodeExtra(m map[string]string) (string, error) {
	if len(m) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("encode extra: %w", err)
	}
	return string(b), nil
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// vectorLiteral renders a pgvector text literal such as "[0.1,0.2]".
func vectorLiteral(v []float32) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, f := range v {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(f), 'f', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}

func parseVector(s string) ([]float32, error) {
	s = strings.TrimSuffix(strings.TrimPrefix(strings.TrimSpace(s), "["), "]")
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]float32, len(parts))
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 32)
		if err != nil {
			return nil, fmt.Errorf("parse vector: %w", err)
		}
		out[i] = float32(f)
	}
	return out, nil
}
