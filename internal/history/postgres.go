package history

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/toricodesthings/transcript-import-service/internal/types"
)

var schema = []string{`
CREATE TABLE IF NOT EXISTS import_history (
	id             BIGSERIAL PRIMARY KEY,
	session_id     TEXT        NOT NULL,
	image_name     TEXT        NOT NULL,
	image_sha256   TEXT        NOT NULL,
	engine         TEXT        NOT NULL,
	status         TEXT        NOT NULL,
	code           TEXT        NOT NULL DEFAULT '',
	terms_imported INTEGER     NOT NULL DEFAULT 0,
	raw_text       TEXT        NOT NULL DEFAULT '',
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
	`CREATE INDEX IF NOT EXISTS import_history_session_idx ON import_history (session_id, id DESC)`,
}

// Postgres records history in the import_history table.
type Postgres struct {
	db *pgxpool.Pool
}

// Connect opens a pool for dsn and makes sure the table exists.
func Connect(ctx context.Context, dsn string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	p := &Postgres{db: pool}
	if err := p.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return p, nil
}

func (p *Postgres) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := p.db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("create import_history: %w", err)
		}
	}
	return nil
}

func (p *Postgres) Close() { p.db.Close() }

func (p *Postgres) Record(ctx context.Context, e types.HistoryEntry) error {
	const q = `INSERT INTO import_history
		(session_id, image_name, image_sha256, engine, status, code, terms_imported, raw_text, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err := p.db.Exec(ctx, q,
		e.SessionID, e.ImageName, e.ImageSHA256, e.Engine, e.Status, e.Code, e.TermsImported, e.RawText, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert import_history: %w", err)
	}
	return nil
}

func (p *Postgres) List(ctx context.Context, sessionID string, limit int) ([]types.HistoryEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	const q = `SELECT id, session_id, image_name, image_sha256, engine, status, code, terms_imported, raw_text, created_at
		FROM import_history WHERE session_id = $1 ORDER BY id DESC LIMIT $2`
	rows, err := p.db.Query(ctx, q, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("query import_history: %w", err)
	}
	defer rows.Close()

	out := []types.HistoryEntry{}
	for rows.Next() {
		var e types.HistoryEntry
		if err := rows.Scan(&e.ID, &e.SessionID, &e.ImageName, &e.ImageSHA256, &e.Engine,
			&e.Status, &e.Code, &e.TermsImported, &e.RawText, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan import_history: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
