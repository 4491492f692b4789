package draft

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // driver: sqlite
)

const schemaSQLite = `
CREATE TABLE IF NOT EXISTS answer_drafts (
	draft_key   TEXT NOT NULL,
	question_id TEXT NOT NULL,
	content     TEXT NOT NULL,
	updated_at  INTEGER NOT NULL,
	PRIMARY KEY (draft_key, question_id)
);`

// SQLiteStore persists drafts in an on-device SQLite file, so they survive
// the process being killed between an edit and its acknowledgement.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the draft database at path.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	dsn := fmt.Sprintf("file:%s?mode=rwc&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open draft db: %w", err)
	}
	// One writer keeps last-write-wins ordering trivial.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping draft db: %w", err)
	}
	if _, err := db.ExecContext(ctx, schemaSQLite); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure draft schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Write(ctx context.Context, submissionID, questionID uuid.UUID, content string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO answer_drafts (draft_key, question_id, content, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (draft_key, question_id) DO UPDATE
		 SET content = excluded.content, updated_at = excluded.updated_at`,
		key(submissionID), questionID.String(), content, time.Now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("write draft: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ReadAll(ctx context.Context, submissionID uuid.UUID) (map[uuid.UUID]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT question_id, content FROM answer_drafts WHERE draft_key = ?`,
		key(submissionID),
	)
	if err != nil {
		return nil, fmt.Errorf("read drafts: %w", err)
	}
	defer rows.Close()

	out := make(map[uuid.UUID]string)
	for rows.Next() {
		var qid, content string
		if err := rows.Scan(&qid, &content); err != nil {
			return nil, fmt.Errorf("scan draft: %w", err)
		}
		id, err := uuid.Parse(qid)
		if err != nil {
			continue // Foreign row, not ours to interpret.
		}
		out[id] = content
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Clear(ctx context.Context, submissionID uuid.UUID) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM answer_drafts WHERE draft_key = ?`, key(submissionID),
	); err != nil {
		return fmt.Errorf("clear drafts: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
