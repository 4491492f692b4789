// Package draft keeps the answers a student has set but the backend has not
// yet acknowledged. It is a cache of client intent: last write wins per
// question, nothing is merged, and the backend record always takes precedence.
package draft

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-session/internal/config"
	"github.com/stemsi/exstem-session/internal/database"
)

// Store is the per-submission draft cache.
type Store interface {
	Write(ctx context.Context, submissionID, questionID uuid.UUID, content string) error
	ReadAll(ctx context.Context, submissionID uuid.UUID) (map[uuid.UUID]string, error)
	// Clear drops every draft of the submission. Only called after a
	// confirmed final submit.
	Clear(ctx context.Context, submissionID uuid.UUID) error
}

func key(submissionID uuid.UUID) string {
	return config.CacheKey.DraftKey(submissionID.String())
}

// Open builds the store selected by cfg.DraftBackend. The returned close
// function releases the backing connection.
func Open(ctx context.Context, cfg *config.Config, log zerolog.Logger) (Store, func() error, error) {
	switch cfg.DraftBackend {
	case "memory":
		return NewMemoryStore(), func() error { return nil }, nil
	case "redis":
		rdb, err := database.NewRedisClient(ctx, cfg.DraftRedisURL, "exstem-taker-drafts", log)
		if err != nil {
			return nil, nil, fmt.Errorf("draft store: %w", err)
		}
		return NewRedisStore(rdb, cfg.DraftTTL), rdb.Close, nil
	case "sqlite", "":
		s, err := OpenSQLite(ctx, cfg.DraftSQLitePath)
		if err != nil {
			return nil, nil, err
		}
		log.Info().Str("path", cfg.DraftSQLitePath).Msg("Draft store on SQLite")
		return s, s.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown draft backend %q", cfg.DraftBackend)
	}
}
