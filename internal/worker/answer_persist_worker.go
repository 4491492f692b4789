package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-session/internal/config"
)

const retryDelay = 5 * time.Second

var errMalformed = errors.New("malformed queue entry")

// AnswerStore is the durable answer table.
type AnswerStore interface {
	Upsert(ctx context.Context, submissionID, questionID uuid.UUID, content string) error
}

// AnswerPersistWorker consumes the persist queue and UPSERTs answers into
// PostgreSQL.
type AnswerPersistWorker struct {
	store      AnswerStore
	rdb        *redis.Client
	queue      string
	deadLetter string
	log        zerolog.Logger
}

// NewAnswerPersistWorker creates a new AnswerPersistWorker.
func NewAnswerPersistWorker(store AnswerStore, rdb *redis.Client, log zerolog.Logger) *AnswerPersistWorker {
	return &AnswerPersistWorker{
		store:      store,
		rdb:        rdb,
		queue:      config.WorkerKey.PersistAnswersQueue,
		deadLetter: config.WorkerKey.PersistAnswersDeadLetter,
		log:        log.With().Str("component", "answer_persist_worker").Logger(),
	}
}

type answerPayload struct {
	SubmissionID string `json:"submission_id"`
	QuestionID   string `json:"question_id"`
	Content      string `json:"content"`
}

// Start runs the worker loop until ctx is cancelled, then drains the queue.
// Call in a goroutine; done is closed after the drain.
func (w *AnswerPersistWorker) Start(ctx context.Context, done chan<- struct{}) {
	defer close(done)
	w.log.Info().Msg("Worker started")

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Worker stopping...")
			drainCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			w.drain(drainCtx)
			cancel()
			w.log.Info().Msg("Worker stopped")
			return
		default:
			w.processNext(ctx)
		}
	}
}

func (w *AnswerPersistWorker) processNext(ctx context.Context) {
	// BLPop blocks until an item is available or timeout (1 second).
	result, err := w.rdb.BLPop(ctx, time.Second, w.queue).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) && ctx.Err() == nil {
			w.log.Error().Err(err).Msg("BLPop error")
			sleepCtx(ctx, time.Second)
		}
		return
	}
	if len(result) < 2 {
		return
	}

	err = w.persist(ctx, result[1])
	switch {
	case err == nil:
	case errors.Is(err, errMalformed):
		w.bury(result[1], err)
	default:
		w.log.Error().Err(err).Msg("Persist error, retrying in 5s")
		// Push back to queue for retry.
		w.rdb.RPush(context.Background(), w.queue, result[1])
		sleepCtx(ctx, retryDelay)
	}
}

// persist writes one queue entry. Entries that can never succeed return
// errMalformed.
func (w *AnswerPersistWorker) persist(ctx context.Context, raw string) error {
	var p answerPayload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return fmt.Errorf("%w: %v", errMalformed, err)
	}
	submissionID, err := uuid.Parse(p.SubmissionID)
	if err != nil {
		return fmt.Errorf("%w: submission_id: %v", errMalformed, err)
	}
	questionID, err := uuid.Parse(p.QuestionID)
	if err != nil {
		return fmt.Errorf("%w: question_id: %v", errMalformed, err)
	}
	return w.store.Upsert(ctx, submissionID, questionID, p.Content)
}

// bury moves an entry that can never be persisted out of the queue.
func (w *AnswerPersistWorker) bury(raw string, cause error) {
	w.log.Error().Err(cause).Str("payload", raw).Msg("Moving queue entry to dead letter")
	if err := w.rdb.RPush(context.Background(), w.deadLetter, raw).Err(); err != nil {
		w.log.Error().Err(err).Msg("Dead letter push failed, entry dropped")
	}
}

// drain processes all remaining items in the queue before shutdown.
func (w *AnswerPersistWorker) drain(ctx context.Context) {
	drained := 0
	for {
		raw, err := w.rdb.LPop(ctx, w.queue).Result()
		if err != nil {
			break
		}
		if err := w.persist(ctx, raw); errors.Is(err, errMalformed) {
			w.bury(raw, err)
			continue
		} else if err != nil {
			w.log.Error().Err(err).Msg("Drain persist error")
			w.rdb.RPush(context.Background(), w.queue, raw)
			break
		}
		drained++
	}

	if drained > 0 {
		w.log.Info().Int("count", drained).Msg("Drained remaining items")
	}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
