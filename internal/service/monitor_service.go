package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-session/internal/config"
	ws "github.com/stemsi/exstem-session/internal/websocket"
)

// MonitorService fans submission activity out to proctors over Redis Pub/Sub.
// Publishing is best-effort: a dropped event never fails the student's request.
type MonitorService struct {
	rdb *redis.Client
	log zerolog.Logger
	now func() time.Time
}

// NewMonitorService creates a new MonitorService.
func NewMonitorService(rdb *redis.Client, log zerolog.Logger) *MonitorService {
	return &MonitorService{
		rdb: rdb,
		log: log.With().Str("component", "monitor_service").Logger(),
		now: time.Now,
	}
}

// Publish sends one event on the exam's monitor channel.
func (s *MonitorService) Publish(ctx context.Context, examID uuid.UUID, ev ws.MonitorEvent) {
	if ev.At.IsZero() {
		ev.At = s.now().UTC()
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		s.log.Error().Err(err).Msg("Encode monitor event")
		return
	}
	channel := config.CacheKey.ExamMonitorChannel(examID.String())
	if err := s.rdb.Publish(ctx, channel, payload).Err(); err != nil {
		s.log.Warn().Err(err).
			Str("exam_id", examID.String()).
			Str("type", string(ev.Type)).
			Msg("Monitor publish failed")
	}
}

// Subscribe attaches to the exam's monitor channel. The caller closes the
// returned subscription.
func (s *MonitorService) Subscribe(ctx context.Context, examID uuid.UUID) *redis.PubSub {
	return s.rdb.Subscribe(ctx, config.CacheKey.ExamMonitorChannel(examID.String()))
}
