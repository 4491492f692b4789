package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-session/internal/config"
	"github.com/stemsi/exstem-session/internal/model"
	"github.com/stemsi/exstem-session/internal/repository"
	ws "github.com/stemsi/exstem-session/internal/websocket"
)

// Submission errors. Handlers map each one to a response.ErrCode.
var (
	ErrExamNotAvailable    = errors.New("exam is not available")
	ErrInvalidExamPassword = errors.New("invalid exam password")
	ErrNoQuestions         = errors.New("exam has no questions")
	ErrSubmissionNotFound  = errors.New("submission not found")
	ErrNotSubmissionOwner  = errors.New("submission belongs to another student")
	ErrSubmissionFinalized = errors.New("submission already finalized")
	ErrQuestionNotFound    = errors.New("question not found")
	ErrQuestionNotInExam   = errors.New("question is not part of the exam")
	ErrTimeExhausted       = errors.New("submission time exhausted")
)

// SubmissionService runs the student side of an exam attempt. Answers are
// written to Redis first and reach PostgreSQL through the persist queue;
// final submission reconciles both.
type SubmissionService struct {
	examRepo       *repository.ExamRepository
	questionRepo   *repository.QuestionRepository
	submissionRepo *repository.SubmissionRepository
	answerRepo     *repository.AnswerRepository
	authService    *AuthService
	monitor        *MonitorService
	rdb            *redis.Client
	log            zerolog.Logger
	now            func() time.Time
}

// NewSubmissionService creates a new SubmissionService.
func NewSubmissionService(
	examRepo *repository.ExamRepository,
	questionRepo *repository.QuestionRepository,
	submissionRepo *repository.SubmissionRepository,
	answerRepo *repository.AnswerRepository,
	authService *AuthService,
	monitor *MonitorService,
	rdb *redis.Client,
	log zerolog.Logger,
) *SubmissionService {
	return &SubmissionService{
		examRepo:       examRepo,
		questionRepo:   questionRepo,
		submissionRepo: submissionRepo,
		answerRepo:     answerRepo,
		authService:    authService,
		monitor:        monitor,
		rdb:            rdb,
		log:            log.With().Str("component", "submission_service").Logger(),
		now:            time.Now,
	}
}

// Start creates the student's submission for an exam, or returns the one
// that already exists. Starting again after the final submit fails with
// ErrSubmissionFinalized.
func (s *SubmissionService) Start(ctx context.Context, examID uuid.UUID, studentID int, password string) (*model.QuestionPayload, error) {
	exam, err := s.examRepo.GetByID(ctx, examID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrExamNotAvailable
	}
	if err != nil {
		return nil, fmt.Errorf("get exam: %w", err)
	}

	if exam.PasswordProtected {
		if err := s.authService.CheckPassword(exam.PasswordHash, password); err != nil {
			return nil, ErrInvalidExamPassword
		}
	}

	existing, err := s.submissionRepo.GetByExamAndStudent(ctx, examID, studentID)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("check existing submission: %w", err)
	}

	// Re-joining (another device, a reload) returns the same submission.
	if existing != nil {
		if existing.Status.Final() {
			return nil, ErrSubmissionFinalized
		}
		return s.payload(ctx, existing, exam, existing.CurrentOrder)
	}

	if !exam.OpenAt(s.now()) {
		return nil, ErrExamNotAvailable
	}
	if exam.QuestionCount == 0 {
		return nil, ErrNoQuestions
	}

	sub := &model.Submission{
		ExamID:           examID,
		StudentID:        studentID,
		RemainingSeconds: int(exam.Duration().Seconds()),
	}
	if err := s.submissionRepo.Create(ctx, sub); err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("create submission: %w", err)
		}
		// Concurrent start detected.
		sub, err = s.submissionRepo.GetByExamAndStudent(ctx, examID, studentID)
		if err != nil {
			return nil, fmt.Errorf("concurrent start detected, but fetch failed: %w", err)
		}
		return s.payload(ctx, sub, exam, sub.CurrentOrder)
	}

	s.log.Info().
		Str("submission_id", sub.ID.String()).
		Str("exam_id", examID.String()).
		Int("student_id", studentID).
		Msg("Submission started")

	s.monitor.Publish(ctx, examID, ws.MonitorEvent{
		Type:         ws.EventStarted,
		SubmissionID: sub.ID,
		StudentID:    studentID,
	})

	return s.payload(ctx, sub, exam, 1)
}

// Resume returns the question the student was last on.
func (s *SubmissionService) Resume(ctx context.Context, submissionID uuid.UUID, studentID int) (*model.QuestionPayload, error) {
	sub, exam, err := s.active(ctx, submissionID, studentID)
	if err != nil {
		return nil, err
	}
	return s.payload(ctx, sub, exam, sub.CurrentOrder)
}

// GetQuestion returns the question at a 1-based order and records it as the
// student's current position.
func (s *SubmissionService) GetQuestion(ctx context.Context, submissionID uuid.UUID, studentID, order int) (*model.QuestionPayload, error) {
	sub, exam, err := s.active(ctx, submissionID, studentID)
	if err != nil {
		return nil, err
	}
	if order < 1 || order > exam.QuestionCount {
		return nil, ErrQuestionNotFound
	}
	p, err := s.payload(ctx, sub, exam, order)
	if err != nil {
		return nil, err
	}
	if err := s.submissionRepo.SetCurrentOrder(ctx, sub.ID, order); err != nil {
		s.log.Warn().Err(err).Str("submission_id", sub.ID.String()).Msg("Failed to record current order")
	}
	return p, nil
}

const saveGrace = 30 * time.Second

// persistedAnswer is one entry of the persist queue.
type persistedAnswer struct {
	SubmissionID string `json:"submission_id"`
	QuestionID   string `json:"question_id"`
	Content      string `json:"content"`
}

// SaveAnswer upserts one answer. It is idempotent for equal content.
func (s *SubmissionService) SaveAnswer(ctx context.Context, submissionID uuid.UUID, studentID int, req *model.SaveAnswerRequest) error {
	sub, exam, err := s.active(ctx, submissionID, studentID)
	if err != nil {
		return err
	}
	// Saves keep landing for a short grace after the deadline so the flush
	// that precedes an auto-submit is not lost.
	if RemainingUntil(s.now().Add(-saveGrace), sub.StartedAt, exam) <= 0 {
		return ErrTimeExhausted
	}

	ok, err := s.questionRepo.BelongsToExam(ctx, sub.ExamID, req.QuestionID)
	if err != nil {
		return fmt.Errorf("check question: %w", err)
	}
	if !ok {
		return ErrQuestionNotInExam
	}

	answersKey := config.CacheKey.SubmissionAnswersKey(sub.ID.String())
	payload, _ := json.Marshal(persistedAnswer{
		SubmissionID: sub.ID.String(),
		QuestionID:   req.QuestionID.String(),
		Content:      req.Content,
	})

	pipe := s.rdb.TxPipeline()
	pipe.HSet(ctx, answersKey, req.QuestionID.String(), req.Content)
	pipe.RPush(ctx, config.WorkerKey.PersistAnswersQueue, payload)
	if _, err := pipe.Exec(ctx); err != nil {
		// Redis is down: write through so the answer is not lost.
		s.log.Warn().Err(err).Str("submission_id", sub.ID.String()).Msg("Answer cache unavailable, writing through")
		if err := s.answerRepo.Upsert(ctx, sub.ID, req.QuestionID, req.Content); err != nil {
			return fmt.Errorf("save answer: %w", err)
		}
	}

	qid := req.QuestionID
	s.monitor.Publish(ctx, sub.ExamID, ws.MonitorEvent{
		Type:         ws.EventAnswerSaved,
		SubmissionID: sub.ID,
		StudentID:    sub.StudentID,
		QuestionID:   &qid,
	})
	return nil
}

// UpdateRemainingTime records the client's remaining time. The value never
// goes up: the stored remaining time is the minimum of every report and the
// wall-clock deadline. It returns the remaining time now in force.
func (s *SubmissionService) UpdateRemainingTime(ctx context.Context, submissionID uuid.UUID, studentID, seconds int) (int, error) {
	sub, exam, err := s.active(ctx, submissionID, studentID)
	if err != nil {
		return 0, err
	}

	remaining := min(s.remaining(ctx, sub, exam), seconds)
	key := config.CacheKey.SubmissionRemainingKey(sub.ID.String())
	if err := s.rdb.Set(ctx, key, remaining, exam.Duration()).Err(); err != nil {
		s.log.Warn().Err(err).Str("submission_id", sub.ID.String()).Msg("Failed to cache remaining time")
	}
	if err := s.submissionRepo.LowerRemaining(ctx, sub.ID, remaining); err != nil {
		return 0, fmt.Errorf("store remaining time: %w", err)
	}

	s.monitor.Publish(ctx, sub.ExamID, ws.MonitorEvent{
		Type:         ws.EventTimeSynced,
		SubmissionID: sub.ID,
		StudentID:    sub.StudentID,
		Remaining:    &remaining,
	})
	return remaining, nil
}

// Submit finalizes the submission and grades its choice questions. A second
// call, including one racing the first, returns ErrSubmissionFinalized.
func (s *SubmissionService) Submit(ctx context.Context, submissionID uuid.UUID, studentID int) (*model.SubmitResult, error) {
	sub, _, err := s.active(ctx, submissionID, studentID)
	if err != nil {
		return nil, err
	}

	answers, err := s.collectAnswers(ctx, sub.ID)
	if err != nil {
		return nil, err
	}
	if err := s.answerRepo.UpsertAll(ctx, sub.ID, answers); err != nil {
		return nil, fmt.Errorf("persist answers: %w", err)
	}

	keys, err := s.questionRepo.ListAnswerKeys(ctx, sub.ExamID)
	if err != nil {
		return nil, fmt.Errorf("list answer keys: %w", err)
	}
	score, manual := model.Grade(keys, answers)
	status := model.SubmissionStatusGraded
	if manual {
		status = model.SubmissionStatusSubmitted
	}

	submittedAt, err := s.submissionRepo.Finalize(ctx, sub.ID, status, score)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrSubmissionFinalized
	}
	if err != nil {
		return nil, fmt.Errorf("finalize submission: %w", err)
	}

	if err := s.rdb.Del(ctx,
		config.CacheKey.SubmissionAnswersKey(sub.ID.String()),
		config.CacheKey.SubmissionRemainingKey(sub.ID.String()),
	).Err(); err != nil {
		s.log.Warn().Err(err).Str("submission_id", sub.ID.String()).Msg("Failed to drop answer cache")
	}

	s.log.Info().
		Str("submission_id", sub.ID.String()).
		Float64("score", score).
		Str("status", string(status)).
		Int("answers", len(answers)).
		Msg("Submission finalized")

	s.monitor.Publish(ctx, sub.ExamID, ws.MonitorEvent{
		Type:         ws.EventSubmitted,
		SubmissionID: sub.ID,
		StudentID:    sub.StudentID,
		Score:        &score,
	})

	return &model.SubmitResult{SubmissionID: sub.ID, SubmittedAt: submittedAt, Status: status}, nil
}

// active loads a submission the student owns and may still change.
func (s *SubmissionService) active(ctx context.Context, submissionID uuid.UUID, studentID int) (*model.Submission, *model.Exam, error) {
	sub, err := s.submissionRepo.GetByID(ctx, submissionID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil, ErrSubmissionNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("get submission: %w", err)
	}
	if sub.StudentID != studentID {
		return nil, nil, ErrNotSubmissionOwner
	}
	if sub.Status.Final() {
		return nil, nil, ErrSubmissionFinalized
	}
	exam, err := s.examRepo.GetByID(ctx, sub.ExamID)
	if err != nil {
		return nil, nil, fmt.Errorf("get exam: %w", err)
	}
	return sub, exam, nil
}

func (s *SubmissionService) payload(ctx context.Context, sub *model.Submission, exam *model.Exam, order int) (*model.QuestionPayload, error) {
	if order < 1 {
		order = 1
	}
	q, err := s.questionRepo.GetByOrder(ctx, exam.ID, order)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrQuestionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get question: %w", err)
	}

	p := &model.QuestionPayload{
		SubmissionID:     sub.ID,
		ExamID:           exam.ID,
		CurrentOrder:     order,
		TotalQuestions:   exam.QuestionCount,
		RemainingSeconds: s.remaining(ctx, sub, exam),
		Question:         *q,
	}

	existing, err := s.existingAnswer(ctx, sub.ID, q.ID)
	if err != nil {
		return nil, err
	}
	p.ExistingAnswer = existing
	return p, nil
}

// existingAnswer reads the cached answer, falling back to PostgreSQL.
func (s *SubmissionService) existingAnswer(ctx context.Context, submissionID, questionID uuid.UUID) (*string, error) {
	content, err := s.rdb.HGet(ctx, config.CacheKey.SubmissionAnswersKey(submissionID.String()), questionID.String()).Result()
	if err == nil {
		return &content, nil
	}
	if !errors.Is(err, redis.Nil) {
		s.log.Warn().Err(err).Str("submission_id", submissionID.String()).Msg("Answer cache read failed")
	}

	content, err = s.answerRepo.Get(ctx, submissionID, questionID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get answer: %w", err)
	}
	return &content, nil
}

// collectAnswers merges the durable answers with the newer cached ones.
func (s *SubmissionService) collectAnswers(ctx context.Context, submissionID uuid.UUID) (map[uuid.UUID]string, error) {
	answers, err := s.answerRepo.ListBySubmission(ctx, submissionID)
	if err != nil {
		return nil, fmt.Errorf("list answers: %w", err)
	}
	cached, err := s.rdb.HGetAll(ctx, config.CacheKey.SubmissionAnswersKey(submissionID.String())).Result()
	if err != nil {
		s.log.Warn().Err(err).Str("submission_id", submissionID.String()).Msg("Answer cache read failed")
		return answers, nil
	}
	for field, content := range cached {
		qid, err := uuid.Parse(field)
		if err != nil {
			continue
		}
		answers[qid] = content
	}
	return answers, nil
}

// remaining is the time left: the wall-clock deadline, lowered by whatever
// the client last reported.
func (s *SubmissionService) remaining(ctx context.Context, sub *model.Submission, exam *model.Exam) int {
	wall := RemainingUntil(s.now(), sub.StartedAt, exam)

	reported := sub.RemainingSeconds
	key := config.CacheKey.SubmissionRemainingKey(sub.ID.String())
	val, err := s.rdb.Get(ctx, key).Result()
	switch {
	case err == nil:
		if n, convErr := strconv.Atoi(val); convErr == nil {
			reported = n
		}
	case errors.Is(err, redis.Nil):
		// Self-heal from PostgreSQL so the next read hits the cache.
		_ = s.rdb.Set(ctx, key, reported, exam.Duration()).Err()
	default:
		s.log.Warn().Err(err).Str("submission_id", sub.ID.String()).Msg("Remaining time cache read failed")
	}
	return max(0, min(wall, reported))
}

// RemainingUntil returns the whole seconds left of an attempt started at
// startedAt, bounded by the exam's closing time.
func RemainingUntil(now, startedAt time.Time, exam *model.Exam) int {
	deadline := startedAt.Add(exam.Duration())
	if exam.EndsAt != nil && exam.EndsAt.Before(deadline) {
		deadline = *exam.EndsAt
	}
	left := deadline.Sub(now)
	if left <= 0 {
		return 0
	}
	return int(left / time.Second)
}
