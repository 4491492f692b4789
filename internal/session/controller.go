// Package session runs one exam-taking screen: it loads the submission,
// autosaves answers with a per-question debounce, moves between questions
// and finalizes the submission exactly once, manually or when time runs out.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-session/internal/clock"
	"github.com/stemsi/exstem-session/internal/countdown"
	"github.com/stemsi/exstem-session/internal/draft"
	"github.com/stemsi/exstem-session/internal/examapi"
	"github.com/stemsi/exstem-session/internal/model"
)

var (
	ErrNotActive          = errors.New("exam session is not active")
	ErrSubmitInProgress   = errors.New("exam submission already in progress")
	ErrAlreadyInitialized = errors.New("exam session already initialized")
	ErrOrderOutOfRange    = errors.New("question order out of range")
	ErrUnsavedAnswers     = errors.New("answers could not be saved before submitting")
)

const (
	DefaultMCQDebounce    = 100 * time.Millisecond
	DefaultEssayDebounce  = 500 * time.Millisecond
	DefaultRequestTimeout = 10 * time.Second
	DefaultSubmitTimeout  = 30 * time.Second
	DefaultDraftTimeout   = 2 * time.Second
)

// API is the subset of the exam backend the controller drives.
type API interface {
	Start(ctx context.Context, examID uuid.UUID, password string) (*model.QuestionPayload, error)
	Resume(ctx context.Context, submissionID uuid.UUID) (*model.QuestionPayload, error)
	GetQuestion(ctx context.Context, submissionID uuid.UUID, order int) (*model.QuestionPayload, error)
	SubmitAnswer(ctx context.Context, submissionID, questionID uuid.UUID, answer model.Answer) error
	FinalSubmit(ctx context.Context, submissionID uuid.UUID) (*model.SubmitResult, error)
}

// Options tunes a Controller. Zero durations fall back to the defaults.
type Options struct {
	MCQDebounce   time.Duration
	EssayDebounce time.Duration
	// RequestTimeout bounds background autosaves.
	RequestTimeout time.Duration
	// SubmitTimeout bounds the automatic submit on expiry.
	SubmitTimeout time.Duration
	// DraftTimeout bounds one draft store write.
	DraftTimeout time.Duration

	// OnSubmitted runs once, after the submission is confirmed final.
	OnSubmitted func(model.SubmitResult)
	// OnAutoSubmitError runs when the submit triggered by expiry fails.
	OnAutoSubmitError func(error)
}

// Controller is the state machine of one exam screen. All methods are safe
// for concurrent use. The mutex is never held across a backend call or a
// draft store write.
type Controller struct {
	mu     sync.Mutex
	api    API
	drafts draft.Store
	timer  *countdown.Timer
	clk    clock.Clock
	log    zerolog.Logger
	opts   Options

	state   State
	booting bool
	closed  bool
	lastErr error

	examID       uuid.UUID
	submissionID uuid.UUID
	question     *model.Question
	order        int
	total        int
	saves        *saveTracker
	result       *model.SubmitResult
	// restored holds drafts read at initialization that no question
	// fetch has reconciled yet.
	restored map[uuid.UUID]string

	// expiryPending is set when time ran out while a submit was in flight.
	expiryPending bool
	draftSeq      uint64

	// inflight counts background saves a final submit must wait for.
	inflight sync.WaitGroup

	// draftMu orders draft writes; it is never taken while holding mu.
	draftMu      sync.Mutex
	drafted      map[uuid.UUID]uint64
	draftsClosed bool
}

// draftWrite is a draft store write decided under mu and performed after
// mu is released. seq orders writes to the same question.
type draftWrite struct {
	submissionID uuid.UUID
	questionID   uuid.UUID
	content      string
	seq          uint64
}

// New creates a Controller in the initializing state. The timer must not be
// shared with another controller.
func New(api API, drafts draft.Store, timer *countdown.Timer, clk clock.Clock, log zerolog.Logger, opts Options) *Controller {
	if opts.MCQDebounce <= 0 {
		opts.MCQDebounce = DefaultMCQDebounce
	}
	if opts.EssayDebounce <= 0 {
		opts.EssayDebounce = DefaultEssayDebounce
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = DefaultRequestTimeout
	}
	if opts.SubmitTimeout <= 0 {
		opts.SubmitTimeout = DefaultSubmitTimeout
	}
	if opts.DraftTimeout <= 0 {
		opts.DraftTimeout = DefaultDraftTimeout
	}
	return &Controller{
		api:     api,
		drafts:  drafts,
		timer:   timer,
		clk:     clk,
		log:     log.With().Str("component", "exam_session").Logger(),
		opts:    opts,
		state:   StateInitializing,
		saves:   newSaveTracker(),
		drafted: make(map[uuid.UUID]uint64),
	}
}

// Initialize starts the exam (or re-joins the submission already in
// progress) when resumeID is uuid.Nil, otherwise resumes resumeID. It may be
// retried after a failure.
func (c *Controller) Initialize(ctx context.Context, examID, resumeID uuid.UUID, password string) error {
	c.mu.Lock()
	if c.closed || c.booting || (c.state != StateInitializing && c.state != StateError) {
		c.mu.Unlock()
		return ErrAlreadyInitialized
	}
	c.booting = true
	c.state = StateInitializing
	c.examID = examID
	c.mu.Unlock()

	var (
		p   *model.QuestionPayload
		err error
	)
	if resumeID != uuid.Nil {
		p, err = c.api.Resume(ctx, resumeID)
	} else {
		p, err = c.api.Start(ctx, examID, password)
	}
	if err == nil && (p.TotalQuestions < 1 || p.CurrentOrder < 1) {
		err = fmt.Errorf("submission %s has no questions", p.SubmissionID)
	}

	var drafts map[uuid.UUID]string
	if err == nil {
		var derr error
		drafts, derr = c.drafts.ReadAll(ctx, p.SubmissionID)
		if derr != nil {
			c.log.Warn().Err(derr).Str("submission_id", p.SubmissionID.String()).Msg("Failed to read answer drafts")
		}
	}

	c.mu.Lock()
	c.booting = false
	if err != nil {
		c.state = StateError
		c.lastErr = err
		c.mu.Unlock()
		return fmt.Errorf("initialize exam session: %w", err)
	}
	if c.examID == uuid.Nil {
		c.examID = p.ExamID
	}
	c.submissionID = p.SubmissionID
	c.lastErr = nil
	c.restored = drafts
	w := c.applyLocked(p)
	c.state = StateActive
	remaining := p.RemainingSeconds
	c.mu.Unlock()

	c.writeDraft(w)
	c.timer.Reset(p.SubmissionID, remaining, c.onExpire)

	c.log.Info().
		Str("submission_id", p.SubmissionID.String()).
		Int("order", p.CurrentOrder).
		Int("total", p.TotalQuestions).
		Int("remaining", remaining).
		Msg("Exam session started")

	if remaining <= 0 {
		go c.autoSubmit()
	}
	return nil
}

// applyLocked makes p the current question and reconciles its answer.
// The server's answer wins over a draft left by an earlier run, and the
// draft is overwritten with it. An edit this controller has not got
// acknowledged yet is newer than anything the server returned and is kept.
// With no server answer, a draft is restored and queued for saving.
// The returned draft write, if any, is for the caller to perform once mu
// is released.
func (c *Controller) applyLocked(p *model.QuestionPayload) *draftWrite {
	q := p.Question
	c.question = &q
	c.order = p.CurrentOrder
	c.total = p.TotalQuestions

	slot := c.saves.slot(q.ID)
	localEdit := slot.dirty()
	content, hasDraft := c.restored[q.ID]
	delete(c.restored, q.ID)

	if p.ExistingAnswer != nil {
		server, err := model.DecodeAnswer(&q, *p.ExistingAnswer)
		if err != nil {
			c.log.Warn().Err(err).Str("question_id", q.ID.String()).Msg("Ignoring undecodable server answer")
			server = model.Answer{}
		}
		slot.acked = server
		if !localEdit {
			slot.latest = server
			return c.queueDraftLocked(q.ID, *p.ExistingAnswer)
		}
	} else if !localEdit {
		if hasDraft {
			restored, err := model.DecodeAnswer(&q, content)
			if err == nil && restored.Fits(&q) == nil {
				slot.latest = restored
			} else {
				c.log.Warn().Str("question_id", q.ID.String()).Msg("Ignoring undecodable answer draft")
			}
		}
	}

	if slot.dirty() {
		seq := c.saves.set(q.ID, slot.latest)
		c.armLocked(q.ID, seq, c.debounceFor(&q))
	}
	return nil
}

// SetAnswer records the answer to the current question. The draft is
// written before it returns, bounded by DraftTimeout; the backend save
// follows after the debounce.
func (c *Controller) SetAnswer(a model.Answer) error {
	c.mu.Lock()
	if c.closed || c.state != StateActive {
		c.mu.Unlock()
		return ErrNotActive
	}
	q := c.question
	if err := a.Fits(q); err != nil {
		c.mu.Unlock()
		return err
	}
	content, err := a.Encode()
	if err != nil {
		c.mu.Unlock()
		return err
	}

	seq := c.saves.set(q.ID, a)
	w := c.queueDraftLocked(q.ID, content)
	c.armLocked(q.ID, seq, c.debounceFor(q))
	c.mu.Unlock()

	c.writeDraft(w)
	return nil
}

func (c *Controller) queueDraftLocked(questionID uuid.UUID, content string) *draftWrite {
	c.draftSeq++
	return &draftWrite{
		submissionID: c.submissionID,
		questionID:   questionID,
		content:      content,
		seq:          c.draftSeq,
	}
}

// writeDraft stores w unless a newer write for the same question already
// landed or the drafts were cleared after submitting.
func (c *Controller) writeDraft(w *draftWrite) {
	if w == nil {
		return
	}
	c.draftMu.Lock()
	defer c.draftMu.Unlock()
	if c.draftsClosed || c.drafted[w.questionID] >= w.seq {
		return
	}
	c.drafted[w.questionID] = w.seq

	ctx, cancel := context.WithTimeout(context.Background(), c.opts.DraftTimeout)
	defer cancel()
	if err := c.drafts.Write(ctx, w.submissionID, w.questionID, w.content); err != nil {
		c.log.Warn().Err(err).Str("question_id", w.questionID.String()).Msg("Failed to write answer draft")
	}
}

// clearDrafts drops the submission's drafts and refuses later writes.
func (c *Controller) clearDrafts(submissionID uuid.UUID) {
	c.draftMu.Lock()
	defer c.draftMu.Unlock()
	c.draftsClosed = true

	ctx, cancel := context.WithTimeout(context.Background(), c.opts.DraftTimeout)
	defer cancel()
	if err := c.drafts.Clear(ctx, submissionID); err != nil {
		c.log.Warn().Err(err).Str("submission_id", submissionID.String()).Msg("Failed to clear answer drafts")
	}
}

func (c *Controller) debounceFor(q *model.Question) time.Duration {
	if q.Type == model.QuestionTypeEssay {
		return c.opts.EssayDebounce
	}
	return c.opts.MCQDebounce
}

func (c *Controller) armLocked(questionID uuid.UUID, seq uint64, d time.Duration) {
	c.saves.arm(questionID, c.clk.AfterFunc(d, func() { c.onDebounce(questionID, seq) }))
}

func (c *Controller) onDebounce(questionID uuid.UUID, seq uint64) {
	c.mu.Lock()
	slot, ok := c.saves.slots[questionID]
	if !ok || slot.seq != seq || c.closed {
		c.mu.Unlock()
		return
	}
	slot.pending = nil
	if !slot.dirty() || (c.state != StateActive && c.state != StateNavigating) {
		c.mu.Unlock()
		return
	}
	a := slot.latest
	sub := c.submissionID
	c.inflight.Add(1)
	c.mu.Unlock()

	defer c.inflight.Done()
	ctx, cancel := context.WithTimeout(context.Background(), c.opts.RequestTimeout)
	defer cancel()
	_ = c.save(ctx, sub, questionID, a)
}

// save sends one answer and records the ack. Failures are logged and left
// to the draft and the next trigger.
func (c *Controller) save(ctx context.Context, submissionID, questionID uuid.UUID, a model.Answer) error {
	err := c.api.SubmitAnswer(ctx, submissionID, questionID, a)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.log.Warn().Err(err).
			Str("submission_id", submissionID.String()).
			Str("question_id", questionID.String()).
			Msg("Autosave failed")
		return err
	}
	c.saves.ack(questionID, a)
	return nil
}

// FlushAnswer saves the current question's answer now, if it has changed
// since the last acknowledged save. A clean answer sends nothing.
func (c *Controller) FlushAnswer(ctx context.Context) error {
	c.mu.Lock()
	if c.closed || c.question == nil || (c.state != StateActive && c.state != StateNavigating) {
		c.mu.Unlock()
		return nil
	}
	qid := c.question.ID
	sub := c.submissionID
	a, dirty := c.saves.take(qid)
	c.mu.Unlock()

	if !dirty {
		return nil
	}
	return c.save(ctx, sub, qid, a)
}

// GoTo moves to the question at a 1-based order. The current answer's save
// is issued before the fetch; the fetch does not wait for it. On failure the
// controller stays on the current question.
func (c *Controller) GoTo(ctx context.Context, order int) error {
	c.mu.Lock()
	if c.closed || c.state != StateActive {
		c.mu.Unlock()
		return ErrNotActive
	}
	if order < 1 || order > c.total {
		total := c.total
		c.mu.Unlock()
		return fmt.Errorf("%w: %d of %d", ErrOrderOutOfRange, order, total)
	}
	c.state = StateNavigating
	sub := c.submissionID
	from := c.question.ID
	if a, dirty := c.saves.take(from); dirty {
		c.inflight.Add(1)
		go func() {
			defer c.inflight.Done()
			saveCtx, cancel := context.WithTimeout(context.Background(), c.opts.RequestTimeout)
			defer cancel()
			_ = c.save(saveCtx, sub, from, a)
		}()
	}
	c.mu.Unlock()

	p, err := c.api.GetQuestion(ctx, sub, order)

	c.mu.Lock()
	if c.state != StateNavigating {
		c.mu.Unlock()
		// A submit took over while the fetch was out.
		return ErrNotActive
	}
	c.state = StateActive
	if err != nil {
		c.lastErr = err
		c.mu.Unlock()
		return fmt.Errorf("load question %d: %w", order, err)
	}
	if p.SubmissionID != uuid.Nil && p.SubmissionID != sub {
		err = fmt.Errorf("load question %d: payload for submission %s", order, p.SubmissionID)
		c.lastErr = err
		c.mu.Unlock()
		return err
	}
	c.lastErr = nil
	w := c.applyLocked(p)
	c.mu.Unlock()

	c.writeDraft(w)
	return nil
}

func (c *Controller) GoToNext(ctx context.Context) error {
	c.mu.Lock()
	order := c.order + 1
	c.mu.Unlock()
	return c.GoTo(ctx, order)
}

func (c *Controller) GoToPrevious(ctx context.Context) error {
	c.mu.Lock()
	order := c.order - 1
	c.mu.Unlock()
	return c.GoTo(ctx, order)
}

// Submit finalizes the submission. Every unsaved answer is sent first. If a
// save fails for a reason a retry may fix, the final submit is not attempted
// and ErrUnsavedAnswers is returned; answers the backend refuses outright
// are logged and left behind. A backend reply saying the submission is
// already final counts as success. Calling Submit while another is in
// flight returns ErrSubmitInProgress; after success it returns the stored
// result.
func (c *Controller) Submit(ctx context.Context, manual bool) (*model.SubmitResult, error) {
	c.mu.Lock()
	switch {
	case c.state == StateSubmitted:
		res := *c.result
		c.mu.Unlock()
		return &res, nil
	case c.state == StateSubmitting:
		if !manual {
			c.expiryPending = true
		}
		c.mu.Unlock()
		return nil, ErrSubmitInProgress
	case c.closed || (c.state != StateActive && c.state != StateNavigating):
		c.mu.Unlock()
		return nil, ErrNotActive
	}
	c.state = StateSubmitting
	sub := c.submissionID
	pending := c.saves.takeAll()
	c.mu.Unlock()

	c.log.Info().
		Str("submission_id", sub.String()).
		Bool("manual", manual).
		Int("unsaved", len(pending)).
		Msg("Submitting exam")

	var (
		saveErr      error
		alreadyFinal bool
	)
	for _, p := range pending {
		err := c.save(ctx, sub, p.questionID, p.answer)
		switch {
		case err == nil:
		case errors.Is(err, examapi.ErrAlreadySubmitted):
			alreadyFinal = true
		case examapi.IsRejected(err):
			c.log.Warn().Err(err).
				Str("submission_id", sub.String()).
				Str("question_id", p.questionID.String()).
				Msg("Answer refused by the backend, submitting without it")
		case saveErr == nil:
			saveErr = err
		}
		if alreadyFinal {
			break
		}
	}
	c.inflight.Wait()

	var (
		res *model.SubmitResult
		err error
	)
	switch {
	case alreadyFinal:
		res = c.finalizedElsewhere(sub)
	case saveErr != nil:
		err = fmt.Errorf("%w: %w", ErrUnsavedAnswers, saveErr)
	default:
		res, err = c.api.FinalSubmit(ctx, sub)
		if errors.Is(err, examapi.ErrAlreadySubmitted) {
			res, err = c.finalizedElsewhere(sub), nil
		}
	}

	c.mu.Lock()
	if err != nil {
		c.state = StateActive
		c.lastErr = err
		retryExpiry := manual && c.expiryPending
		c.expiryPending = false
		c.mu.Unlock()
		c.log.Error().Err(err).Str("submission_id", sub.String()).Msg("Exam submit failed")
		if retryExpiry {
			go c.autoSubmit()
		}
		return nil, fmt.Errorf("submit exam: %w", err)
	}
	if res.SubmissionID == uuid.Nil {
		res.SubmissionID = sub
	}
	c.state = StateSubmitted
	c.result = res
	c.lastErr = nil
	c.expiryPending = false
	c.saves.disarmAll()
	onSubmitted := c.opts.OnSubmitted
	c.mu.Unlock()

	c.timer.Stop()
	c.clearDrafts(sub)
	c.log.Info().Str("submission_id", sub.String()).Msg("Exam submitted")

	if onSubmitted != nil {
		onSubmitted(*res)
	}
	out := *res
	return &out, nil
}

func (c *Controller) finalizedElsewhere(sub uuid.UUID) *model.SubmitResult {
	c.log.Info().Str("submission_id", sub.String()).Msg("Submission was already final")
	return &model.SubmitResult{SubmissionID: sub, Status: model.SubmissionStatusSubmitted, SubmittedAt: time.Now()}
}

func (c *Controller) onExpire() {
	c.autoSubmit()
}

// autoSubmit submits on expiry. When a manual submit is already in flight
// it is left to finish; if it fails, that submit starts autoSubmit again.
func (c *Controller) autoSubmit() {
	ctx, cancel := context.WithTimeout(context.Background(), c.opts.SubmitTimeout)
	defer cancel()

	c.log.Info().Msg("Time is up, submitting automatically")
	if _, err := c.Submit(ctx, false); err != nil {
		if errors.Is(err, ErrSubmitInProgress) || errors.Is(err, ErrNotActive) {
			return
		}
		if cb := c.opts.OnAutoSubmitError; cb != nil {
			cb(err)
		}
	}
}

// Close tears the screen down: pending debounces are dropped and the
// countdown stops. Drafts stay for the next run.
func (c *Controller) Close() {
	c.mu.Lock()
	c.closed = true
	c.saves.disarmAll()
	c.mu.Unlock()
	c.timer.Stop()
}

// View is a read-only snapshot for rendering.
type View struct {
	State        State
	ExamID       uuid.UUID
	SubmissionID uuid.UUID
	Order        int
	Total        int
	Question     *model.Question
	Answer       model.Answer
	// Unsaved is set while the backend does not have Answer yet.
	Unsaved bool
	Clock   countdown.Snapshot
	Err     error
	Result  *model.SubmitResult
}

func (c *Controller) Snapshot() View {
	c.mu.Lock()
	v := View{
		State:        c.state,
		ExamID:       c.examID,
		SubmissionID: c.submissionID,
		Order:        c.order,
		Total:        c.total,
		Err:          c.lastErr,
	}
	if c.question != nil {
		q := *c.question
		v.Question = &q
		if s, ok := c.saves.slots[q.ID]; ok {
			v.Answer = s.latest
			v.Unsaved = s.dirty()
		}
	}
	if c.result != nil {
		r := *c.result
		v.Result = &r
	}
	c.mu.Unlock()

	v.Clock = c.timer.Snapshot()
	return v
}
