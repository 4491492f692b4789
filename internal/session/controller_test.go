package session

import (
	"context"
	"errors"
	"net/http"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-session/internal/clock"
	"github.com/stemsi/exstem-session/internal/countdown"
	"github.com/stemsi/exstem-session/internal/draft"
	"github.com/stemsi/exstem-session/internal/examapi"
	"github.com/stemsi/exstem-session/internal/model"
	"github.com/stemsi/exstem-session/internal/response"
)

var errOffline = errors.New("network unreachable")

// fakeAPI is an in-memory exam backend. Answers it accepts are kept in
// stored and reported back as ExistingAnswer on later fetches.
type fakeAPI struct {
	mu           sync.Mutex
	submissionID uuid.UUID
	questions    []model.Question
	stored       map[uuid.UUID]string
	remaining    int

	startErr  error
	getErr    error
	saveErr   error
	submitErr error

	getEntered    chan struct{}
	getGate       chan struct{}
	submitEntered chan struct{}
	submitGate    chan struct{}

	calls        []string
	saves        []string
	saveAttempts int
	finals       int
	synced       []int
}

func newFakeAPI(questions ...model.Question) *fakeAPI {
	return &fakeAPI{
		submissionID: uuid.New(),
		questions:    questions,
		stored:       make(map[uuid.UUID]string),
		remaining:    3600,
	}
}

func (f *fakeAPI) payloadLocked(order int) *model.QuestionPayload {
	q := f.questions[order-1]
	p := &model.QuestionPayload{
		SubmissionID:     f.submissionID,
		CurrentOrder:     order,
		TotalQuestions:   len(f.questions),
		RemainingSeconds: f.remaining,
		Question:         q,
	}
	if s, ok := f.stored[q.ID]; ok {
		p.ExistingAnswer = &s
	}
	return p
}

func (f *fakeAPI) Start(_ context.Context, _ uuid.UUID, _ string) (*model.QuestionPayload, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "start")
	if f.startErr != nil {
		return nil, f.startErr
	}
	return f.payloadLocked(1), nil
}

func (f *fakeAPI) Resume(_ context.Context, _ uuid.UUID) (*model.QuestionPayload, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "resume")
	if f.startErr != nil {
		return nil, f.startErr
	}
	return f.payloadLocked(1), nil
}

func (f *fakeAPI) GetQuestion(_ context.Context, _ uuid.UUID, order int) (*model.QuestionPayload, error) {
	f.mu.Lock()
	f.calls = append(f.calls, "get")
	entered, gate := f.getEntered, f.getGate
	f.mu.Unlock()

	if entered != nil {
		entered <- struct{}{}
	}
	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.payloadLocked(order), nil
}

func (f *fakeAPI) SubmitAnswer(_ context.Context, _, questionID uuid.UUID, answer model.Answer) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saveAttempts++
	if f.saveErr != nil {
		return f.saveErr
	}
	content, err := answer.Encode()
	if err != nil {
		return err
	}
	f.calls = append(f.calls, "save:"+content)
	f.saves = append(f.saves, content)
	f.stored[questionID] = content
	return nil
}

func (f *fakeAPI) FinalSubmit(_ context.Context, submissionID uuid.UUID) (*model.SubmitResult, error) {
	f.mu.Lock()
	f.finals++
	f.calls = append(f.calls, "final")
	entered, gate, err := f.submitEntered, f.submitGate, f.submitErr
	f.mu.Unlock()

	if entered != nil {
		entered <- struct{}{}
	}
	if gate != nil {
		<-gate
	}
	if err != nil {
		return nil, err
	}
	return &model.SubmitResult{
		SubmissionID: submissionID,
		SubmittedAt:  time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
		Status:       model.SubmissionStatusSubmitted,
	}, nil
}

func (f *fakeAPI) UpdateRemainingTime(_ context.Context, _ uuid.UUID, seconds int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.synced = append(f.synced, seconds)
	return nil
}

func (f *fakeAPI) set(fn func(f *fakeAPI)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func (f *fakeAPI) savedContents() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.saves...)
}

func (f *fakeAPI) callLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeAPI) finalCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.finals
}

func mcq() model.Question {
	return model.Question{
		ID:   uuid.New(),
		Type: model.QuestionTypeMultipleChoice,
		Text: "Pick one",
		Options: []model.Option{
			{ID: "a", Text: "A"}, {ID: "b", Text: "B"}, {ID: "c", Text: "C"}, {ID: "d", Text: "D"},
		},
	}
}

func essay() model.Question {
	return model.Question{ID: uuid.New(), Type: model.QuestionTypeEssay, Text: "Explain"}
}

type harness struct {
	c      *Controller
	clk    *clock.Fake
	drafts *draft.MemoryStore
	timer  *countdown.Timer
}

func newHarness(t *testing.T, api *fakeAPI, opts Options) *harness {
	t.Helper()
	clk := clock.NewFake()
	drafts := draft.NewMemoryStore()
	timer := countdown.New(api, clk, zerolog.Nop(), countdown.Options{})
	c := New(api, drafts, timer, clk, zerolog.Nop(), opts)
	t.Cleanup(c.Close)
	return &harness{c: c, clk: clk, drafts: drafts, timer: timer}
}

func (h *harness) start(t *testing.T) {
	t.Helper()
	if err := h.c.Initialize(context.Background(), uuid.New(), uuid.Nil, ""); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
}

func mustSet(t *testing.T, c *Controller, a model.Answer) {
	t.Helper()
	if err := c.SetAnswer(a); err != nil {
		t.Fatalf("SetAnswer(%+v): %v", a, err)
	}
}

func assertSaves(t *testing.T, api *fakeAPI, want ...string) {
	t.Helper()
	got := api.savedContents()
	if len(got) == 0 && len(want) == 0 {
		return
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("saves = %q, want %q", got, want)
	}
}

func TestInitializeLoadsFirstQuestion(t *testing.T) {
	api := newFakeAPI(mcq(), essay(), mcq())
	h := newHarness(t, api, Options{})
	h.start(t)

	v := h.c.Snapshot()
	if v.State != StateActive || v.Order != 1 || v.Total != 3 {
		t.Fatalf("view = %+v", v)
	}
	if v.SubmissionID != api.submissionID {
		t.Fatalf("submission = %s, want %s", v.SubmissionID, api.submissionID)
	}
	if v.Clock.Remaining != 3600 || v.Clock.Display != "01:00:00" {
		t.Fatalf("clock = %+v", v.Clock)
	}
	if err := h.c.Initialize(context.Background(), uuid.New(), uuid.Nil, ""); !errors.Is(err, ErrAlreadyInitialized) {
		t.Fatalf("second Initialize err = %v", err)
	}
}

func TestInitializeFailureCanBeRetried(t *testing.T) {
	api := newFakeAPI(mcq())
	api.startErr = errOffline
	h := newHarness(t, api, Options{})

	if err := h.c.Initialize(context.Background(), uuid.New(), uuid.Nil, ""); !errors.Is(err, errOffline) {
		t.Fatalf("Initialize err = %v", err)
	}
	if v := h.c.Snapshot(); v.State != StateError || v.Err == nil {
		t.Fatalf("view after failure = %+v", v)
	}
	if err := h.c.SetAnswer(model.SingleChoice("a")); !errors.Is(err, ErrNotActive) {
		t.Fatalf("SetAnswer in error state err = %v", err)
	}

	api.set(func(f *fakeAPI) { f.startErr = nil })
	h.start(t)
	if v := h.c.Snapshot(); v.State != StateActive || v.Err != nil {
		t.Fatalf("view after retry = %+v", v)
	}
}

func TestStartRejoinsExistingSubmission(t *testing.T) {
	api := newFakeAPI(mcq())
	first := newHarness(t, api, Options{})
	first.start(t)
	first.c.Close()

	second := newHarness(t, api, Options{})
	second.start(t)

	if a, b := first.c.Snapshot().SubmissionID, second.c.Snapshot().SubmissionID; a != b {
		t.Fatalf("rejoin created a new submission: %s vs %s", a, b)
	}
}

func TestResumeCountsDownFromServerRemaining(t *testing.T) {
	api := newFakeAPI(mcq())
	api.remaining = 90
	h := newHarness(t, api, Options{})

	if err := h.c.Initialize(context.Background(), uuid.Nil, api.submissionID, ""); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if got := api.callLog(); got[0] != "resume" {
		t.Fatalf("calls = %q", got)
	}
	if r := h.timer.Remaining(); r != 90 {
		t.Fatalf("remaining = %d, want 90", r)
	}

	h.clk.Advance(3 * time.Second)
	if r := h.timer.Remaining(); r != 87 {
		t.Fatalf("remaining after 3s = %d, want 87", r)
	}
	h.clk.Advance(2 * time.Second)
	api.mu.Lock()
	synced := append([]int(nil), api.synced...)
	api.mu.Unlock()
	if !reflect.DeepEqual(synced, []int{85}) {
		t.Fatalf("synced = %v", synced)
	}
}

func TestSingleChoiceDebounceKeepsLastValue(t *testing.T) {
	api := newFakeAPI(mcq())
	h := newHarness(t, api, Options{})
	h.start(t)

	mustSet(t, h.c, model.SingleChoice("b"))
	h.clk.Advance(50 * time.Millisecond)
	mustSet(t, h.c, model.SingleChoice("c"))

	h.clk.Advance(99 * time.Millisecond)
	assertSaves(t, api)

	h.clk.Advance(time.Millisecond)
	assertSaves(t, api, "c")

	h.clk.Advance(time.Second)
	assertSaves(t, api, "c")
}

func TestEssayDebounceCoalescesTyping(t *testing.T) {
	api := newFakeAPI(essay())
	h := newHarness(t, api, Options{})
	h.start(t)

	mustSet(t, h.c, model.TextAnswer("Hello"))
	h.clk.Advance(200 * time.Millisecond)
	mustSet(t, h.c, model.TextAnswer("Hello world"))

	h.clk.Advance(499 * time.Millisecond)
	assertSaves(t, api)

	h.clk.Advance(time.Millisecond)
	assertSaves(t, api, "Hello world")
}

func TestSetAnswerWritesDraftBeforeReturning(t *testing.T) {
	q := mcq()
	api := newFakeAPI(q)
	h := newHarness(t, api, Options{})
	h.start(t)

	mustSet(t, h.c, model.SingleChoice("d"))

	got, err := h.drafts.ReadAll(context.Background(), api.submissionID)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if got[q.ID] != "d" {
		t.Fatalf("draft = %q, want d", got[q.ID])
	}
	if v := h.c.Snapshot(); !v.Unsaved || !v.Answer.Equal(model.SingleChoice("d")) {
		t.Fatalf("view = %+v", v)
	}
}

func TestSetAnswerRejectsWrongShape(t *testing.T) {
	api := newFakeAPI(mcq())
	h := newHarness(t, api, Options{})
	h.start(t)

	if err := h.c.SetAnswer(model.TextAnswer("free text")); !errors.Is(err, model.ErrAnswerKindMismatch) {
		t.Fatalf("text on choice question err = %v", err)
	}
	if err := h.c.SetAnswer(model.SingleChoice("z")); !errors.Is(err, model.ErrAnswerKindMismatch) {
		t.Fatalf("unknown option err = %v", err)
	}
	h.clk.Advance(time.Second)
	assertSaves(t, api)
}

func TestFlushSendsOnlyChangedAnswers(t *testing.T) {
	api := newFakeAPI(mcq())
	h := newHarness(t, api, Options{})
	h.start(t)
	ctx := context.Background()

	if err := h.c.FlushAnswer(ctx); err != nil {
		t.Fatalf("FlushAnswer: %v", err)
	}
	assertSaves(t, api)

	mustSet(t, h.c, model.SingleChoice("b"))
	if err := h.c.FlushAnswer(ctx); err != nil {
		t.Fatalf("FlushAnswer: %v", err)
	}
	assertSaves(t, api, "b")

	// The debounce was cancelled by the flush.
	h.clk.Advance(time.Second)
	if err := h.c.FlushAnswer(ctx); err != nil {
		t.Fatalf("FlushAnswer: %v", err)
	}
	assertSaves(t, api, "b")
	if v := h.c.Snapshot(); v.Unsaved {
		t.Fatal("answer still marked unsaved after ack")
	}
}

func TestOfflineEditsRecoverWithFinalValue(t *testing.T) {
	q := mcq()
	api := newFakeAPI(q)
	h := newHarness(t, api, Options{})
	h.start(t)

	api.set(func(f *fakeAPI) { f.saveErr = errOffline })
	for _, opt := range []string{"a", "b", "c"} {
		mustSet(t, h.c, model.SingleChoice(opt))
		h.clk.Advance(100 * time.Millisecond)
	}
	api.mu.Lock()
	attempts := api.saveAttempts
	api.mu.Unlock()
	if attempts != 3 {
		t.Fatalf("save attempts = %d, want 3", attempts)
	}
	assertSaves(t, api)

	drafts, _ := h.drafts.ReadAll(context.Background(), api.submissionID)
	if drafts[q.ID] != "c" {
		t.Fatalf("draft = %q, want c", drafts[q.ID])
	}

	api.set(func(f *fakeAPI) { f.saveErr = nil })
	if err := h.c.FlushAnswer(context.Background()); err != nil {
		t.Fatalf("FlushAnswer: %v", err)
	}
	assertSaves(t, api, "c")
}

func TestNavigationSavesCurrentAnswer(t *testing.T) {
	api := newFakeAPI(mcq(), essay())
	h := newHarness(t, api, Options{})
	h.start(t)

	mustSet(t, h.c, model.SingleChoice("b"))
	if err := h.c.GoToNext(context.Background()); err != nil {
		t.Fatalf("GoToNext: %v", err)
	}
	h.c.inflight.Wait()
	assertSaves(t, api, "b")

	v := h.c.Snapshot()
	if v.State != StateActive || v.Order != 2 || v.Question.Type != model.QuestionTypeEssay {
		t.Fatalf("view = %+v", v)
	}

	// No second save from the cancelled debounce.
	h.clk.Advance(time.Second)
	assertSaves(t, api, "b")

	if err := h.c.GoToPrevious(context.Background()); err != nil {
		t.Fatalf("GoToPrevious: %v", err)
	}
	if v := h.c.Snapshot(); !v.Answer.Equal(model.SingleChoice("b")) || v.Unsaved {
		t.Fatalf("answer after returning = %+v", v)
	}
}

func TestNavigationBounds(t *testing.T) {
	api := newFakeAPI(mcq(), mcq())
	h := newHarness(t, api, Options{})
	h.start(t)
	ctx := context.Background()

	if err := h.c.GoToPrevious(ctx); !errors.Is(err, ErrOrderOutOfRange) {
		t.Fatalf("GoToPrevious at first err = %v", err)
	}
	if err := h.c.GoTo(ctx, 3); !errors.Is(err, ErrOrderOutOfRange) {
		t.Fatalf("GoTo(3) err = %v", err)
	}
	if err := h.c.GoTo(ctx, 2); err != nil {
		t.Fatalf("GoTo(2): %v", err)
	}
	if err := h.c.GoToNext(ctx); !errors.Is(err, ErrOrderOutOfRange) {
		t.Fatalf("GoToNext at last err = %v", err)
	}
	if v := h.c.Snapshot(); v.State != StateActive || v.Order != 2 {
		t.Fatalf("view = %+v", v)
	}
}

func TestNavigationFailureStaysOnQuestion(t *testing.T) {
	api := newFakeAPI(mcq(), mcq())
	h := newHarness(t, api, Options{})
	h.start(t)
	api.set(func(f *fakeAPI) { f.getErr = errOffline })

	if err := h.c.GoToNext(context.Background()); !errors.Is(err, errOffline) {
		t.Fatalf("GoToNext err = %v", err)
	}
	v := h.c.Snapshot()
	if v.State != StateActive || v.Order != 1 || v.Err == nil {
		t.Fatalf("view = %+v", v)
	}
	mustSet(t, h.c, model.SingleChoice("a"))
}

func TestSubmitDuringNavigationDiscardsFetch(t *testing.T) {
	api := newFakeAPI(mcq(), mcq())
	api.getEntered = make(chan struct{}, 1)
	api.getGate = make(chan struct{})
	h := newHarness(t, api, Options{})
	h.start(t)

	navErr := make(chan error, 1)
	go func() { navErr <- h.c.GoToNext(context.Background()) }()
	<-api.getEntered

	if err := h.c.SetAnswer(model.SingleChoice("a")); !errors.Is(err, ErrNotActive) {
		t.Fatalf("SetAnswer while navigating err = %v", err)
	}
	if _, err := h.c.Submit(context.Background(), false); err != nil {
		t.Fatalf("Submit while navigating: %v", err)
	}

	close(api.getGate)
	if err := <-navErr; !errors.Is(err, ErrNotActive) {
		t.Fatalf("navigation err = %v", err)
	}
	if v := h.c.Snapshot(); v.State != StateSubmitted || v.Order != 1 {
		t.Fatalf("view = %+v", v)
	}
}

func TestServerAnswerWinsOverDraft(t *testing.T) {
	q := mcq()
	api := newFakeAPI(q)
	api.stored[q.ID] = "a"
	h := newHarness(t, api, Options{})
	_ = h.drafts.Write(context.Background(), api.submissionID, q.ID, "b")

	h.start(t)

	v := h.c.Snapshot()
	if !v.Answer.Equal(model.SingleChoice("a")) || v.Unsaved {
		t.Fatalf("view = %+v", v)
	}
	drafts, _ := h.drafts.ReadAll(context.Background(), api.submissionID)
	if drafts[q.ID] != "a" {
		t.Fatalf("draft = %q, want it overwritten with a", drafts[q.ID])
	}
	h.clk.Advance(time.Second)
	assertSaves(t, api)
}

func TestDraftRestoredWhenServerHasNoAnswer(t *testing.T) {
	first, second := essay(), mcq()
	api := newFakeAPI(first, second)
	h := newHarness(t, api, Options{})
	_ = h.drafts.Write(context.Background(), api.submissionID, first.ID, "Hello")
	_ = h.drafts.Write(context.Background(), api.submissionID, second.ID, "c")

	h.start(t)

	v := h.c.Snapshot()
	if !v.Answer.Equal(model.TextAnswer("Hello")) || !v.Unsaved {
		t.Fatalf("view = %+v", v)
	}
	h.clk.Advance(500 * time.Millisecond)
	assertSaves(t, api, "Hello")

	// Drafts of other questions are restored when they are visited.
	if err := h.c.GoToNext(context.Background()); err != nil {
		t.Fatalf("GoToNext: %v", err)
	}
	if v := h.c.Snapshot(); !v.Answer.Equal(model.SingleChoice("c")) || !v.Unsaved {
		t.Fatalf("second question view = %+v", v)
	}
	h.clk.Advance(100 * time.Millisecond)
	assertSaves(t, api, "Hello", "c")
}

func TestExpiryFlushesPendingEssayThenSubmits(t *testing.T) {
	api := newFakeAPI(essay())
	api.remaining = 2
	submitted := make(chan model.SubmitResult, 1)
	h := newHarness(t, api, Options{OnSubmitted: func(r model.SubmitResult) { submitted <- r }})
	h.start(t)

	h.clk.Advance(1800 * time.Millisecond)
	mustSet(t, h.c, model.TextAnswer("Final words"))
	h.clk.Advance(200 * time.Millisecond)

	want := []string{"start", "save:Final words", "final"}
	if got := api.callLog(); !reflect.DeepEqual(got, want) {
		t.Fatalf("calls = %q, want %q", got, want)
	}
	select {
	case r := <-submitted:
		if r.SubmissionID != api.submissionID {
			t.Fatalf("result = %+v", r)
		}
	default:
		t.Fatal("OnSubmitted not called")
	}

	v := h.c.Snapshot()
	if v.State != StateSubmitted || v.Clock.Remaining != 0 || v.Result == nil {
		t.Fatalf("view = %+v", v)
	}
	drafts, _ := h.drafts.ReadAll(context.Background(), api.submissionID)
	if len(drafts) != 0 {
		t.Fatalf("drafts not cleared: %v", drafts)
	}

	h.clk.Advance(10 * time.Second)
	if n := api.finalCount(); n != 1 {
		t.Fatalf("final submits = %d, want 1", n)
	}
}

func TestExpiredOnArrivalSubmitsImmediately(t *testing.T) {
	api := newFakeAPI(mcq())
	api.remaining = 0
	submitted := make(chan model.SubmitResult, 1)
	h := newHarness(t, api, Options{OnSubmitted: func(r model.SubmitResult) { submitted <- r }})
	h.start(t)

	select {
	case <-submitted:
	case <-time.After(2 * time.Second):
		t.Fatal("no automatic submit for an exam with no time left")
	}
	if n := api.finalCount(); n != 1 {
		t.Fatalf("final submits = %d, want 1", n)
	}
}

func TestConcurrentSubmitIsExactlyOnce(t *testing.T) {
	api := newFakeAPI(mcq())
	api.submitEntered = make(chan struct{}, 1)
	api.submitGate = make(chan struct{})
	h := newHarness(t, api, Options{})
	h.start(t)

	type outcome struct {
		res *model.SubmitResult
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := h.c.Submit(context.Background(), true)
		done <- outcome{res, err}
	}()
	<-api.submitEntered

	if _, err := h.c.Submit(context.Background(), true); !errors.Is(err, ErrSubmitInProgress) {
		t.Fatalf("second Submit err = %v", err)
	}
	// Expiry racing the manual submit is a no-op.
	h.c.onExpire()

	close(api.submitGate)
	out := <-done
	if out.err != nil {
		t.Fatalf("Submit: %v", out.err)
	}
	if out.res.Status != model.SubmissionStatusSubmitted {
		t.Fatalf("result = %+v", out.res)
	}

	again, err := h.c.Submit(context.Background(), true)
	if err != nil || again.SubmissionID != out.res.SubmissionID {
		t.Fatalf("Submit after success = %+v, %v", again, err)
	}
	if n := api.finalCount(); n != 1 {
		t.Fatalf("final submits = %d, want 1", n)
	}
}

func TestSubmitTreatsAlreadyFinalizedAsSuccess(t *testing.T) {
	api := newFakeAPI(mcq())
	api.submitErr = &examapi.Error{StatusCode: http.StatusConflict, Code: response.ErrSubmissionAlreadyFinal}
	h := newHarness(t, api, Options{})
	h.start(t)

	res, err := h.c.Submit(context.Background(), true)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if res.SubmissionID != api.submissionID || res.Status != model.SubmissionStatusSubmitted {
		t.Fatalf("result = %+v", res)
	}
	if v := h.c.Snapshot(); v.State != StateSubmitted {
		t.Fatalf("state = %s", v.State)
	}
}

func TestSubmitFailureAllowsRetry(t *testing.T) {
	q := mcq()
	api := newFakeAPI(q)
	api.submitErr = &examapi.Error{StatusCode: http.StatusInternalServerError, Code: response.ErrInternal}
	h := newHarness(t, api, Options{})
	h.start(t)

	mustSet(t, h.c, model.SingleChoice("b"))
	if _, err := h.c.Submit(context.Background(), true); err == nil {
		t.Fatal("Submit succeeded against a failing backend")
	}
	assertSaves(t, api, "b")

	v := h.c.Snapshot()
	if v.State != StateActive || v.Err == nil {
		t.Fatalf("view = %+v", v)
	}
	drafts, _ := h.drafts.ReadAll(context.Background(), api.submissionID)
	if drafts[q.ID] != "b" {
		t.Fatalf("drafts cleared after failed submit: %v", drafts)
	}

	api.set(func(f *fakeAPI) { f.submitErr = nil })
	if _, err := h.c.Submit(context.Background(), true); err != nil {
		t.Fatalf("retry Submit: %v", err)
	}
	if n := api.finalCount(); n != 2 {
		t.Fatalf("final submits = %d, want 2", n)
	}
	assertSaves(t, api, "b")
}

func TestSubmitAbortsWhenAnswersCannotBeSaved(t *testing.T) {
	api := newFakeAPI(essay())
	h := newHarness(t, api, Options{})
	h.start(t)

	mustSet(t, h.c, model.TextAnswer("unsaved"))
	api.set(func(f *fakeAPI) { f.saveErr = errOffline })

	if _, err := h.c.Submit(context.Background(), true); !errors.Is(err, ErrUnsavedAnswers) {
		t.Fatalf("Submit err = %v", err)
	}
	if n := api.finalCount(); n != 0 {
		t.Fatalf("final submit issued with unsaved answers")
	}

	api.set(func(f *fakeAPI) { f.saveErr = nil })
	if _, err := h.c.Submit(context.Background(), true); err != nil {
		t.Fatalf("retry Submit: %v", err)
	}
	assertSaves(t, api, "unsaved")
}

func TestCloseDropsPendingSaves(t *testing.T) {
	q := essay()
	api := newFakeAPI(q)
	h := newHarness(t, api, Options{})
	h.start(t)

	mustSet(t, h.c, model.TextAnswer("later"))
	h.c.Close()
	h.clk.Advance(time.Second)
	assertSaves(t, api)

	drafts, _ := h.drafts.ReadAll(context.Background(), api.submissionID)
	if drafts[q.ID] != "later" {
		t.Fatalf("draft = %q", drafts[q.ID])
	}
	if err := h.c.SetAnswer(model.TextAnswer("x")); !errors.Is(err, ErrNotActive) {
		t.Fatalf("SetAnswer after Close err = %v", err)
	}
}

func TestDebouncesOfDifferentQuestionsAreIndependent(t *testing.T) {
	clk := clock.NewFake()
	tr := newSaveTracker()
	q1, q2 := uuid.New(), uuid.New()
	var fired []uuid.UUID

	tr.set(q1, model.SingleChoice("a"))
	tr.arm(q1, clk.AfterFunc(100*time.Millisecond, func() { fired = append(fired, q1) }))
	tr.set(q2, model.TextAnswer("b"))
	tr.arm(q2, clk.AfterFunc(500*time.Millisecond, func() { fired = append(fired, q2) }))

	clk.Advance(time.Second)
	if !reflect.DeepEqual(fired, []uuid.UUID{q1, q2}) {
		t.Fatalf("fired = %v", fired)
	}

	tr.ack(q1, model.SingleChoice("a"))
	pending := tr.takeAll()
	if len(pending) != 1 || pending[0].questionID != q2 {
		t.Fatalf("takeAll = %+v", pending)
	}
}

func TestSubmitPastAnswersTheBackendRefuses(t *testing.T) {
	cases := []struct {
		name       string
		saveErr    error
		wantFinals int
	}{
		{
			name:       "already finalized",
			saveErr:    &examapi.Error{StatusCode: http.StatusConflict, Code: response.ErrSubmissionAlreadyFinal},
			wantFinals: 0,
		},
		{
			name:       "time exhausted",
			saveErr:    &examapi.Error{StatusCode: http.StatusConflict, Code: response.ErrSubmissionTimeExhausted},
			wantFinals: 1,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			api := newFakeAPI(essay())
			h := newHarness(t, api, Options{})
			h.start(t)

			mustSet(t, h.c, model.TextAnswer("late paragraph"))
			api.set(func(f *fakeAPI) { f.saveErr = tc.saveErr })

			res, err := h.c.Submit(context.Background(), true)
			if err != nil {
				t.Fatalf("Submit: %v", err)
			}
			if res.SubmissionID != api.submissionID || res.Status != model.SubmissionStatusSubmitted {
				t.Fatalf("result = %+v", res)
			}
			if v := h.c.Snapshot(); v.State != StateSubmitted {
				t.Fatalf("state = %s", v.State)
			}
			if n := api.finalCount(); n != tc.wantFinals {
				t.Fatalf("final submits = %d, want %d", n, tc.wantFinals)
			}
		})
	}
}

func TestExpiryDuringFailedManualSubmitStillSubmits(t *testing.T) {
	api := newFakeAPI(mcq())
	api.submitErr = &examapi.Error{StatusCode: http.StatusServiceUnavailable, Code: response.ErrInternal}
	api.submitEntered = make(chan struct{}, 2)
	api.submitGate = make(chan struct{})
	submitted := make(chan model.SubmitResult, 1)
	h := newHarness(t, api, Options{OnSubmitted: func(r model.SubmitResult) { submitted <- r }})
	h.start(t)

	done := make(chan error, 1)
	go func() {
		_, err := h.c.Submit(context.Background(), true)
		done <- err
	}()
	<-api.submitEntered
	h.c.onExpire()

	// The backend recovers after the manual attempt has already failed.
	api.set(func(f *fakeAPI) { f.submitErr = nil })
	close(api.submitGate)
	if err := <-done; err == nil {
		t.Fatal("manual Submit succeeded against a failing backend")
	}

	select {
	case <-submitted:
	case <-time.After(2 * time.Second):
		t.Fatal("expiry during the failed submit was never retried")
	}
	if v := h.c.Snapshot(); v.State != StateSubmitted {
		t.Fatalf("state = %s", v.State)
	}
	if n := api.finalCount(); n != 2 {
		t.Fatalf("final submits = %d, want 2", n)
	}
}

func TestExpiryRetryReportsFailure(t *testing.T) {
	api := newFakeAPI(mcq())
	api.submitErr = &examapi.Error{StatusCode: http.StatusServiceUnavailable, Code: response.ErrInternal}
	api.submitEntered = make(chan struct{}, 2)
	api.submitGate = make(chan struct{})
	autoErr := make(chan error, 1)
	h := newHarness(t, api, Options{OnAutoSubmitError: func(err error) { autoErr <- err }})
	h.start(t)

	done := make(chan error, 1)
	go func() {
		_, err := h.c.Submit(context.Background(), true)
		done <- err
	}()
	<-api.submitEntered
	h.c.onExpire()
	close(api.submitGate)
	<-done

	select {
	case err := <-autoErr:
		if err == nil {
			t.Fatal("OnAutoSubmitError called with nil")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("OnAutoSubmitError not called")
	}
	if n := api.finalCount(); n != 2 {
		t.Fatalf("final submits = %d, want 2", n)
	}
}

// stalledStore holds every draft write until release is closed.
type stalledStore struct {
	*draft.MemoryStore
	entered chan struct{}
	release chan struct{}
}

func (s *stalledStore) Write(ctx context.Context, submissionID, questionID uuid.UUID, content string) error {
	s.entered <- struct{}{}
	select {
	case <-s.release:
	case <-ctx.Done():
		return ctx.Err()
	}
	return s.MemoryStore.Write(ctx, submissionID, questionID, content)
}

func TestSlowDraftStoreDoesNotBlockTheScreen(t *testing.T) {
	q := mcq()
	api := newFakeAPI(q)
	clk := clock.NewFake()
	store := &stalledStore{
		MemoryStore: draft.NewMemoryStore(),
		entered:     make(chan struct{}, 1),
		release:     make(chan struct{}),
	}
	timer := countdown.New(api, clk, zerolog.Nop(), countdown.Options{})
	c := New(api, store, timer, clk, zerolog.Nop(), Options{DraftTimeout: time.Minute})
	t.Cleanup(c.Close)
	if err := c.Initialize(context.Background(), uuid.New(), uuid.Nil, ""); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	set := make(chan error, 1)
	go func() { set <- c.SetAnswer(model.SingleChoice("b")) }()
	<-store.entered

	viewed := make(chan View, 1)
	go func() { viewed <- c.Snapshot() }()
	select {
	case v := <-viewed:
		if !v.Unsaved || !v.Answer.Equal(model.SingleChoice("b")) {
			t.Fatalf("view = %+v", v)
		}
	case <-time.After(time.Second):
		t.Fatal("Snapshot waited on the draft store")
	}

	// The debounced save goes out while the draft write is still stuck.
	clk.Advance(100 * time.Millisecond)
	assertSaves(t, api, "b")

	close(store.release)
	if err := <-set; err != nil {
		t.Fatalf("SetAnswer: %v", err)
	}
	got, _ := store.ReadAll(context.Background(), api.submissionID)
	if got[q.ID] != "b" {
		t.Fatalf("draft = %q, want b", got[q.ID])
	}
}

func TestSubmitClearsDraftsAfterLateWrite(t *testing.T) {
	q := mcq()
	api := newFakeAPI(q)
	h := newHarness(t, api, Options{})
	h.start(t)

	mustSet(t, h.c, model.SingleChoice("a"))
	h.c.mu.Lock()
	stale := h.c.queueDraftLocked(q.ID, "a")
	h.c.mu.Unlock()

	if _, err := h.c.Submit(context.Background(), true); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	h.c.writeDraft(stale)
	if got, _ := h.drafts.ReadAll(context.Background(), api.submissionID); len(got) != 0 {
		t.Fatalf("draft written after clear: %v", got)
	}
}
