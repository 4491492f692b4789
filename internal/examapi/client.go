// Package examapi is the exam taker's adapter over the backend exam REST API.
// Answers cross this boundary as model.Answer and are encoded to the wire's
// plain-string convention here.
package examapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-session/internal/model"
	"github.com/stemsi/exstem-session/internal/response"
)

// Options configures a Client.
type Options struct {
	// BaseURL is the API root, e.g. http://localhost:8080/api/v1.
	BaseURL string
	Token   string
	Timeout time.Duration
	// HTTPClient overrides the transport; Timeout is ignored when set.
	HTTPClient *http.Client
}

// Client talks to the student exam endpoints.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	log     zerolog.Logger
}

// New creates a Client.
func New(opts Options, log zerolog.Logger) *Client {
	h := opts.HTTPClient
	if h == nil {
		h = &http.Client{Timeout: opts.Timeout}
	}
	return &Client{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		token:   opts.Token,
		http:    h,
		log:     log.With().Str("component", "exam_api").Logger(),
	}
}

// Start creates the student's submission for examID, or returns the one
// already in progress.
func (c *Client) Start(ctx context.Context, examID uuid.UUID, password string) (*model.QuestionPayload, error) {
	var out model.QuestionPayload
	body := model.StartExamRequest{Password: password}
	if err := c.do(ctx, http.MethodPost, "/student/exams/"+examID.String()+"/start", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Resume rehydrates an in-progress submission.
func (c *Client) Resume(ctx context.Context, submissionID uuid.UUID) (*model.QuestionPayload, error) {
	var out model.QuestionPayload
	if err := c.do(ctx, http.MethodPost, "/student/submissions/"+submissionID.String()+"/resume", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetQuestion fetches the question at a 1-based order.
func (c *Client) GetQuestion(ctx context.Context, submissionID uuid.UUID, order int) (*model.QuestionPayload, error) {
	var out model.QuestionPayload
	path := fmt.Sprintf("/student/submissions/%s/questions/%d", submissionID, order)
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SubmitAnswer upserts one answer. Repeating it with the same content is safe.
func (c *Client) SubmitAnswer(ctx context.Context, submissionID, questionID uuid.UUID, answer model.Answer) error {
	content, err := answer.Encode()
	if err != nil {
		return err
	}
	body := model.SaveAnswerRequest{QuestionID: questionID, Content: content}
	return c.do(ctx, http.MethodPut, "/student/submissions/"+submissionID.String()+"/answers", body, nil)
}

// UpdateRemainingTime reports the local countdown. Advisory.
func (c *Client) UpdateRemainingTime(ctx context.Context, submissionID uuid.UUID, seconds int) error {
	body := model.RemainingTimeRequest{Seconds: &seconds}
	return c.do(ctx, http.MethodPut, "/student/submissions/"+submissionID.String()+"/remaining-time", body, nil)
}

// FinalSubmit finalizes the submission. It is not idempotent on the backend;
// callers must not issue it twice.
func (c *Client) FinalSubmit(ctx context.Context, submissionID uuid.UUID) (*model.SubmitResult, error) {
	var out model.SubmitResult
	if err := c.do(ctx, http.MethodPost, "/student/submissions/"+submissionID.String()+"/submit", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build %s %s: %w", method, path, err)
	}
	reqID := uuid.New().String()
	req.Header.Set("Accept", "application/json")
	req.Header.Set(response.HeaderRequestID, reqID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	res, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer res.Body.Close()

	c.log.Debug().
		Str("method", method).
		Str("path", path).
		Int("status", res.StatusCode).
		Dur("took", time.Since(start)).
		Str("request_id", reqID).
		Msg("Exam API call")

	var env response.Envelope
	decodeErr := json.NewDecoder(res.Body).Decode(&env)
	if errors.Is(decodeErr, io.EOF) {
		decodeErr = nil
	}

	if res.StatusCode/100 != 2 {
		apiErr := &Error{StatusCode: res.StatusCode, RequestID: reqID}
		if decodeErr == nil && env.Error != nil {
			apiErr.Code = env.Error.Code
			apiErr.Message = env.Error.Message
		}
		return apiErr
	}
	if decodeErr != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, decodeErr)
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("decode %s %s data: %w", method, path, err)
	}
	return nil
}
