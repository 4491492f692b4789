package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-session/internal/middleware"
	"github.com/stemsi/exstem-session/internal/response"
	"github.com/stemsi/exstem-session/internal/service"
	"github.com/stemsi/exstem-session/internal/validator"
)

func TestErrorStatus(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   response.ErrCode
	}{
		{fmt.Errorf("submit: %w", service.ErrSubmissionFinalized), http.StatusConflict, response.ErrSubmissionAlreadyFinal},
		{service.ErrInvalidExamPassword, http.StatusForbidden, response.ErrInvalidExamPassword},
		{service.ErrNotSubmissionOwner, http.StatusForbidden, response.ErrNotSubmissionOwner},
		{service.ErrQuestionNotFound, http.StatusNotFound, response.ErrQuestionNotFound},
		{service.ErrQuestionNotInExam, http.StatusBadRequest, response.ErrQuestionNotInExam},
		{service.ErrTimeExhausted, http.StatusConflict, response.ErrSubmissionTimeExhausted},
		{fmt.Errorf("get exam: connection refused"), http.StatusInternalServerError, response.ErrInternal},
	}
	for _, tc := range cases {
		status, code := errorStatus(tc.err)
		if status != tc.status || code != tc.code {
			t.Errorf("errorStatus(%v) = %d %s, want %d %s", tc.err, status, code, tc.status, tc.code)
		}
	}
}

// Requests rejected before reaching the service never touch it, so a handler
// without one is enough here.
func TestRequestValidation(t *testing.T) {
	gin.SetMode(gin.TestMode)
	validator.Setup()
	h := NewSubmissionHandler(nil, zerolog.Nop())

	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set(middleware.ContextKeyClaims, &service.Claims{TokenType: service.TokenTypeStudent, UserID: 1})
	})
	r.GET("/submissions/:id/questions/:order", h.GetQuestion)
	r.PUT("/submissions/:id/answers", h.SaveAnswer)
	r.PUT("/submissions/:id/remaining-time", h.UpdateRemainingTime)

	id := uuid.NewString()
	cases := []struct {
		name   string
		method string
		path   string
		body   string
		code   response.ErrCode
		field  string
	}{
		{"bad submission id", http.MethodGet, "/submissions/nope/questions/1", "", response.ErrInvalidID, ""},
		{"order zero", http.MethodGet, "/submissions/" + id + "/questions/0", "", response.ErrInvalidID, ""},
		{"missing question id", http.MethodPut, "/submissions/" + id + "/answers", `{"content":"a"}`, response.ErrValidation, "question_id"},
		{"negative seconds", http.MethodPut, "/submissions/" + id + "/remaining-time", `{"seconds":-1}`, response.ErrValidation, "seconds"},
		{"missing seconds", http.MethodPut, "/submissions/" + id + "/remaining-time", `{}`, response.ErrValidation, "seconds"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(tc.method, tc.path, strings.NewReader(tc.body))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			if w.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400 (%s)", w.Code, w.Body.String())
			}
			var env response.Envelope
			if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if env.Error == nil || env.Error.Code != tc.code {
				t.Fatalf("error = %+v, want %s", env.Error, tc.code)
			}
			if tc.field != "" {
				if _, ok := env.Error.Fields[tc.field]; !ok {
					t.Fatalf("fields = %v, want %q", env.Error.Fields, tc.field)
				}
			}
		})
	}
}

func TestBuildUpgraderOrigins(t *testing.T) {
	open := buildUpgrader(nil)
	strict := buildUpgrader([]string{"https://ujian.sekolah.id"})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://evil.example")
	if !open.CheckOrigin(req) {
		t.Fatal("empty allow list rejected an origin")
	}
	if strict.CheckOrigin(req) {
		t.Fatal("foreign origin accepted")
	}
	req.Header.Set("Origin", "https://UJIAN.sekolah.id")
	if !strict.CheckOrigin(req) {
		t.Fatal("allowed origin rejected")
	}
}
