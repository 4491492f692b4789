package validator

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

type answerBody struct {
	QuestionID string `json:"question_id" binding:"required"`
	Content    string `json:"content" binding:"answertext,max=10"`
}

func bind(t *testing.T, body string) map[string]string {
	t.Helper()
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPut, "/", strings.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")
	var dst answerBody
	return Bind(c, &dst)
}

func TestBind(t *testing.T) {
	Setup()
	Setup()

	if fields := bind(t, `{"question_id":"q1","content":"b"}`); fields != nil {
		t.Fatalf("valid body rejected: %v", fields)
	}

	fields := bind(t, `{"content":"b"}`)
	if !strings.Contains(fields["question_id"], "required") {
		t.Fatalf("missing field message = %v", fields)
	}

	fields = bind(t, `{"question_id":"q1","content":"a\u0000b"}`)
	if !strings.Contains(fields["content"], "NUL") {
		t.Fatalf("NUL content message = %v", fields)
	}

	fields = bind(t, `{"question_id":`)
	if fields["detail"] == "" {
		t.Fatalf("syntax error not reported under detail: %v", fields)
	}
}
