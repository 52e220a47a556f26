package router

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-quiz/internal/config"
	"github.com/stemsi/exstem-quiz/internal/handler"
	"github.com/stemsi/exstem-quiz/internal/memstore"
	"github.com/stemsi/exstem-quiz/internal/model"
	"github.com/stemsi/exstem-quiz/internal/response"
	"github.com/stemsi/exstem-quiz/internal/service"
	"github.com/stemsi/exstem-quiz/internal/validator"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	validator.Setup()
	os.Exit(m.Run())
}

type testServer struct {
	engine *gin.Engine
	auth   *service.AuthService
	store  *memstore.Store
	examID uuid.UUID
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	cfg := &config.Config{
		GinMode:   gin.TestMode,
		JWTSecret: "test-secret",
		JWTExpiry: time.Hour,
	}
	store := memstore.New()
	examID := store.PutExam(model.Exam{
		Title:            "Router exam",
		DurationMinutes:  30,
		NumberOfAttempts: model.AttemptsOneTime,
	})
	store.PutQuestions(&examID,
		model.RawQuestion{ID: "q1", Text: "one", Options: []string{"a", "b"}, Answer: "A", Subject: "Physics"},
		model.RawQuestion{ID: "q2", Text: "two", Options: []string{"a", "b"}, Answer: "B", Subject: "Physics"},
	)

	attempts := service.NewAttemptService(service.AttemptDeps{
		Exams:       store,
		Questions:   store,
		Enrollment:  store,
		Attempts:    store,
		Leaderboard: store,
		Queue:       store,
		Log:         zerolog.Nop(),
	})
	auth := service.NewAuthService(cfg)
	handlers := &Handlers{
		Attempt: handler.NewAttemptHandler(attempts, zerolog.Nop()),
		Stream:  handler.NewStreamHandler(attempts, time.Second, zerolog.Nop(), nil),
	}
	return &testServer{
		engine: SetupRouter(auth, handlers, nil, cfg),
		auth:   auth,
		store:  store,
		examID: examID,
	}
}

func (s *testServer) token(t *testing.T, studentID string, guest bool) string {
	t.Helper()
	tok, err := s.auth.GenerateStudentToken(studentID, guest)
	if err != nil {
		t.Fatalf("GenerateStudentToken: %v", err)
	}
	return tok
}

func (s *testServer) do(t *testing.T, method, path, token, body string) (*httptest.ResponseRecorder, response.Response) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)

	var env response.Response
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode %s %s: %v (%s)", method, path, err, w.Body.String())
	}
	return w, env
}

func (s *testServer) path(suffix string) string {
	return "/api/v1/student/exams/" + s.examID.String() + suffix
}

func TestAuthRequired(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name   string
		token  string
		status int
		code   response.ErrCode
	}{
		{name: "missing token", token: "", status: http.StatusUnauthorized, code: response.ErrTokenRequired},
		{name: "garbage token", token: "not-a-jwt", status: http.StatusUnauthorized, code: response.ErrTokenInvalid},
		{name: "guest", token: s.token(t, "guest-1", true), status: http.StatusForbidden, code: response.ErrForbidden},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			w, env := s.do(t, http.MethodGet, s.path("/attempt"), tc.token, "")
			if w.Code != tc.status {
				t.Fatalf("status = %d, want %d", w.Code, tc.status)
			}
			if env.Error == nil || env.Error.Code != tc.code {
				t.Errorf("error = %+v, want %s", env.Error, tc.code)
			}
		})
	}
}

func TestGuestWritesRejectedAtEdge(t *testing.T) {
	s := newTestServer(t)
	guest := s.token(t, "guest-1", true)

	for _, suffix := range []string{"/attempt/start", "/attempt/answers", "/attempt/review", "/attempt/paginate", "/attempt/submit"} {
		t.Run(suffix, func(t *testing.T) {
			w, env := s.do(t, http.MethodPost, s.path(suffix), guest, `{}`)
			if w.Code != http.StatusForbidden {
				t.Fatalf("status = %d, want 403", w.Code)
			}
			if env.Error == nil || env.Error.Code != response.ErrForbidden {
				t.Errorf("error = %+v, want FORBIDDEN", env.Error)
			}
		})
	}

	// The guest never got far enough to open an attempt.
	w, env := s.do(t, http.MethodGet, s.path("/attempt"), s.token(t, "guest-1", false), "")
	if w.Code != http.StatusOK {
		t.Fatalf("open status = %d", w.Code)
	}
	if state := env.Data.(map[string]any)["state"]; state != string(model.AttemptNotStarted) {
		t.Errorf("state = %v, want NOT_STARTED", state)
	}
}

func TestInvalidExamID(t *testing.T) {
	s := newTestServer(t)
	w, env := s.do(t, http.MethodGet, "/api/v1/student/exams/not-a-uuid/attempt", s.token(t, "stu", false), "")
	if w.Code != http.StatusBadRequest || env.Error == nil || env.Error.Code != response.ErrInvalidID {
		t.Errorf("status = %d error = %+v", w.Code, env.Error)
	}
}

func TestAttemptFlow(t *testing.T) {
	s := newTestServer(t)
	tok := s.token(t, "stu-9", false)

	w, env := s.do(t, http.MethodPost, s.path("/attempt/start"), tok, "")
	if w.Code != http.StatusOK {
		t.Fatalf("start status = %d body = %s", w.Code, w.Body.String())
	}
	if w.Header().Get("Cache-Control") == "" {
		t.Error("student routes should set Cache-Control")
	}
	data := env.Data.(map[string]any)
	if data["state"] != string(model.AttemptInProgress) {
		t.Errorf("state = %v", data["state"])
	}

	w, env = s.do(t, http.MethodPost, s.path("/attempt/answers"), tok, `{"question_id":"q1","option":0}`)
	if w.Code != http.StatusOK || env.Data.(map[string]any)["accepted"] != true {
		t.Fatalf("answer status = %d body = %s", w.Code, w.Body.String())
	}

	w, env = s.do(t, http.MethodPost, s.path("/attempt/answers"), tok, `{"question_id":"q2"}`)
	if w.Code != http.StatusBadRequest || env.Error.Code != response.ErrValidation {
		t.Errorf("missing option status = %d", w.Code)
	}
	if _, ok := env.Error.Fields["option"]; !ok {
		t.Errorf("fields = %v", env.Error.Fields)
	}

	w, env = s.do(t, http.MethodPost, s.path("/attempt/answers"), tok, `{"question_id":"q2","option":7}`)
	if w.Code != http.StatusBadRequest || env.Error.Code != response.ErrInvalidOption {
		t.Errorf("out of range option status = %d error = %+v", w.Code, env.Error)
	}

	w, _ = s.do(t, http.MethodPost, s.path("/attempt/paginate"), tok, `{"direction":"sideways"}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad direction status = %d", w.Code)
	}

	w, _ = s.do(t, http.MethodPost, s.path("/attempt/submit"), tok, "")
	if w.Code != http.StatusOK {
		t.Fatalf("submit status = %d body = %s", w.Code, w.Body.String())
	}

	w, env = s.do(t, http.MethodPost, s.path("/attempt/submit"), tok, "")
	if w.Code != http.StatusNotFound || env.Error.Code != response.ErrNoAttempt {
		t.Errorf("second submit status = %d error = %+v", w.Code, env.Error)
	}

	w, env = s.do(t, http.MethodPost, s.path("/attempt/start"), tok, "")
	if w.Code != http.StatusConflict || env.Error.Code != response.ErrAttemptUsed {
		t.Errorf("restart status = %d error = %+v", w.Code, env.Error)
	}

	w, env = s.do(t, http.MethodGet, s.path("/result?filter=correct"), tok, "")
	if w.Code != http.StatusOK {
		t.Fatalf("result status = %d body = %s", w.Code, w.Body.String())
	}
	items := env.Data.(map[string]any)["items"].([]any)
	if len(items) != 1 {
		t.Errorf("correct items = %d, want 1", len(items))
	}

	w, _ = s.do(t, http.MethodGet, s.path("/result?filter=bogus"), tok, "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad filter status = %d", w.Code)
	}

	w, env = s.do(t, http.MethodGet, s.path("/rank"), tok, "")
	if w.Code != http.StatusOK {
		t.Fatalf("rank status = %d", w.Code)
	}
	rank := env.Data.(map[string]any)["rank"].(map[string]any)
	if rank["rank"] != float64(1) {
		t.Errorf("rank = %v", rank)
	}
}

func TestWebSocketRequiresQueryToken(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/ws/v1/student/exams/"+s.examID.String()+"/stream", nil)
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d", w.Code)
	}
}
