//go:build e2e
// +build e2e

package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-quiz/internal/config"
	"github.com/stemsi/exstem-quiz/internal/model"
	"github.com/stemsi/exstem-quiz/internal/repository"
	"github.com/stemsi/exstem-quiz/internal/service"
)

const (
	defaultBaseURL = "http://localhost:8080"
	studentID      = "e2e-student"
)

var (
	baseURL      string
	studentToken string
	examID       string
	streamExamID string
	idPrefix     string
)

func TestMain(m *testing.M) {
	// Load .env if present (ignore error)
	_ = godotenv.Load("../../.env")

	baseURL = os.Getenv("BASE_URL")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	if err := seed(); err != nil {
		fmt.Printf("Setup failed: %v\n", err)
		os.Exit(1)
	}
	os.Exit(m.Run())
}

// seed creates a private batch with the e2e student enrolled, a custom exam
// and an untimed exam for the stream test, and signs a student token.
func seed() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cfg := config.Load()
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("db connect: %w", err)
	}
	defer pool.Close()

	enrollments := repository.NewEnrollmentRepository(pool)
	exams := repository.NewExamRepository(pool, nil, 0, zerolog.Nop())
	questions := repository.NewQuestionRepository(pool)

	batch := &model.Batch{Name: "e2e", IsPublic: false}
	if err := enrollments.CreateBatch(ctx, batch); err != nil {
		return fmt.Errorf("create batch: %w", err)
	}
	if err := enrollments.Enroll(ctx, batch.ID, []string{studentID}); err != nil {
		return fmt.Errorf("enroll: %w", err)
	}

	// Question ids are global; a per-run prefix keeps reruns apart.
	idPrefix = fmt.Sprintf("e2e-%d-", time.Now().UnixNano())
	prefix := idPrefix
	custom := &model.Exam{
		Title:             "E2E custom exam",
		BatchID:           &batch.ID,
		DurationMinutes:   30,
		MandatorySubjects: []model.SubjectConfig{{ID: "phy", Name: "Physics"}},
		OptionalSubjects:  []model.SubjectConfig{{ID: "che", Name: "Chemistry"}, {ID: "bio", Name: "Biology"}},
		TotalSubjects:     2,
		NumberOfAttempts:  model.AttemptsOneTime,
	}
	if err := exams.Create(ctx, custom); err != nil {
		return fmt.Errorf("create exam: %w", err)
	}
	bank := []model.RawQuestion{
		{ID: prefix + "p1", Text: "p1", Options: []string{"a", "b"}, Answer: "A", Subject: "Physics", OrderNum: 1},
		{ID: prefix + "p2", Text: "p2", Options: []string{"a", "b"}, Answer: "B", Subject: "phy", OrderNum: 2},
		{ID: prefix + "c1", Text: "c1", Option1: "a", Option2: "b", Answer: "1", Subject: "Chemistry", OrderNum: 3},
		{ID: prefix + "b1", Text: "b1", Options: []string{"a", "b"}, Answer: 1, Subject: "Biology", OrderNum: 4},
	}
	if err := questions.InsertBank(ctx, &custom.ID, bank); err != nil {
		return fmt.Errorf("insert bank: %w", err)
	}
	examID = custom.ID.String()

	untimed := &model.Exam{Title: "E2E stream exam", BatchID: &batch.ID, NumberOfAttempts: model.AttemptsMultiple}
	if err := exams.Create(ctx, untimed); err != nil {
		return fmt.Errorf("create stream exam: %w", err)
	}
	streamBank := []model.RawQuestion{
		{ID: prefix + "s1", Text: "s1", Options: []string{"a", "b"}, Answer: 0, OrderNum: 1},
	}
	if err := questions.InsertBank(ctx, &untimed.ID, streamBank); err != nil {
		return fmt.Errorf("insert stream bank: %w", err)
	}
	streamExamID = untimed.ID.String()

	studentToken, err = service.NewAuthService(cfg).GenerateStudentToken(studentID, false)
	if err != nil {
		return fmt.Errorf("sign token: %w", err)
	}
	return nil
}

func TestE2EAttemptFlow(t *testing.T) {
	base := "/api/v1/student/exams/" + examID

	t.Run("OpenAwaitsSelection", func(t *testing.T) {
		var body struct {
			Data struct {
				State string `json:"state"`
			} `json:"data"`
		}
		mustDo(t, http.MethodGet, base+"/attempt", nil, http.StatusOK, &body)
		if body.Data.State != string(model.AttemptAwaitingSubjectSelection) {
			t.Fatalf("state = %s", body.Data.State)
		}
	})

	t.Run("StartWithoutChoicesFails", func(t *testing.T) {
		mustDo(t, http.MethodPost, base+"/attempt/start", map[string]any{}, http.StatusBadRequest, nil)
	})

	t.Run("Start", func(t *testing.T) {
		var body struct {
			Data struct {
				State   string `json:"state"`
				Attempt struct {
					SubjectOrder []string `json:"subject_order"`
				} `json:"attempt"`
			} `json:"data"`
		}
		mustDo(t, http.MethodPost, base+"/attempt/start",
			map[string]any{"optional_subjects": []string{"che"}}, http.StatusOK, &body)
		if body.Data.State != string(model.AttemptInProgress) {
			t.Fatalf("state = %s", body.Data.State)
		}
		if strings.Join(body.Data.Attempt.SubjectOrder, ",") != "Physics,Chemistry" {
			t.Errorf("subject order = %v", body.Data.Attempt.SubjectOrder)
		}
	})

	t.Run("Answer", func(t *testing.T) {
		answer := func(id string, option, status int) {
			mustDo(t, http.MethodPost, base+"/attempt/answers",
				map[string]any{"question_id": idPrefix + id, "option": option}, status, nil)
		}
		answer("p1", 0, http.StatusOK)
		answer("c1", 1, http.StatusOK)
		// Biology was not chosen.
		answer("b1", 0, http.StatusBadRequest)
	})

	t.Run("Paginate", func(t *testing.T) {
		mustDo(t, http.MethodPost, base+"/attempt/paginate", map[string]any{"subject": 1}, http.StatusOK, nil)
		mustDo(t, http.MethodPost, base+"/attempt/paginate", map[string]any{"direction": "prev"}, http.StatusOK, nil)
	})

	t.Run("Submit", func(t *testing.T) {
		var body struct {
			Data struct {
				Result model.Result `json:"result"`
			} `json:"data"`
		}
		mustDo(t, http.MethodPost, base+"/attempt/submit", nil, http.StatusOK, &body)
		if body.Data.Result.Correct != 1 || body.Data.Result.Wrong != 1 {
			t.Errorf("result = %+v", body.Data.Result)
		}
	})

	t.Run("SecondStartRejected", func(t *testing.T) {
		mustDo(t, http.MethodPost, base+"/attempt/start",
			map[string]any{"optional_subjects": []string{"bio"}}, http.StatusConflict, nil)
	})

	t.Run("Result", func(t *testing.T) {
		var body struct {
			Data struct {
				Source string `json:"source"`
				Items  []any  `json:"items"`
			} `json:"data"`
		}
		mustDo(t, http.MethodGet, base+"/result?filter=skipped", nil, http.StatusOK, &body)
		if body.Data.Source != "remote" || len(body.Data.Items) != 1 {
			t.Errorf("source = %s skipped = %d", body.Data.Source, len(body.Data.Items))
		}
	})

	t.Run("Rank", func(t *testing.T) {
		var body struct {
			Data struct {
				Rank *model.Rank `json:"rank"`
			} `json:"data"`
		}
		mustDo(t, http.MethodGet, base+"/rank", nil, http.StatusOK, &body)
		if body.Data.Rank == nil || body.Data.Rank.Rank < 1 {
			t.Errorf("rank = %+v", body.Data.Rank)
		}
	})
}

func TestE2EStream(t *testing.T) {
	base := "/api/v1/student/exams/" + streamExamID
	mustDo(t, http.MethodPost, base+"/attempt/start", nil, http.StatusOK, nil)

	wsURL := strings.Replace(baseURL, "http", "ws", 1) +
		"/ws/v1/student/exams/" + streamExamID + "/stream?token=" + studentToken
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v (%v)", err, resp)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(10 * time.Second))

	if err := conn.WriteJSON(map[string]any{"action": "ping"}); err != nil {
		t.Fatalf("write ping: %v", err)
	}
	expectEvent(t, conn, "pong")

	if err := conn.WriteJSON(map[string]any{"action": "submit"}); err != nil {
		t.Fatalf("write submit: %v", err)
	}
	expectEvent(t, conn, "submitted")
}

func expectEvent(t *testing.T, conn *websocket.Conn, want string) {
	t.Helper()
	for {
		var msg struct {
			Event string `json:"event"`
		}
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("waiting for %s: %v", want, err)
		}
		if msg.Event == want {
			return
		}
		if msg.Event == "error" {
			t.Fatalf("got error event while waiting for %s", want)
		}
	}
}

// Helpers

func mustDo(t *testing.T, method, path string, body any, want int, out any) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, baseURL+path, reader)
	if err != nil {
		t.Fatal(err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+studentToken)

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != want {
		t.Fatalf("%s %s: status %d, want %d: %s", method, path, resp.StatusCode, want, raw)
	}
	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			t.Fatalf("json decode: %v", err)
		}
	}
}
