package session

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-quiz/internal/model"
)

// Clock supplies wall-clock time.
type Clock interface {
	Now() time.Time
}

// SystemClock reads time.Now.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// SnapshotStore keeps the two resumable halves of an attempt, keyed by
// student and exam. Loads return nil, nil when nothing is stored.
type SnapshotStore interface {
	LoadShape(ctx context.Context, studentID string, examID uuid.UUID) (*model.AttemptShape, error)
	SaveShape(ctx context.Context, shape *model.AttemptShape) error
	LoadAnswers(ctx context.Context, studentID string, examID uuid.UUID) (*model.AnswerSheet, error)
	SaveAnswers(ctx context.Context, studentID string, examID uuid.UUID, sheet *model.AnswerSheet) error
	// ClearAttempt removes both slots when they hold attemptID. The
	// snapshot of any other attempt is kept.
	ClearAttempt(ctx context.Context, studentID string, examID, attemptID uuid.UUID) error
}

// SubmitGuard is a one-shot lock on finalizing an attempt, shared by every
// process that may hold the same attempt.
type SubmitGuard interface {
	// Acquire returns false when another holder already finalized or is
	// finalizing the attempt.
	Acquire(ctx context.Context, attemptID uuid.UUID) (bool, error)
}

// Finalizer persists the outcome of a submitted attempt. A non-nil error
// means the durable write did not complete and the snapshot must be kept.
type Finalizer interface {
	Finalize(ctx context.Context, rec model.AttemptRecord, answers []model.AnswerRecord) error
}

// MemorySnapshotStore is an in-process SnapshotStore. Values are stored as
// JSON so callers never share memory with the store.
type MemorySnapshotStore struct {
	mu      sync.Mutex
	shapes  map[string][]byte
	answers map[string][]byte
}

// NewMemorySnapshotStore returns an empty store.
func NewMemorySnapshotStore() *MemorySnapshotStore {
	return &MemorySnapshotStore{
		shapes:  make(map[string][]byte),
		answers: make(map[string][]byte),
	}
}

func memKey(studentID string, examID uuid.UUID) string {
	return studentID + "|" + examID.String()
}

func (m *MemorySnapshotStore) LoadShape(_ context.Context, studentID string, examID uuid.UUID) (*model.AttemptShape, error) {
	m.mu.Lock()
	raw, ok := m.shapes[memKey(studentID, examID)]
	m.mu.Unlock()
	if !ok {
		return nil, nil
	}
	var shape model.AttemptShape
	if err := json.Unmarshal(raw, &shape); err != nil {
		return nil, err
	}
	return &shape, nil
}

func (m *MemorySnapshotStore) SaveShape(_ context.Context, shape *model.AttemptShape) error {
	raw, err := json.Marshal(shape)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.shapes[memKey(shape.StudentID, shape.ExamID)] = raw
	m.mu.Unlock()
	return nil
}

func (m *MemorySnapshotStore) LoadAnswers(_ context.Context, studentID string, examID uuid.UUID) (*model.AnswerSheet, error) {
	m.mu.Lock()
	raw, ok := m.answers[memKey(studentID, examID)]
	m.mu.Unlock()
	if !ok {
		return nil, nil
	}
	sheet := model.NewAnswerSheet()
	if err := json.Unmarshal(raw, sheet); err != nil {
		return nil, err
	}
	return sheet, nil
}

func (m *MemorySnapshotStore) SaveAnswers(_ context.Context, studentID string, examID uuid.UUID, sheet *model.AnswerSheet) error {
	raw, err := json.Marshal(sheet)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.answers[memKey(studentID, examID)] = raw
	m.mu.Unlock()
	return nil
}

func (m *MemorySnapshotStore) ClearAttempt(_ context.Context, studentID string, examID, attemptID uuid.UUID) error {
	key := memKey(studentID, examID)
	m.mu.Lock()
	defer m.mu.Unlock()
	if raw, ok := m.shapes[key]; ok {
		var head struct {
			AttemptID uuid.UUID `json:"attempt_id"`
		}
		if err := json.Unmarshal(raw, &head); err != nil {
			return err
		}
		if head.AttemptID != attemptID {
			return nil
		}
	}
	delete(m.shapes, key)
	delete(m.answers, key)
	return nil
}

// MemorySubmitGuard is a process-local SubmitGuard.
type MemorySubmitGuard struct {
	mu   sync.Mutex
	held map[uuid.UUID]bool
}

// NewMemorySubmitGuard returns an empty guard.
func NewMemorySubmitGuard() *MemorySubmitGuard {
	return &MemorySubmitGuard{held: make(map[uuid.UUID]bool)}
}

func (g *MemorySubmitGuard) Acquire(_ context.Context, attemptID uuid.UUID) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.held[attemptID] {
		return false, nil
	}
	g.held[attemptID] = true
	return true, nil
}
