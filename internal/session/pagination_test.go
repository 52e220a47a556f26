package session

import (
	"context"
	"testing"

	"github.com/stemsi/exstem-quiz/internal/model"
)

func paginationHarness(t *testing.T) *harness {
	t.Helper()
	var qs []model.Question
	qs = append(qs, questions("Physics", 3)...)
	qs = append(qs, questions("Chemistry", 1)...)
	qs = append(qs, questions("Biology", 4)...)
	return newHarness(t, 30, qs, []string{"Physics", "Chemistry", "Biology"})
}

type pos struct{ subject, page int }

func TestPaginateAcrossSubjects(t *testing.T) {
	h := paginationHarness(t)
	ctx := context.Background()

	steps := []struct {
		dir  Direction
		want pos
	}{
		{Next, pos{0, 1}},
		{Next, pos{1, 0}},
		{Next, pos{2, 0}},
		{Next, pos{2, 1}},
		{Next, pos{2, 1}}, // end of attempt
		{Prev, pos{2, 0}},
		{Prev, pos{1, 0}},
		{Prev, pos{0, 1}}, // previous subject's last page
		{Prev, pos{0, 0}},
		{Prev, pos{0, 0}}, // first page of first subject
	}
	for i, st := range steps {
		page, _, err := h.sess.Paginate(ctx, st.dir)
		if err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		if got := (pos{page.SubjectIndex, page.Page}); got != st.want {
			t.Fatalf("step %d (%s): at %+v, want %+v", i, st.dir, got, st.want)
		}
	}
}

func TestPageContents(t *testing.T) {
	h := paginationHarness(t)
	ctx := context.Background()
	_, _, _ = h.sess.Answer(ctx, "Physics-3", 1)
	_, _, _ = h.sess.ToggleReview(ctx, "Physics-3")

	page, _, _ := h.sess.Paginate(ctx, Next)

	if page.Subject != "Physics" || page.PageCount != 2 || page.SubjectCount != 3 {
		t.Fatalf("unexpected page header %+v", page)
	}
	if len(page.Questions) != 1 || page.Questions[0].ID != "Physics-3" {
		t.Fatalf("unexpected questions %+v", page.Questions)
	}
	if page.Answers["Physics-3"] != 1 || len(page.Marked) != 1 {
		t.Fatalf("answers %v marked %v", page.Answers, page.Marked)
	}
	if !page.HasPrev || !page.HasNext {
		t.Fatalf("expected both directions available: %+v", page)
	}
}

func TestCursorPersistsAcrossRestore(t *testing.T) {
	h := paginationHarness(t)
	ctx := context.Background()
	_, _, _ = h.sess.Paginate(ctx, Next)
	_, _, _ = h.sess.Paginate(ctx, Next)

	shape, _ := h.store.LoadShape(ctx, "student-1", h.exam.ID)
	restored := Restore(h.exam, shape, nil, h.options())

	if got := restored.CurrentPage(); got.Subject != "Chemistry" {
		t.Fatalf("restored at %q, want Chemistry", got.Subject)
	}
}

func TestJumpToSubject(t *testing.T) {
	h := paginationHarness(t)
	ctx := context.Background()

	page, _, err := h.sess.JumpToSubject(ctx, 2)
	if err != nil || page.Subject != "Biology" || page.Page != 0 {
		t.Fatalf("jump: %+v, %v", page, err)
	}
	if _, _, err := h.sess.JumpToSubject(ctx, 3); err == nil {
		t.Fatal("expected out of range error")
	}
}

func TestUnlabelledQuestionsFormTrailingGroup(t *testing.T) {
	qs := append(questions("Physics", 1), questions("", 2)...)
	h := newHarness(t, 30, qs, []string{"Physics"})

	page, _, _ := h.sess.Paginate(context.Background(), Next)
	if page.SubjectIndex != 1 || page.Subject != "" || len(page.Questions) != 2 {
		t.Fatalf("unexpected trailing page %+v", page)
	}
}
