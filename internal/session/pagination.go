package session

import (
	"context"
	"fmt"

	"github.com/stemsi/exstem-quiz/internal/model"
)

// Direction is a pagination step.
type Direction string

const (
	Next Direction = "next"
	Prev Direction = "prev"
)

// group is one subject tab: its label and the positions of its questions.
type group struct {
	label     string
	positions []int
}

// buildGroups splits the question list by subject order. Questions whose
// label is not in the order end up in a trailing unlabelled group.
func buildGroups(shape *model.AttemptShape) []group {
	byLabel := make(map[string]int, len(shape.SubjectOrder))
	groups := make([]group, 0, len(shape.SubjectOrder)+1)
	for _, label := range shape.SubjectOrder {
		if _, dup := byLabel[label]; dup {
			continue
		}
		byLabel[label] = len(groups)
		groups = append(groups, group{label: label})
	}

	var rest []int
	for i, q := range shape.Questions {
		if g, ok := byLabel[q.Subject]; ok {
			groups[g].positions = append(groups[g].positions, i)
		} else {
			rest = append(rest, i)
		}
	}

	out := groups[:0]
	for _, g := range groups {
		if len(g.positions) > 0 {
			out = append(out, g)
		}
	}
	if len(rest) > 0 {
		out = append(out, group{positions: rest})
	}
	return out
}

// Page is one page of questions within a subject tab.
type Page struct {
	Subject      string                     `json:"subject"`
	SubjectIndex int                        `json:"subject_index"`
	SubjectCount int                        `json:"subject_count"`
	Page         int                        `json:"page"`
	PageCount    int                        `json:"page_count"`
	HasPrev      bool                       `json:"has_prev"`
	HasNext      bool                       `json:"has_next"`
	Questions    []model.QuestionForStudent `json:"questions"`
	Answers      map[string]int             `json:"answers"`
	Marked       []string                   `json:"marked_for_review"`
}

// CurrentPage returns the page under the cursor.
func (s *Session) CurrentPage() Page {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pageLocked()
}

// Paginate moves one page. Past a subject's last page it moves to the next
// subject's first page; before a subject's first page it moves to the
// previous subject's last page. At either end of the attempt it does nothing.
func (s *Session) Paginate(ctx context.Context, dir Direction) (Page, []Notice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireInProgressLocked(); err != nil {
		return Page{}, nil, err
	}

	c := s.shape.Cursor
	switch dir {
	case Next:
		if c.Page+1 < s.pageCountLocked(c.Subject) {
			c.Page++
		} else if c.Subject+1 < len(s.groups) {
			c.Subject++
			c.Page = 0
		}
	case Prev:
		if c.Page > 0 {
			c.Page--
		} else if c.Subject > 0 {
			c.Subject--
			c.Page = s.pageCountLocked(c.Subject) - 1
		}
	default:
		return Page{}, nil, fmt.Errorf("unknown direction %q", dir)
	}

	var notices []Notice
	if c != s.shape.Cursor {
		s.shape.Cursor = c
		notices = s.saveShapeLocked(ctx)
	}
	return s.pageLocked(), notices, nil
}

// JumpToSubject moves to the first page of the given subject tab.
func (s *Session) JumpToSubject(ctx context.Context, subject int) (Page, []Notice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireInProgressLocked(); err != nil {
		return Page{}, nil, err
	}
	if subject < 0 || subject >= len(s.groups) {
		return Page{}, nil, fmt.Errorf("subject index %d out of range", subject)
	}

	var notices []Notice
	c := model.Cursor{Subject: subject}
	if c != s.shape.Cursor {
		s.shape.Cursor = c
		notices = s.saveShapeLocked(ctx)
	}
	return s.pageLocked(), notices, nil
}

func (s *Session) pageCountLocked(subject int) int {
	if subject < 0 || subject >= len(s.groups) {
		return 0
	}
	n := len(s.groups[subject].positions)
	return (n + s.opts.PerPage - 1) / s.opts.PerPage
}

func (s *Session) clampCursorLocked() {
	c := &s.shape.Cursor
	if c.Subject < 0 || c.Subject >= len(s.groups) {
		*c = model.Cursor{}
		return
	}
	if pages := s.pageCountLocked(c.Subject); c.Page < 0 || c.Page >= pages {
		c.Page = 0
	}
}

func (s *Session) pageLocked() Page {
	c := s.shape.Cursor
	p := Page{
		SubjectIndex: c.Subject,
		SubjectCount: len(s.groups),
		Page:         c.Page,
		Answers:      make(map[string]int),
		Marked:       []string{},
	}
	if len(s.groups) == 0 {
		return p
	}

	g := s.groups[c.Subject]
	p.Subject = g.label
	p.PageCount = s.pageCountLocked(c.Subject)
	p.HasPrev = c.Page > 0 || c.Subject > 0
	p.HasNext = c.Page+1 < p.PageCount || c.Subject+1 < len(s.groups)

	start := c.Page * s.opts.PerPage
	end := min(start+s.opts.PerPage, len(g.positions))
	for _, pos := range g.positions[start:end] {
		q := s.shape.Questions[pos]
		p.Questions = append(p.Questions, q.ForStudent())
		if opt, ok := s.sheet.Answers[q.ID]; ok {
			p.Answers[q.ID] = opt
		}
		if s.marked[q.ID] {
			p.Marked = append(p.Marked, q.ID)
		}
	}
	return p
}
