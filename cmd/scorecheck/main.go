// Command scorecheck recomputes the review of an exported attempt offline.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/stemsi/exstem-quiz/internal/model"
	"github.com/stemsi/exstem-quiz/internal/question"
	"github.com/stemsi/exstem-quiz/internal/review"
	"github.com/stemsi/exstem-quiz/internal/selection"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

type options struct {
	examPath    string
	bankPath    string
	answersPath string
	filter      string
	order       []string
	persisted   float64
	hasScore    bool
}

func rootCmd() *cobra.Command {
	var opts options
	cmd := &cobra.Command{
		Use:   "scorecheck",
		Short: "Recompute the scored review of an attempt from JSON exports",
		Long: "scorecheck normalizes a raw question bank, rebuilds the attempt's question\n" +
			"list from the exam configuration and prints the reconciled review.",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts.hasScore = cmd.Flags().Changed("persisted-score")
			return run(opts, cmd.OutOrStdout())
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.examPath, "exam", "e", "", "Exam configuration JSON file (required)")
	f.StringVarP(&opts.bankPath, "bank", "b", "", "Raw question bank JSON file (required)")
	f.StringVarP(&opts.answersPath, "answers", "a", "", "Answers JSON file mapping question id to option index")
	f.StringVarP(&opts.filter, "filter", "f", "all", "Review filter (all, correct, wrong, skipped)")
	f.StringSliceVar(&opts.order, "order", nil, "Recorded question order as comma separated id or id=subject entries")
	f.Float64Var(&opts.persisted, "persisted-score", 0, "Authoritative persisted score to display")

	_ = cmd.MarkFlagRequired("exam")
	_ = cmd.MarkFlagRequired("bank")
	return cmd
}

// report is what scorecheck prints.
type report struct {
	Exam        string             `json:"exam"`
	Questions   int                `json:"questions"`
	Summary     model.Result       `json:"summary"`
	Recomputed  float64            `json:"recomputed_score"`
	ScoreSource review.ScoreSource `json:"score_source"`
	Filter      review.Filter      `json:"filter"`
	Items       []review.Item      `json:"items"`
}

func run(opts options, w io.Writer) error {
	filter, err := review.ParseFilter(opts.filter)
	if err != nil {
		return err
	}

	var exam model.Exam
	if err := readJSON(opts.examPath, &exam); err != nil {
		return fmt.Errorf("read exam: %w", err)
	}
	var raws []model.RawQuestion
	if err := readJSON(opts.bankPath, &raws); err != nil {
		return fmt.Errorf("read bank: %w", err)
	}
	answers := map[string]int{}
	if opts.answersPath != "" {
		if err := readJSON(opts.answersPath, &answers); err != nil {
			return fmt.Errorf("read answers: %w", err)
		}
	}

	var order []model.QuestionRef
	for _, entry := range opts.order {
		id, subject, _ := strings.Cut(entry, "=")
		if id = strings.TrimSpace(id); id != "" {
			order = append(order, model.QuestionRef{ID: id, Subject: strings.TrimSpace(subject)})
		}
	}

	bank := question.NormalizeAll(raws, exam.SubjectNames)
	questions := selection.ResolveForReview(&exam, bank, order)

	var persisted *model.Result
	if opts.hasScore {
		persisted = &model.Result{Score: opts.persisted}
	}
	rv := review.Reconcile(&exam, questions, answers, persisted)

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(report{
		Exam:        exam.Title,
		Questions:   len(questions),
		Summary:     rv.Summary,
		Recomputed:  rv.Recomputed,
		ScoreSource: rv.ScoreSource,
		Filter:      filter,
		Items:       rv.Apply(filter),
	})
}

func readJSON(path string, dst any) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dst)
}
