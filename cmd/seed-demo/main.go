package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/stemsi/exstem-quiz/internal/config"
	"github.com/stemsi/exstem-quiz/internal/database"
	"github.com/stemsi/exstem-quiz/internal/logger"
	"github.com/stemsi/exstem-quiz/internal/model"
	"github.com/stemsi/exstem-quiz/internal/repository"
	"github.com/stemsi/exstem-quiz/internal/service"
)

func main() {
	var (
		students string
		duration int
	)
	cmd := &cobra.Command{
		Use:          "seed-demo",
		Short:        "Seed a demo batch, custom exam and question bank",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		Run: func(_ *cobra.Command, _ []string) {
			seed(students, duration)
		},
	}
	cmd.Flags().StringVar(&students, "students", "demo-student-1,demo-student-2", "Comma separated student ids to enroll")
	cmd.Flags().IntVar(&duration, "duration", 60, "Exam duration in minutes")
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func seed(students string, duration int) {
	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	enrollments := repository.NewEnrollmentRepository(pool)
	exams := repository.NewExamRepository(pool, nil, 0, log)
	questions := repository.NewQuestionRepository(pool)
	auth := service.NewAuthService(cfg)

	fmt.Println("=== Seeding demo exam ===")

	batch := &model.Batch{Name: "Demo batch " + time.Now().Format("2006-01-02"), IsPublic: true}
	if err := enrollments.CreateBatch(ctx, batch); err != nil {
		log.Fatal().Err(err).Msg("Failed to create batch")
	}
	fmt.Printf("Created batch %s\n", batch.ID)

	var ids []string
	for _, s := range strings.Split(students, ",") {
		if s = strings.TrimSpace(s); s != "" {
			ids = append(ids, s)
		}
	}
	if err := enrollments.Enroll(ctx, batch.ID, ids); err != nil {
		log.Fatal().Err(err).Msg("Failed to enroll students")
	}

	// Question ids are prefixed per run so reseeding never steals rows from
	// an earlier demo exam.
	prefix := "demo-" + uuid.NewString()[:8] + "-"
	bank := demoBank(prefix)

	marks := 4.0
	penalty := -1.0
	exam := &model.Exam{
		Title:                 "Demo custom exam",
		BatchID:               &batch.ID,
		DurationMinutes:       duration,
		MarksPerQuestion:      &marks,
		NegativeMarksPerWrong: &penalty,
		MandatorySubjects: []model.SubjectConfig{{
			ID:          "phy",
			Name:        "Physics",
			QuestionIDs: []string{prefix + "p1", prefix + "p2", prefix + "p3"},
		}},
		OptionalSubjects: []model.SubjectConfig{
			{ID: "che", Name: "Chemistry", Count: 2},
			{ID: "bio", Name: "Biology", Count: 2},
		},
		TotalSubjects:    2,
		NumberOfAttempts: model.AttemptsOneTime,
		ShuffleQuestions: true,
	}
	if err := exams.Create(ctx, exam); err != nil {
		log.Fatal().Err(err).Msg("Failed to create exam")
	}
	if err := questions.InsertBank(ctx, &exam.ID, bank); err != nil {
		log.Fatal().Err(err).Msg("Failed to insert question bank")
	}
	fmt.Printf("Created exam %s with %d questions\n", exam.ID, len(bank))

	for _, id := range ids {
		token, err := auth.GenerateStudentToken(id, false)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to sign token")
		}
		fmt.Printf("%s: %s\n", id, token)
	}
	fmt.Println("=== Done ===")
}

// demoBank mixes every answer and option encoding the normalizer accepts.
func demoBank(prefix string) []model.RawQuestion {
	return []model.RawQuestion{
		{ID: prefix + "p1", Text: "Unit of force?", Options: []string{"Newton", "Joule", "Watt", "Pascal"}, Answer: 0, Subject: "PHY", OrderNum: 1},
		{ID: prefix + "p2", Text: "Speed of light (km/s)?", Option1: "3x10^5", Option2: "3x10^8", Option3: "1x10^3", Answer: "A", Subject: "PHY", OrderNum: 2},
		{ID: prefix + "p3", Text: "SI unit of charge?", Options: `["Ampere","Coulomb","Volt"]`, Answer: "2", Subject: "PHY", Marks: "2", OrderNum: 3},
		{ID: prefix + "c1", Text: "Symbol of sodium?", Options: []string{"S", "Na", "So"}, Answer: "b", Subject: "Chemistry", OrderNum: 4},
		{ID: prefix + "c2", Text: "pH of pure water?", Option1: "7", Option2: "1", Option3: "14", Answer: "1", Subject: "Chemistry", OrderNum: 5},
		{ID: prefix + "c3", Text: "Noble gas?", Options: []string{"Argon", "Nitrogen"}, Answer: 0, Subject: "Chemistry", Explanation: "Argon is in group 18.", OrderNum: 6},
		{ID: prefix + "b1", Text: "Powerhouse of the cell?", Options: []string{"Nucleus", "Mitochondria"}, Answer: "B", Subject: "Biology", OrderNum: 7},
		{ID: prefix + "b2", Text: "DNA base not in RNA?", Options: []string{"Uracil", "Thymine"}, Answer: 1, Subject: "Biology", OrderNum: 8},
		{ID: prefix + "b3", Text: "Unanswerable", Options: []string{"x", "y"}, Answer: "Z", Subject: "Biology", OrderNum: 9},
	}
}
