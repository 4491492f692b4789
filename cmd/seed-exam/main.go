// Command seed-exam loads a YAML exam definition into the sandbox database
// and prints the tokens needed to take and watch it.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stemsi/exstem-session/internal/config"
	"github.com/stemsi/exstem-session/internal/database"
	"github.com/stemsi/exstem-session/internal/logger"
	"github.com/stemsi/exstem-session/internal/model"
	"github.com/stemsi/exstem-session/internal/repository"
	"github.com/stemsi/exstem-session/internal/service"
	"golang.org/x/term"
)

func main() {
	var promptPassword bool
	flag.BoolVar(&promptPassword, "prompt-password", false, "Ask for the exam password instead of reading it from the file")
	flag.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: seed-exam [flags] <exam.yaml>")
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)

	// ─── Parse Definition ──────────────────────────────────────────────
	def, err := loadExamFile(flag.Arg(0))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load exam definition")
	}
	questions, err := def.validate()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid exam definition")
	}
	if promptPassword {
		if def.Password, err = readPassword(); err != nil {
			log.Fatal().Err(err).Msg("Failed to read password")
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	// ─── Connect to PostgreSQL ─────────────────────────────────────────
	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	authService := service.NewAuthService(cfg)

	exam := &model.Exam{
		Title:           def.Title,
		DurationMinutes: def.DurationMinutes,
		StartsAt:        def.StartsAt,
		EndsAt:          def.EndsAt,
	}
	if def.Password != "" {
		if exam.PasswordHash, err = authService.HashPassword(def.Password); err != nil {
			log.Fatal().Err(err).Msg("Failed to hash exam password")
		}
	}

	// ─── Insert Exam, Questions and Students ───────────────────────────
	// One transaction: a half-seeded exam is worse than none.
	var students []model.Student
	err = pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		if err := repository.NewExamRepository(tx).Create(ctx, exam); err != nil {
			return fmt.Errorf("create exam: %w", err)
		}
		questionRepo := repository.NewQuestionRepository(tx)
		for _, sq := range questions {
			q := sq.Question
			q.ExamID = exam.ID
			if err := questionRepo.Create(ctx, &q, sq.Correct); err != nil {
				return fmt.Errorf("create question %d: %w", q.OrderNum, err)
			}
		}
		studentRepo := repository.NewStudentRepository(tx)
		for _, e := range def.Students {
			s := model.Student{NISN: e.NISN, Name: e.Name}
			if err := studentRepo.Upsert(ctx, &s); err != nil {
				return fmt.Errorf("upsert student %s: %w", e.NISN, err)
			}
			students = append(students, s)
		}
		return nil
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to seed exam")
	}

	// ─── Print Tokens ──────────────────────────────────────────────────
	fmt.Printf("Exam %q created\n", exam.Title)
	fmt.Printf("  EXAM_ID=%s\n", exam.ID)
	fmt.Printf("  questions: %d, duration: %d min\n\n", len(questions), exam.DurationMinutes)

	for _, s := range students {
		token, err := authService.GenerateStudentToken(s.ID)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to sign student token")
		}
		fmt.Printf("%s (%s)\n  EXAM_API_TOKEN=%s\n", s.Name, s.NISN, token)
	}

	if def.Proctor != "" {
		token, err := authService.GenerateProctorToken(def.Proctor, exam.ID)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to sign proctor token")
		}
		fmt.Printf("\nProctor %s\n  /ws/v1/proctor/exams/%s/monitor?token=%s\n", def.Proctor, exam.ID, token)
	}
}

func readPassword() (string, error) {
	fmt.Print("Enter exam password: ")
	if term.IsTerminal(int(syscall.Stdin)) {
		b, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Println() // Newline after password input
		return string(b), err
	}
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	return strings.TrimSpace(line), err
}
