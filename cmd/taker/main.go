// Command taker is a terminal exam client: it starts or resumes a submission
// against the exam API and drives it with line commands.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-session/internal/clock"
	"github.com/stemsi/exstem-session/internal/config"
	"github.com/stemsi/exstem-session/internal/countdown"
	"github.com/stemsi/exstem-session/internal/draft"
	"github.com/stemsi/exstem-session/internal/examapi"
	"github.com/stemsi/exstem-session/internal/logger"
	"github.com/stemsi/exstem-session/internal/model"
	"github.com/stemsi/exstem-session/internal/session"
	"golang.org/x/term"
)

func main() {
	var (
		examFlag    string
		resumeFlag  string
		askPassword bool
	)
	flag.StringVar(&examFlag, "exam", os.Getenv("EXAM_ID"), "Exam to start (defaults to $EXAM_ID)")
	flag.StringVar(&resumeFlag, "resume", "", "Submission to resume instead of starting")
	flag.BoolVar(&askPassword, "password", false, "Prompt for the exam password")
	flag.Parse()

	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log, closeLog, err := logger.SetupFile(cfg.LogFile, os.Stderr, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer closeLog()

	examID, err := uuid.Parse(examFlag)
	if err != nil && resumeFlag == "" {
		log.Fatal().Str("exam", examFlag).Msg("An exam id is required (-exam or EXAM_ID)")
	}
	var resumeID uuid.UUID
	if resumeFlag != "" {
		if resumeID, err = uuid.Parse(resumeFlag); err != nil {
			log.Fatal().Err(err).Msg("Invalid -resume submission id")
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// A terminal password prompt reads stdin raw, so it runs before the
	// line reader starts. Piped input goes through the line reader only.
	scr := &screen{out: os.Stdout}
	stdinTTY := term.IsTerminal(int(syscall.Stdin))
	var password string
	if askPassword && stdinTTY {
		if password, err = readPassword(); err != nil {
			log.Fatal().Err(err).Msg("Failed to read password")
		}
	}
	lines := readLines(os.Stdin)
	if askPassword && !stdinTTY {
		answer, ok := ask(ctx, scr, lines, "Exam password: ")
		if !ok {
			log.Fatal().Msg("No exam password on stdin")
		}
		password = strings.TrimSpace(answer)
	}

	// ─── Open Draft Store ──────────────────────────────────────────────
	drafts, closeDrafts, err := draft.Open(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open draft store")
	}
	defer closeDrafts()

	// ─── Wire Session ──────────────────────────────────────────────────
	api := examapi.New(examapi.Options{
		BaseURL: cfg.ExamAPIURL,
		Token:   cfg.ExamAPIToken,
		Timeout: cfg.SubmitTimeout,
	}, log)
	clk := clock.New()
	timer := countdown.New(api, clk, log, countdown.Options{
		TickInterval: cfg.TickInterval,
		SyncInterval: cfg.SyncInterval,
		SyncTimeout:  cfg.RequestTimeout,
	})

	submitted := make(chan model.SubmitResult, 1)
	ctrl := session.New(api, drafts, timer, clk, log, session.Options{
		MCQDebounce:    cfg.MCQDebounce,
		EssayDebounce:  cfg.EssayDebounce,
		RequestTimeout: cfg.RequestTimeout,
		SubmitTimeout:  cfg.SubmitTimeout,
		OnSubmitted: func(r model.SubmitResult) {
			select {
			case submitted <- r:
			default:
			}
		},
		OnAutoSubmitError: func(err error) {
			scr.printf("\n!! automatic submit failed: %v\n   type submit to try again\n", err)
		},
	})
	defer ctrl.Close()

	if err := initialize(ctx, ctrl, scr, lines, examID, resumeID, password); err != nil {
		log.Error().Err(err).Msg("Could not open the exam")
		return
	}
	v := ctrl.Snapshot()
	log.Info().Str("submission_id", v.SubmissionID.String()).Msg("Exam session ready")
	scr.printf("submission %s (use -resume %s to continue later)\n%s\n", v.SubmissionID, v.SubmissionID, helpText)
	scr.render(v)

	alerts := clk.Every(time.Second, func() {
		v := ctrl.Snapshot()
		scr.clockAlert(v.Clock, v.State)
	})
	defer alerts.Stop()

	for {
		select {
		case <-ctx.Done():
			// Drafts stay on disk; the next run resumes from them.
			flushCtx, cancel := context.WithTimeout(context.Background(), cfg.RequestTimeout)
			_ = ctrl.FlushAnswer(flushCtx)
			cancel()
			scr.printf("\ninterrupted, answers kept locally\n")
			return
		case r := <-submitted:
			scr.printf("\nexam submitted at %s (%s)\n", r.SubmittedAt.Local().Format(time.Kitchen), r.Status)
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			if quit := handle(ctx, ctrl, scr, lines, line); quit {
				return
			}
		}
	}
}

// initialize opens the exam, offering a retry on failure.
func initialize(ctx context.Context, ctrl *session.Controller, scr *screen, lines <-chan string, examID, resumeID uuid.UUID, password string) error {
	for {
		err := ctrl.Initialize(ctx, examID, resumeID, password)
		if err == nil {
			return nil
		}
		answer, ok := ask(ctx, scr, lines, fmt.Sprintf("could not open the exam: %s\nretry? [Y/n] ", describe(err)))
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !ok || declined(answer) {
			return err
		}
	}
}

// ask prints prompt and waits for the next input line. ok is false when
// input ended or ctx was cancelled first.
func ask(ctx context.Context, scr *screen, lines <-chan string, prompt string) (string, bool) {
	scr.printf("%s", prompt)
	select {
	case <-ctx.Done():
		return "", false
	case answer, ok := <-lines:
		return answer, ok
	}
}

// handle runs one command and reports whether the taker should exit.
func handle(ctx context.Context, ctrl *session.Controller, scr *screen, lines <-chan string, line string) bool {
	cmd, err := parseCommand(line)
	if err != nil {
		scr.printf("%v\n", err)
		return false
	}

	v := ctrl.Snapshot()
	switch cmd.verb {
	case verbShow:
	case verbHelp:
		scr.printf("%s\n", helpText)
		return false
	case verbNext:
		err = ctrl.GoToNext(ctx)
	case verbPrev:
		err = ctrl.GoToPrevious(ctx)
	case verbGoto:
		err = ctrl.GoTo(ctx, cmd.order)
	case verbPick, verbWrite:
		if v.Question == nil {
			return false
		}
		var a model.Answer
		if cmd.verb == verbPick {
			a, err = pickAnswer(v.Question, cmd.args)
		} else {
			a, err = writeAnswer(v.Question, cmd.args)
		}
		if err == nil {
			err = ctrl.SetAnswer(a)
		}
	case verbFlush:
		if err = ctrl.FlushAnswer(ctx); err == nil {
			scr.printf("saved\n")
		}
	case verbSubmit:
		answer, ok := ask(ctx, scr, lines, "submit the exam? answers cannot be changed afterwards [y/N] ")
		if !ok || !confirmed(answer) {
			scr.printf("not submitted\n")
			// Closed input quits; an interrupt is left to the main loop.
			return !ok && ctx.Err() == nil
		}
		scr.printf("submitting…\n")
		// Success is reported through OnSubmitted.
		_, err = ctrl.Submit(ctx, true)
	case verbQuit:
		return true
	}

	if err != nil {
		scr.printf("%s\n", describe(err))
		return false
	}
	if cmd.verb != verbSubmit && cmd.verb != verbFlush {
		scr.render(ctrl.Snapshot())
	}
	return false
}

// describe turns errors into something a student can act on.
func describe(err error) string {
	switch {
	case errors.Is(err, session.ErrOrderOutOfRange):
		return "no such question"
	case errors.Is(err, session.ErrUnsavedAnswers):
		return "some answers could not be saved, check the connection and submit again"
	case errors.Is(err, session.ErrSubmitInProgress):
		return "already submitting"
	case errors.Is(err, session.ErrNotActive):
		return "the exam is not open"
	}
	if code := examapi.CodeOf(err); code != "" {
		return fmt.Sprintf("%s (%s)", err, code)
	}
	return err.Error()
}

func readLines(f *os.File) <-chan string {
	out := make(chan string)
	go func() {
		defer close(out)
		sc := bufio.NewScanner(f)
		sc.Buffer(make([]byte, 64*1024), 1<<20)
		for sc.Scan() {
			out <- sc.Text()
		}
	}()
	return out
}

func readPassword() (string, error) {
	fmt.Print("Exam password: ")
	b, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	return string(b), err
}

func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
