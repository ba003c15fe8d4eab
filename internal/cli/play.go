package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"trivia-engine/internal/app"
	"trivia-engine/internal/config"
	"trivia-engine/internal/difficulty"
	"trivia-engine/internal/domain"
	"trivia-engine/internal/engine"
	"trivia-engine/internal/infra/memory"
	"trivia-engine/internal/infra/sqlite"
)

// NewPlayCmd runs a single session in the terminal against a local authority.
func NewPlayCmd(configPath *string) *cobra.Command {
	var (
		userID       string
		categoryID   string
		difficultyID int
	)
	cmd := &cobra.Command{
		Use:   "play",
		Short: "Play one trivia session in the terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil && !errors.Is(err, fs.ErrNotExist) {
				return err
			}
			logger := newLogger(cfg)

			loader, err := baseCatalog(cfg, nil)
			if err != nil {
				return err
			}
			catalog := cachedCatalog(cfg, loader, nil)

			var authority engine.SessionRepository = memory.NewAuthority(catalog)
			if cfg.SQLite.Path != "" {
				ledger, err := sqlite.Open(cfg.SQLite.Path, catalog)
				if err != nil {
					return err
				}
				defer ledger.Close()
				authority = ledger
			}

			policy, err := difficulty.NewPolicy(cfg.DifficultyTable())
			if err != nil {
				return err
			}
			service := app.NewSessionService(memory.NewRegistry(), machineFactory(cfg, authority, policy, nil, logger), logger)
			defer service.Shutdown(context.Background())

			return playSession(cmd.Context(), service, cmd.InOrStdin(), cmd.OutOrStdout(), userID, categoryID, difficultyID)
		},
	}
	cmd.Flags().StringVar(&userID, "user", "local", "player id")
	cmd.Flags().StringVar(&categoryID, "category", "general", "question category")
	cmd.Flags().IntVar(&difficultyID, "difficulty", 1, "difficulty id")
	return cmd
}

func playSession(ctx context.Context, service *app.SessionService, in io.Reader, out io.Writer, userID, categoryID string, difficultyID int) error {
	engineID, snap, err := service.Start(ctx, userID, categoryID, difficultyID)
	if err != nil {
		renderOutcome(out, snap)
		return err
	}
	updates, cancel, err := service.Subscribe(engineID)
	if err != nil {
		return err
	}
	defer cancel()
	results, err := service.Sync(engineID)
	if err != nil {
		return err
	}

	lines := readLines(in)
	shown := -1
	for {
		select {
		case <-ctx.Done():
			service.Abandon(engineID)
			return ctx.Err()

		case s, ok := <-updates:
			if !ok {
				return nil
			}
			if s.Status.Terminal() {
				renderOutcome(out, s)
				return reportSync(ctx, out, results)
			}
			if s.Status == domain.StatusAwaitingAnswer && s.QuestionIndex != shown {
				shown = s.QuestionIndex
				renderQuestion(out, s)
			}

		case line, ok := <-lines:
			if !ok {
				lines = nil
				if current, err := service.Snapshot(engineID); err == nil && !current.Status.Terminal() {
					service.Abandon(engineID)
					fmt.Fprintln(out, "Session abandoned.")
					return nil
				}
				continue
			}
			submitLine(ctx, service, out, engineID, line)
		}
	}
}

func submitLine(ctx context.Context, service *app.SessionService, out io.Writer, engineID, line string) {
	current, err := service.Snapshot(engineID)
	if err != nil || current.CurrentQuestion == nil || current.Status != domain.StatusAwaitingAnswer {
		return
	}
	options := current.CurrentQuestion.Options
	n, err := strconv.Atoi(strings.TrimSpace(line))
	if err != nil || n < 1 || n > len(options) {
		fmt.Fprintf(out, "Pick a number between 1 and %d.\n", len(options))
		return
	}
	if _, err := service.SubmitAnswer(ctx, engineID, options[n-1].ID); err != nil {
		fmt.Fprintf(out, "Answer rejected: %v\n", err)
	}
}

func readLines(in io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()
	return lines
}

func renderQuestion(out io.Writer, s domain.Snapshot) {
	q := s.CurrentQuestion
	fmt.Fprintf(out, "\nQuestion %d/%d (%d points, %ds, score so far %d)\n",
		s.QuestionIndex+1, s.TotalQuestions, q.BaseScore, s.TimeRemaining, s.Score)
	fmt.Fprintln(out, q.Statement)
	for i, o := range q.Options {
		fmt.Fprintf(out, "  %d) %s\n", i+1, o.Text)
	}
	fmt.Fprint(out, "Your answer: ")
}

func renderOutcome(out io.Writer, s domain.Snapshot) {
	switch s.Reason {
	case domain.ReasonCompleted:
		fmt.Fprintf(out, "\nYou won! Score: %d\n", s.Score)
	case domain.ReasonWrongAnswer:
		fmt.Fprintf(out, "\nWrong answer. Score: %d\n", s.Score)
	case domain.ReasonTimeout:
		fmt.Fprintf(out, "\nTime's up. Score: %d\n", s.Score)
	case domain.ReasonEmptyCatalog:
		fmt.Fprintln(out, "No questions available for this category.")
	case domain.ReasonStartFailed:
		fmt.Fprintln(out, "Could not start a session.")
	default:
		fmt.Fprintf(out, "Session ended (%s). Score: %d\n", s.Status, s.Score)
	}
}

func reportSync(ctx context.Context, out io.Writer, results <-chan domain.SyncResult) error {
	select {
	case res, ok := <-results:
		if !ok {
			return nil
		}
		if w := res.Warning(); w != "" {
			fmt.Fprintf(out, "Warning: %s\n", w)
			return nil
		}
		fmt.Fprintf(out, "Final score %d saved.\n", res.FinalScore)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
