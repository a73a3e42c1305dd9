package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/screener/internal/interview"
	"github.com/spigell/screener/internal/logger"
	"github.com/spigell/screener/internal/session"
)

const (
	PromptTypeAnswer = "Type my own answer"
	commandFocus     = ":focus"
	commandFull      = ":fullscreen"
	commandQuit      = ":quit"
)

var errQuit = errors.New("quit requested")

var rehearseCmd = &cobra.Command{
	Use:   "rehearse",
	Short: "Run a full interview in the terminal against a resume text file",
	Run: func(cmd *cobra.Command, _ []string) {
		rehearse(cmd)
	},
}

func init() {
	rootCmd.AddCommand(rehearseCmd)

	rehearseCmd.Flags().StringP("resume", "r", "", "path to the resume as plain text (required)")
	rehearseCmd.MarkFlagRequired("resume")
}

func rehearse(cmd *cobra.Command) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}
	defer logger.Sync()

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	resume, err := os.ReadFile(cmd.Flag("resume").Value.String())
	if err != nil {
		logger.Fatal("reading the resume", zap.Error(err))
	}

	svc, err := newServices(ctx, config, logger)
	if err != nil {
		logger.Fatal("preparing services", zap.Error(err))
	}
	defer svc.Close(context.Background())

	snap, err := svc.registry.Admit(ctx, string(resume))
	if err != nil {
		logger.Fatal("admitting the candidate", zap.Error(err), zap.String("hint", "upload a text resume that names the candidate"))
	}

	logger.Info("candidate profile",
		zap.String("name", snap.Profile.DisplayName()),
		zap.Strings("skills", snap.Profile.Skills),
		zap.Int("projects", len(snap.Profile.Projects)),
	)

	r := &rehearsal{
		registry: svc.registry,
		id:       snap.ID,
		out:      cmd.OutOrStdout(),
		logger:   logger,
	}

	reply, err := r.run(ctx)
	if err != nil {
		logger.Fatal("rehearsal failed", zap.Error(err))
	}
	r.printOutcome(reply)
}

type rehearsal struct {
	registry *session.Registry
	id       string
	out      io.Writer
	logger   *zap.Logger
}

func (r *rehearsal) run(ctx context.Context) (session.Reply, error) {
	reply, err := r.registry.Start(ctx, r.id)
	if err != nil {
		return r.abandon(ctx, err)
	}

	said := ""
	for !reply.Status.Terminal() {
		if reply.Question != said {
			fmt.Fprintf(r.out, "\nInterviewer: %s\n\n", reply.Question)
			said = reply.Question
		}

		answer, err := ask(reply.SuggestedReplies)
		if err != nil {
			return r.abandon(ctx, err)
		}

		switch strings.TrimSpace(answer) {
		case commandQuit:
			return r.abandon(ctx, errQuit)
		case commandFocus:
			reply, err = r.report(ctx, interview.EventFocusLost, reply)
		case commandFull:
			reply, err = r.report(ctx, interview.EventFullscreenExit, reply)
		default:
			reply, err = r.registry.SubmitUtterance(ctx, r.id, answer)
		}
		if err != nil {
			return r.abandon(ctx, err)
		}
	}

	return reply, nil
}

// report injects a proctoring event and settles the session once the threshold is hit.
func (r *rehearsal) report(ctx context.Context, kind interview.EventKind, current session.Reply) (session.Reply, error) {
	verdict, err := r.registry.ReportProctoringEvent(ctx, r.id, string(kind))
	if err != nil {
		return current, err
	}

	r.logger.Warn("proctoring violation recorded",
		zap.String("kind", string(kind)),
		zap.Int("strikes", verdict.Strikes),
		zap.Int("remaining", verdict.Remaining()),
	)

	if verdict.Disqualified {
		return r.registry.Settle(ctx, r.id)
	}
	return current, nil
}

// abandon ends the session for interrupts and quit requests and passes other errors on.
func (r *rehearsal) abandon(ctx context.Context, cause error) (session.Reply, error) {
	interrupted := errors.Is(cause, promptui.ErrInterrupt) ||
		errors.Is(cause, promptui.ErrEOF) ||
		errors.Is(cause, errQuit) ||
		ctx.Err() != nil
	if !interrupted {
		return session.Reply{}, cause
	}

	r.logger.Info("ending the interview", zap.String("reason", cause.Error()))

	reply, err := r.registry.Cancel(context.Background(), r.id)
	if err != nil && !errors.Is(err, interview.ErrSessionClosed) {
		return reply, err
	}
	return reply, nil
}

func (r *rehearsal) printOutcome(reply session.Reply) {
	fmt.Fprintf(r.out, "\n%s\n", reply.Notice)
	fmt.Fprintf(r.out, "Status: %s, strikes: %d, questions: %d\n", reply.Status, reply.Strikes, reply.QuestionIndex)

	if reply.Report == nil {
		return
	}
	if reply.Report.Unavailable {
		fmt.Fprintf(r.out, "Score unavailable: %s\n", reply.Report.Feedback)
		return
	}
	fmt.Fprintf(r.out, "Score: %d/%d\n%s\n", reply.Report.Score, interview.MaxScore, reply.Report.Feedback)
}

func ask(suggestions []string) (string, error) {
	if len(suggestions) > 0 {
		selectPrompt := promptui.Select{
			Label: "Reply",
			Items: append(append([]string{}, suggestions...), PromptTypeAnswer),
		}

		_, selected, err := selectPrompt.Run()
		if err != nil {
			return "", err
		}
		if selected != PromptTypeAnswer {
			return selected, nil
		}
	}

	answerPrompt := promptui.Prompt{
		Label: fmt.Sprintf("Your answer (%s, %s, %s)", commandFocus, commandFull, commandQuit),
	}
	return answerPrompt.Run()
}
