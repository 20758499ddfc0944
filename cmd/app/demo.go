package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"dialogue-orchestrator/internal/config"
	"dialogue-orchestrator/internal/domain"
	"dialogue-orchestrator/internal/domain/model"
	aiAdapters "dialogue-orchestrator/internal/infra/adapters/ai"
	"dialogue-orchestrator/internal/infra/worker"
	"dialogue-orchestrator/internal/usecase"
)

type demoOptions struct {
	kind        string
	respondents int
	stageEvery  int
	maxAdvances int
	delay       time.Duration
	verbose     bool
}

func newDemoCmd() *cobra.Command {
	var o demoOptions
	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Run a scripted session against canned replies and print the transcript",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDemo(cmd.Context(), cmd.OutOrStdout(), o)
		},
	}
	cmd.Flags().StringVar(&o.kind, "kind", string(model.KindIndividual), "session kind: individual or group")
	cmd.Flags().IntVar(&o.respondents, "respondents", 1, "number of respondents")
	cmd.Flags().IntVar(&o.stageEvery, "stage-every", 3, "advance the stage every N turns (0 never)")
	cmd.Flags().IntVar(&o.maxAdvances, "max-advances", 50, "safety cap on advance calls")
	cmd.Flags().DurationVar(&o.delay, "delay", 0, "simulated generation latency")
	cmd.Flags().BoolVarP(&o.verbose, "verbose", "v", false, "log orchestrator events to stderr")
	return cmd
}

func runDemo(ctx context.Context, out io.Writer, o demoOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	level := zerolog.Disabled
	if o.verbose {
		level = zerolog.DebugLevel
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).Level(level).With().Timestamp().Logger()

	cfg, err := config.Parse(nil)
	if err != nil {
		return err
	}
	cfg.Runtime.Dev = true
	gen := aiAdapters.NewGenerator(aiAdapters.NewNoopAIAdapter(o.delay), aiAdapters.HeuristicCounter{}, generatorConfig(cfg), &logger)
	sink := worker.NewOutcomeDispatcher(nil, nil, nil, &logger)
	uc := usecase.NewSessionUseCase(gen, sink, nil, nil, sessionOptions(cfg), &logger)
	defer uc.Shutdown(context.Background())

	params := usecase.StartParams{
		Kind:        model.SessionKind(o.kind),
		Facilitator: model.Participant{ID: "facilitator", Name: "Dr. Vale", Persona: "calm, curious group therapist"},
	}
	for i := 1; i <= o.respondents; i++ {
		params.Participants = append(params.Participants, model.Participant{
			ID:   fmt.Sprintf("respondent-%d", i),
			Name: demoNames[(i-1)%len(demoNames)],
		})
	}

	const room = "demo"
	sess, err := uc.Start(ctx, room, params)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "session %s (%s, %d respondent(s))\n\n", sess.ID, sess.Kind, len(sess.Participants))
	for _, m := range sess.History {
		printMessage(out, m)
	}

	for i := 0; i < o.maxAdvances; i++ {
		res, err := uc.Advance(ctx, room)
		if err != nil {
			if errors.Is(err, domain.ErrEvaluationFailed) {
				fmt.Fprintln(out, "\nevaluation failed, retrying once")
				if res, err = uc.RetryEvaluation(ctx, room); err != nil {
					return err
				}
			} else {
				return err
			}
		}
		for _, m := range res.Messages {
			printMessage(out, m)
		}
		for _, f := range res.Faults {
			fmt.Fprintf(out, "  (%s skipped: %s)\n", f.SpeakerID, f.Reason)
		}
		if res.Ruling != nil {
			r := res.Ruling
			fmt.Fprintf(out, "\nruling: risk=%s quality=%s score=%d\n", r.Verdict.Risk, r.Verdict.Quality, r.Verdict.Score)
			return nil
		}
		if o.stageEvery > 0 && res.Turn%o.stageEvery == 0 {
			if st, err := uc.AdvanceStage(ctx, room); err == nil {
				fmt.Fprintf(out, "  -- stage: %s\n", st)
			}
		}
	}
	return fmt.Errorf("no ruling after %d advances", o.maxAdvances)
}

var demoNames = []string{"Ana", "Ben", "Chen", "Dara", "Eli", "Femi"}

func printMessage(out io.Writer, m model.Message) {
	fmt.Fprintf(out, "[turn %2d] %-9s %s: %s\n", m.TurnNumber, m.SpeakerRole, m.SpeakerName, m.Text)
}
