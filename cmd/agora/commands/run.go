package commands

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/hupe1980/agora/core"
	"github.com/hupe1980/agora/runner"
)

var (
	runParticipants []string
	runMaxTurns     int
	runThreshold    int
	runPassive      bool
	runJSON         bool
	runNoColor      bool
)

var runCmd = &cobra.Command{
	Use:   "run <topic>",
	Short: "Run one debate and print the transcript",
	Long: `Run a single debate to completion and stream the transcript. With
--json every event is printed as one JSON line instead.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runDebate,
}

func init() {
	runCmd.Flags().StringSliceVarP(&runParticipants, "participants", "p", nil, "Participant ids (default: every registered participant)")
	runCmd.Flags().IntVar(&runMaxTurns, "max-turns", 12, "Turn budget; 0 keeps the configured protocol value")
	runCmd.Flags().IntVar(&runThreshold, "threshold", 0, "Consensus threshold percent (default from config)")
	runCmd.Flags().BoolVar(&runPassive, "passive", false, "Passive moderation: no interjections")
	runCmd.Flags().BoolVar(&runJSON, "json", false, "Print raw events as JSON lines")
	runCmd.Flags().BoolVar(&runNoColor, "no-color", false, "Disable colored output")
}

func runDebate(cmd *cobra.Command, args []string) error {
	if runNoColor {
		color.NoColor = true
	}
	a, _, _, err := setup()
	if err != nil {
		return err
	}
	defer func() { _ = a.Close(context.Background()) }()

	participants, err := a.Registry().Resolve(runParticipants)
	if err != nil {
		return err
	}
	protocol := core.Protocol{MaxTurns: runMaxTurns, ConsensusThresholdPercent: runThreshold}
	if runPassive {
		protocol.InterventionStyle = core.InterventionPassive
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	topic := strings.Join(args, " ")
	out := newTranscript(cmd.OutOrStdout(), participants, runJSON)
	if !runJSON {
		out.heading.Fprintf(cmd.OutOrStdout(), "%s\n", topic)
	}

	_, events, errs, err := a.Stream(ctx, topic, runParticipants, protocol)
	if err != nil {
		return err
	}
	for env := range events {
		if final, ok := runner.Concluded(env); ok {
			out.Outcome(*final.Outcome)
			continue
		}
		if err := out.Print(env); err != nil {
			return err
		}
	}
	if err := <-errs; err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
