package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"searchchat/backend/internal/assistant"
	"searchchat/backend/internal/runlog"
	"searchchat/backend/internal/service"
)

func askCmd() *cobra.Command {
	var model string
	var quiet bool

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Answer one question in the terminal",
		Long: `ask runs a single message through the same search-gated orchestration as
the HTTP API. Progress goes to stderr and the answer to stdout.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := loadRuntime(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer rt.Close()

			if strings.TrimSpace(model) == "" {
				model = rt.cfg.DefaultModel
			}
			req := assistant.Request{Message: strings.Join(args, " "), Model: model}
			if err := req.Validate(); err != nil {
				return fmt.Errorf("%w (pass --model or set DEFAULT_MODEL)", err)
			}

			svc := service.New(rt.cfg, rt.database, rt.logger)
			progress := io.Writer(os.Stderr)
			if quiet {
				progress = io.Discard
			}
			collector := runlog.NewCollector(newTerminalSink(os.Stdout, progress))

			summary, err := svc.Orchestrator.Run(cmd.Context(), req, collector)
			if err != nil {
				collector.MarkStopped(assistant.UserMessage(err))
			}
			if _, recordErr := svc.Runs.Record(cmd.Context(), runlog.NewRun(req, summary, collector.Snapshot())); recordErr != nil {
				rt.logger.Warn("record run failed", zap.Error(recordErr))
			}
			if err != nil {
				return fmt.Errorf("%s: %w", assistant.UserMessage(err), err)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&model, "model", "m", "", "model id (defaults to DEFAULT_MODEL)")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "hide progress messages")
	return cmd
}

// terminalSink prints answer text to out and everything else to progress.
type terminalSink struct {
	out      io.Writer
	progress io.Writer
}

func newTerminalSink(out, progress io.Writer) *terminalSink {
	return &terminalSink{out: out, progress: progress}
}

func (s *terminalSink) Emit(event assistant.Event) error {
	var err error
	switch event.Kind {
	case assistant.KindProgress:
		_, err = fmt.Fprintf(s.progress, "[%s] %s\n", event.Phase, event.Message)
	case assistant.KindContent:
		_, err = io.WriteString(s.out, event.Text)
	case assistant.KindError:
		_, err = fmt.Fprintf(s.progress, "\nerror: %s\n", event.Message)
	case assistant.KindDone:
		_, err = io.WriteString(s.out, "\n")
	}
	return err
}
