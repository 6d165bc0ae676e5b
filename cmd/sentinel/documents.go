package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/raaihank/pdn-sentinel/internal/decision"
	"github.com/raaihank/pdn-sentinel/internal/document"
	"github.com/raaihank/pdn-sentinel/internal/privacy"
	"github.com/raaihank/pdn-sentinel/internal/report"
	"github.com/raaihank/pdn-sentinel/internal/workflow"
)

func newScanCmd(a *app) *cobra.Command {
	var (
		text           string
		failOnFindings bool
	)

	cmd := &cobra.Command{
		Use:   "scan [file]",
		Short: "Report confidential information without changing the document",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, log, svc, err := a.setup(ctx)
			if err != nil {
				return err
			}
			defer log.Sync()
			defer svc.Close()

			doc, err := a.readDocument(args, text)
			if err != nil {
				return err
			}

			start := time.Now()
			engine := svc.Engine()
			findings, err := engine.Scan(ctx, doc.Text)
			if err != nil {
				return err
			}

			rep := report.ForScan(engine.Registry(), doc.Name(), findings)
			log.WithDocumentID(doc.ID).Info("Scan completed",
				zap.String("status", rep.Status),
				zap.Strings("categories", findings.Categories()),
				zap.Int("literals", findings.Total()),
				zap.Duration("duration", time.Since(start)),
			)

			if err := a.writeReport(rep, cfg.Output.Format); err != nil {
				return err
			}
			if failOnFindings && len(findings) > 0 {
				return errVerdict
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&text, "text", "t", "", "Text to scan instead of a file")
	cmd.Flags().BoolVar(&failOnFindings, "fail-on-findings", false, "Exit with status 2 when anything is found")
	return cmd
}

func newAnonymizeCmd(a *app) *cobra.Command {
	var (
		text   string
		mode   string
		noSave bool
	)

	cmd := &cobra.Command{
		Use:   "anonymize [file]",
		Short: "Delete or mask every finding in the whole document",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, log, svc, err := a.setup(ctx)
			if err != nil {
				return err
			}
			defer log.Sync()
			defer svc.Close()

			doc, err := a.readDocument(args, text)
			if err != nil {
				return err
			}

			var redaction privacy.Mode
			switch {
			case mode != "":
				redaction, err = privacy.ParseMode(mode)
			case a.interactive():
				redaction, err = decision.NewPrompter(a.in, a.out).SelectMode()
			default:
				redaction, err = privacy.ParseMode(cfg.Redaction.Mode)
			}
			if err != nil {
				return err
			}

			engine := svc.Engine()
			res, err := engine.Anonymize(ctx, doc.Text, redaction)
			if err != nil {
				return err
			}
			rep := report.ForAnonymize(engine.Registry(), doc.Name(), res, cfg.Output.PreviewLength)

			var saveErr error
			if !noSave {
				kind := document.OutputAnonymized
				if redaction == privacy.ModeDelete {
					kind = document.OutputDeleted
				}
				rep.OutputPath, saveErr = document.Save(cfg.Output.Dir, document.OutputName(kind, doc.Name()), res.Text)
			}

			if err := a.writeReport(rep, cfg.Output.Format); err != nil {
				return err
			}
			return saveErr
		},
	}

	cmd.Flags().StringVarP(&text, "text", "t", "", "Text to anonymize instead of a file")
	cmd.Flags().StringVarP(&mode, "mode", "m", "", "mask (anonymize) or delete; asks on a terminal when unset")
	cmd.Flags().BoolVar(&noSave, "no-save", false, "Do not write the processed document")
	return cmd
}

func newProcessCmd(a *app) *cobra.Command {
	var (
		text      string
		decisions []string
		usePolicy bool
		noSave    bool
	)

	cmd := &cobra.Command{
		Use:   "process [file]",
		Short: "Review flagged sentences one by one and decide what to do with each",
		Long: "process splits the document into sentences and asks for a decision on each\n" +
			"flagged one: a erases the sentence, b masks the findings, c keeps it as is.\n" +
			"Keeping any flagged sentence blocks the document (exit status 2).\n\n" +
			"On a terminal the decisions are asked interactively. Otherwise, or with\n" +
			"--policy, the decision policy from the configuration is applied.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, log, svc, err := a.setup(ctx)
			if err != nil {
				return err
			}
			defer log.Sync()
			defer svc.Close()

			doc, err := a.readDocument(args, text)
			if err != nil {
				return err
			}

			var decider workflow.Decider
			switch {
			case len(decisions) > 0:
				decider = decision.NewScripted(decisions...)
			case !usePolicy && a.interactive():
				decider = decision.NewPrompter(a.in, a.out)
			default:
				policy, err := svc.Policy()
				if err != nil {
					return err
				}
				decider = policy
			}

			engine := svc.Engine()
			res, runErr := engine.Process(ctx, doc.Text, decider)
			if res == nil {
				return runErr
			}
			rep := report.ForResult(engine.Registry(), doc.Name(), res, cfg.Output.PreviewLength)

			var saveErr error
			if runErr == nil && !res.Blocked() && !noSave {
				rep.OutputPath, saveErr = document.Save(cfg.Output.Dir, document.OutputName(document.OutputSafe, doc.Name()), res.Text)
			}

			if err := a.writeReport(rep, cfg.Output.Format); err != nil {
				return err
			}
			switch {
			case runErr != nil:
				return fmt.Errorf("processing stopped: %w", runErr)
			case saveErr != nil:
				return saveErr
			case res.Blocked():
				return errVerdict
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&text, "text", "t", "", "Text to process instead of a file")
	cmd.Flags().StringSliceVarP(&decisions, "decisions", "d", nil, "Answers for flagged sentences in order, e.g. a,b,c")
	cmd.Flags().BoolVar(&usePolicy, "policy", false, "Apply the configured decision policy even on a terminal")
	cmd.Flags().BoolVar(&noSave, "no-save", false, "Do not write the safe document")
	return cmd
}
