package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/raaihank/pdn-sentinel/internal/privacy"
)

type categoryRow struct {
	Name       string `json:"name"`
	Rule       string `json:"rule"`
	LegalBasis string `json:"legal_basis"`
	Custom     bool   `json:"custom"`
}

func newCategoriesCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "categories",
		Short: "List the active categories",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, svc, err := a.setup(cmd.Context())
			if err != nil {
				return err
			}
			defer log.Sync()
			defer svc.Close()

			reg := svc.Engine().Registry()
			rows := make([]categoryRow, 0, reg.Len())
			for _, c := range reg.Categories() {
				rows = append(rows, categoryRow{
					Name:       c.Name,
					Rule:       c.Rule.Source,
					LegalBasis: c.LegalBasis,
					Custom:     !svc.IsBuiltin(c.Name),
				})
			}

			if cfg.Output.Format == "json" {
				enc := json.NewEncoder(a.out)
				enc.SetIndent("", "  ")
				return enc.Encode(rows)
			}

			fmt.Fprintf(a.out, "Profile: %s (%d categories)\n\n", reg.Name(), reg.Len())
			tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tSOURCE\tLEGAL BASIS")
			for _, r := range rows {
				name := r.Name
				if r.Custom {
					name += " *"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\n", name, shorten(r.Rule, 40), r.LegalBasis)
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "\nDefault legal basis: %s\n", reg.DefaultBasis())
			return nil
		},
	}

	cmd.AddCommand(newCategoriesAddCmd(a), newCategoriesDeleteCmd(a))
	return cmd
}

func newCategoriesAddCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "add <rules.yaml>",
		Short: "Store the categories of a rules file in the category database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			_, log, svc, err := a.setup(ctx)
			if err != nil {
				return err
			}
			defer log.Sync()
			defer svc.Close()

			defs, err := privacy.LoadRules(args[0])
			if err != nil {
				return err
			}
			for _, def := range defs {
				if _, err := svc.SaveCategory(ctx, def); err != nil {
					return fmt.Errorf("category %s: %w", def.Name, err)
				}
				fmt.Fprintf(a.out, "Stored category %s (%s)\n", def.Name, def.Kind)
			}
			return nil
		},
	}
}

func newCategoriesDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <name>",
		Short: "Remove a stored custom category",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			_, log, svc, err := a.setup(ctx)
			if err != nil {
				return err
			}
			defer log.Sync()
			defer svc.Close()

			if err := svc.DeleteCategory(ctx, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Deleted category %s\n", args[0])
			return nil
		},
	}
}

func shorten(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
