package main

import (
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func memoriesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "memories",
		Short: "Inspect learned memories",
		Long:  `List and manage learned vendor mappings and correction patterns.`,
	}

	cmd.AddCommand(memoriesListCmd())
	cmd.AddCommand(memoriesRejectCmd())

	return cmd
}

func memoriesListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list <vendor>",
		Short: "List memories for a vendor",
		Long:  `List vendor label mappings and correction patterns (including global patterns) with their confidence and usage statistics.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			vendor := args[0]
			ctx := cmd.Context()

			store, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			mappings, err := store.GetVendorMemories(ctx, vendor)
			if err != nil {
				return fmt.Errorf("failed to get vendor memories: %w", err)
			}
			patterns, err := store.GetCorrectionMemories(ctx, vendor)
			if err != nil {
				return fmt.Errorf("failed to get correction memories: %w", err)
			}

			if len(mappings) == 0 && len(patterns) == 0 {
				fmt.Printf("No memories for vendor %q yet.\n", vendor)
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			defer func() { _ = w.Flush() }()

			if len(mappings) > 0 {
				fmt.Fprintf(w, "ID\tLABEL\tFIELD\tCONFIDENCE\tREINFORCED\tREJECTED\tLAST USED\n")
				for _, m := range mappings {
					fmt.Fprintf(w, "%d\t%s\t%s\t%.2f\t%d\t%d\t%s\n",
						m.ID, m.SourceLabel, m.TargetField, m.Confidence,
						m.ReinforcedCount, m.RejectedCount, formatLastUsed(m.LastUsedAt))
				}
				fmt.Fprintln(w)
			}

			if len(patterns) > 0 {
				fmt.Fprintf(w, "ID\tVENDOR\tPATTERN\tREMEDIATION\tCONFIDENCE\tREINFORCED\tREJECTED\n")
				for _, p := range patterns {
					scope := "(global)"
					if p.Vendor != nil {
						scope = *p.Vendor
					}
					fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%.2f\t%d\t%d\n",
						p.ID, scope, p.Pattern, p.Remediation, p.Confidence,
						p.ReinforcedCount, p.RejectedCount)
				}
			}
			return nil
		},
	}
}

func memoriesRejectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reject <vendor|correction> <id>",
		Short: "Count a rejection against a memory",
		Long:  `Increment the rejection counter of a memory. Confidence is left unchanged.`,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind := args[0]
			id, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid memory id %q: %w", args[1], err)
			}

			ctx := cmd.Context()
			store, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			switch kind {
			case "vendor":
				err = store.RejectVendorMemory(ctx, id)
			case "correction":
				err = store.RejectCorrectionMemory(ctx, id)
			default:
				return fmt.Errorf("memory kind must be vendor or correction, got %q", kind)
			}
			if err != nil {
				return err
			}

			fmt.Printf("Rejection recorded for %s memory %d.\n", kind, id)
			return nil
		},
	}
}

func formatLastUsed(t *time.Time) string {
	if t == nil {
		return "never"
	}
	return t.Format("2006-01-02")
}
