package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var profileFlags struct {
	full bool
}

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Sync the library and rebuild the interest profile",
	RunE:  runProfile,
}

func init() {
	profileCmd.Flags().BoolVar(&profileFlags.full, "full", false, "Re-download the whole library instead of changes since the last sync")
}

func runProfile(cmd *cobra.Command, _ []string) error {
	application, _, err := bootstrap()
	if err != nil {
		return err
	}

	report, err := application.RunProfile(cmd.Context(), profileFlags.full)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if s := report.Ingest; s != nil {
		fmt.Fprintf(out, "Library sync: %d fetched, %d removed, version %d\n", s.Fetched, s.Removed, s.LastModifiedVersion)
	}
	a := report.Artifacts
	fmt.Fprintf(out, "Profile built from %d items\n  index:   %s\n  summary: %s\n", a.ItemCount, a.IndexPath, a.SummaryPath)
	return nil
}
