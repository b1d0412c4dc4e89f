package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"PaperWatcher/internal/domain"
	"PaperWatcher/internal/usecase"
)

var watchFlags struct {
	top    int
	notify bool
	daemon bool
	noSync bool
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Fetch, deduplicate and rank new works",
	RunE:  runWatch,
}

func init() {
	f := watchCmd.Flags()
	f.IntVar(&watchFlags.top, "top", 0, "Keep at most N works (default from config)")
	f.BoolVar(&watchFlags.notify, "notify", false, "Send a Telegram digest of new works")
	f.BoolVar(&watchFlags.daemon, "daemon", false, "Keep running and repeat on the scheduler interval")
	f.BoolVar(&watchFlags.noSync, "no-sync", false, "Skip the incremental Zotero sync before fetching")
}

func runWatch(cmd *cobra.Command, _ []string) error {
	application, logger, err := bootstrap()
	if err != nil {
		return err
	}

	opts := usecase.WatchOptions{Top: watchFlags.top, Notify: watchFlags.notify, SkipSync: watchFlags.noSync}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	if watchFlags.daemon {
		ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
		defer stop()
		return application.RunDaemon(ctx, opts)
	}

	result, err := application.RunWatch(ctx, opts)
	if err != nil {
		return err
	}
	logger.Debug("watch finished", "cycle_id", result.CycleID)
	printResult(cmd.OutOrStdout(), result)
	return nil
}

func printResult(out io.Writer, result usecase.WatchResult) {
	fmt.Fprintf(out, "Fetched %d candidates, %d new after dedupe, %d ranked\n", result.Fetched, result.Unique, len(result.Ranked))
	for i, w := range result.Ranked {
		fmt.Fprintf(out, "%3d. %.3f %-9s %-8s %s\n", i+1, w.Score, w.Label, w.Source, w.Title)
		if link := firstLink(w.CandidateWork); link != "" {
			fmt.Fprintf(out, "     %s\n", link)
		}
	}
	if result.Delivered > 0 {
		fmt.Fprintf(out, "Delivered %d works to Telegram\n", result.Delivered)
	}
}

func firstLink(w domain.CandidateWork) string {
	if w.URL != "" {
		return w.URL
	}
	if w.DOI != "" {
		return "https://doi.org/" + w.DOI
	}
	return ""
}
