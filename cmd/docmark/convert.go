// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/pdiddy/docmark/internal/broadcast"
	"github.com/pdiddy/docmark/internal/engine"
	"github.com/pdiddy/docmark/internal/history"
	"github.com/pdiddy/docmark/internal/job"
	"github.com/pdiddy/docmark/internal/manifest"
	"github.com/pdiddy/docmark/internal/secrets"
	"github.com/pdiddy/docmark/internal/store"
	"github.com/pdiddy/docmark/pkg/types"
)

var convertCmd = &cobra.Command{
	Use:   "convert [files...]",
	Short: "Convert documents to Markdown",
	Long: `Convert transforms office documents into Markdown. Files are given as
arguments or through a YAML manifest (--manifest); each file becomes an
independent task with its own progress and outcome. Outputs land under
a per-task directory so repeated file names never collide.

When a manifest is used, per-file results and a batch summary are
written back into it after the run.`,
	RunE: runConvert,
}

func runConvert(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()

	// Manifest options sit between the config file and flags.
	var batch *manifest.Manifest
	manifestPath, _ := cmd.Flags().GetString("manifest")
	if manifestPath != "" {
		m, err := manifest.Read(manifestPath)
		if err != nil {
			return err
		}
		m.ApplyOptions(&cfg)
		batch = m
	}
	applyConvertFlags(cmd, &cfg)
	cfg.Engine.RemoteToken = secretDefault(secrets.RemoteTokenKey, cfg.Engine.RemoteToken)

	inputs, err := gatherInputs(batch, args)
	if err != nil {
		return err
	}

	logger := newLogger(cmd)

	adapter, err := engine.NewAdapter(cfg.Engine, logger)
	if err != nil {
		return fmt.Errorf("initializing %s engine: %w", cfg.Engine.Backend, err)
	}

	// History is best-effort: a broken database degrades to an in-memory
	// run rather than blocking conversions.
	var hist job.History
	histStore, err := history.Open(cfg.History)
	if err != nil {
		logger.Warn("conversion history unavailable", "error", err)
	} else {
		hist = histStore
		defer histStore.Close()
	}

	records := store.New()
	bus := broadcast.NewBus(logger)
	defer bus.Close()

	orch := job.New(cfg.Orchestrator, adapter, records, bus, hist, logger)
	defer orch.Close()

	// Ctrl-C cancels every in-flight task; records end up failed.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	go func() {
		<-ctx.Done()
		orch.Close()
	}()

	// Subscribe before submitting so no update is missed.
	sub := bus.SubscribeAll()
	verbose, _ := cmd.Flags().GetBool("verbose")
	progressDone := make(chan struct{})
	go func() {
		defer close(progressDone)
		for rec := range sub.Updates() {
			if verbose {
				fmt.Fprintf(os.Stderr, "%-9s %3d%%  %s\n", rec.Status, rec.ProgressPercent, rec.DisplayName)
			}
		}
	}()

	submitted, err := orch.Submit(inputs)
	if err != nil {
		sub.Cancel()
		return err
	}
	orch.Wait()
	sub.Cancel()
	<-progressDone

	// Snapshot dropped updates never reach a subscriber under load; the
	// record store holds the authoritative final state.
	finals := make([]types.TaskRecord, 0, len(submitted))
	var completed, failed int
	for _, s := range submitted {
		rec, err := records.Get(s.ID)
		if err != nil {
			continue
		}
		finals = append(finals, rec)
		switch rec.Status {
		case types.StatusCompleted:
			completed++
			fmt.Printf("converted: %s -> %s\n", rec.DisplayName, rec.OutputRef)
		case types.StatusFailed:
			failed++
			fmt.Printf("failed:    %s (%s)\n", rec.DisplayName, rec.ErrorDetail)
		}
	}

	if batch != nil {
		batch.RecordResults(finals)
		if err := batch.Write(manifestPath); err != nil {
			logger.Warn("writing manifest results failed", "manifest", manifestPath, "error", err)
		}
	}

	fmt.Printf("\n%d converted, %d failed (%d total)\n", completed, failed, len(finals))
	if failed > 0 {
		return fmt.Errorf("%d of %d conversions failed", failed, len(finals))
	}
	return nil
}

// applyConvertFlags overlays explicitly set command flags onto cfg. Flags
// win over both the config file and the manifest.
func applyConvertFlags(cmd *cobra.Command, cfg *types.Config) {
	flags := cmd.Flags()
	if flags.Changed("backend") {
		v, _ := flags.GetString("backend")
		cfg.Engine.Backend = types.EngineBackend(v)
	}
	if flags.Changed("image") {
		cfg.Engine.Image, _ = flags.GetString("image")
	}
	if flags.Changed("binary") {
		cfg.Engine.Binary, _ = flags.GetString("binary")
	}
	if flags.Changed("remote-url") {
		cfg.Engine.RemoteURL, _ = flags.GetString("remote-url")
	}
	if flags.Changed("timeout") {
		cfg.Engine.Timeout, _ = flags.GetDuration("timeout")
	}
	if flags.Changed("no-frontmatter") {
		noFM, _ := flags.GetBool("no-frontmatter")
		cfg.Engine.Frontmatter = !noFM
	}
	if flags.Changed("output-dir") {
		cfg.Orchestrator.OutputDir, _ = flags.GetString("output-dir")
	}
	if flags.Changed("concurrency") {
		cfg.Orchestrator.MaxConcurrent, _ = flags.GetInt("concurrency")
	}
	if flags.Changed("retries") {
		cfg.Orchestrator.MaxRetries, _ = flags.GetInt("retries")
	}
}

// gatherInputs builds the batch from manifest entries or command arguments.
func gatherInputs(batch *manifest.Manifest, args []string) ([]job.Input, error) {
	if batch != nil {
		inputs := make([]job.Input, 0, len(batch.Files))
		for _, f := range batch.Files {
			inputs = append(inputs, job.Input{Path: f.Path, DisplayName: f.Name})
		}
		return inputs, nil
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("no input files: pass file paths or --manifest")
	}
	inputs := make([]job.Input, 0, len(args))
	for _, path := range args {
		inputs = append(inputs, job.Input{Path: path})
	}
	return inputs, nil
}

func init() {
	convertCmd.Flags().String("backend", "", "conversion backend: markitdown, cli, or remote")
	convertCmd.Flags().String("image", "", "container image for the markitdown backend")
	convertCmd.Flags().String("binary", "", "executable name for the cli backend")
	convertCmd.Flags().String("remote-url", "", "base URL of the remote conversion service")
	convertCmd.Flags().Duration("timeout", 5*time.Minute, "per-file conversion timeout")
	convertCmd.Flags().Bool("no-frontmatter", false, "omit YAML frontmatter from converted output")
	convertCmd.Flags().String("output-dir", "", "base directory for converted Markdown")
	convertCmd.Flags().Int("concurrency", 0, "maximum conversions running at once (0 = default)")
	convertCmd.Flags().Int("retries", 0, "extra attempts after a retryable engine failure")
	convertCmd.Flags().String("manifest", "", "YAML manifest listing the batch")

	rootCmd.AddCommand(convertCmd)
}
