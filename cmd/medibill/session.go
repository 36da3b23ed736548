package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/lamim/medibill/internal/checkpoint"
	"github.com/lamim/medibill/internal/config"
	"github.com/lamim/medibill/internal/orchestrator"
	"github.com/lamim/medibill/internal/upload"
	"github.com/lamim/medibill/internal/writer"
	"github.com/lamim/medibill/pkg/models"
)

func newSessionCmd() *cobra.Command {
	sessionCmd := &cobra.Command{
		Use:   "session",
		Short: "Manage batch sessions",
		Long:  "List, inspect, resume and upload batch session directories",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List all batch sessions",
		Args:  cobra.NoArgs,
		RunE:  listSessions,
	}

	inspectCmd := &cobra.Command{
		Use:   "inspect <session-dir>",
		Short: "Inspect a session",
		Long:  "Display checkpoint progress and result statistics for a session",
		Args:  cobra.ExactArgs(1),
		RunE:  inspectSession,
	}

	resumeCmd := &cobra.Command{
		Use:   "resume <session-dir>",
		Short: "Resume an interrupted session",
		Args:  cobra.ExactArgs(1),
		RunE:  resumeSession,
	}
	resumeCmd.Flags().BoolVar(&uploadRun, "upload", false, "Upload the session directory when the run completes")

	uploadCmd := &cobra.Command{
		Use:   "upload <session-dir>",
		Short: "Upload a session directory to S3-compatible storage",
		Args:  cobra.ExactArgs(1),
		RunE:  uploadSession,
	}

	sessionCmd.AddCommand(listCmd, inspectCmd, resumeCmd, uploadCmd)
	return sessionCmd
}

func runBatch(cmd *cobra.Command, args []string) error {
	cfg, secrets, logger, err := loadConfig()
	if err != nil {
		return err
	}
	return runSession(cmd.Context(), cfg, secrets, logger)
}

// runSession runs a new batch, or resumes cfg.Generation.ResumeFromSession when set
func runSession(parent context.Context, cfg *config.Config, secrets *config.Secrets, consoleLogger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	sessionMgr, err := writer.NewSessionManager(consoleLogger, cfg.Generation.OutputDir, cfg.Generation.ResumeFromSession)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	resumeMode := sessionMgr.Resumed()

	logger, logFile, err := writer.SetupLogger(sessionMgr, os.Stdout, logLevel())
	if err != nil {
		return fmt.Errorf("failed to setup logger: %w", err)
	}
	defer func() {
		_ = logFile.Sync()
		_ = logFile.Close()
	}()

	logger.Info("MediBill batch starting",
		"version", Version,
		"config", configPath,
		"session_dir", sessionMgr.GetSessionDir(),
		"resume_mode", resumeMode)

	if !resumeMode {
		if _, err := os.Stat(configPath); err == nil {
			if err := sessionMgr.BackupConfig(configPath); err != nil {
				return fmt.Errorf("failed to backup config: %w", err)
			}
		}
	}

	a, err := buildApp(ctx, cfg, secrets, logger, true)
	if err != nil {
		return err
	}
	defer a.Close()

	items, err := a.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list items: %w", err)
	}

	var checkpointMgr *checkpoint.Manager
	if resumeMode {
		existing, err := checkpoint.Load(sessionMgr.GetSessionDir(), logger)
		if err != nil {
			return fmt.Errorf("failed to load checkpoint: %w", err)
		}
		if err := checkpoint.ValidateCheckpoint(existing, cfg); err != nil {
			return fmt.Errorf("checkpoint validation failed: %w", err)
		}
		checkpointMgr = checkpoint.NewManagerFromCheckpoint(sessionMgr.GetSessionDir(), existing, cfg, logger)
		logger.Info("Loaded checkpoint",
			"phase", existing.CurrentPhase,
			"completed_items", checkpoint.GetCompletedCount(existing),
			"progress", fmt.Sprintf("%.1f%%", checkpoint.GetProgressPercentage(existing)))
	} else {
		ids := make([]int64, len(items))
		for i, item := range items {
			ids[i] = item.ID
		}
		checkpointMgr = checkpoint.NewManager(sessionMgr.GetSessionDir(), cfg, ids, logger)
	}

	resultsWriter, err := writer.NewResultsWriter(sessionMgr, logger)
	if err != nil {
		return fmt.Errorf("failed to create results writer: %w", err)
	}
	defer func() {
		if err := resultsWriter.Close(); err != nil {
			logger.Error("failed to close results writer", "error", err)
		}
	}()

	orch := orchestrator.New(orchestrator.Options{
		Concurrency:          cfg.Generation.Concurrency,
		Preferences:          a.defaultPreferences(),
		IncludeIllustrations: cfg.Generation.IncludeIllustrations,
		ShowProgress:         true,
	}, a.service, resultsWriter, checkpointMgr, resumeMode, a.metrics, logger)

	if err := orch.Run(ctx, items); err != nil {
		if errors.Is(err, context.Canceled) {
			sessionName := sessionMgr.GetSessionName()
			logger.Warn("Batch interrupted - resume from checkpoint",
				"session_dir", sessionName,
				"resume_command", "medibill session resume "+sessionName)
			return fmt.Errorf("batch interrupted (resume with: medibill session resume %s)", sessionName)
		}
		return fmt.Errorf("batch failed: %w", err)
	}

	stats := orch.GetStats()
	logger.Info("Batch complete",
		"total_items", stats.TotalItems,
		"successful", stats.SuccessCount,
		"failed", stats.FailureCount,
		"cached", stats.CachedCount,
		"duration", stats.TotalDuration,
		"results", sessionMgr.GetResultsPath())

	if uploadRun {
		if err := resultsWriter.Close(); err != nil {
			return fmt.Errorf("failed to flush results before upload: %w", err)
		}
		if _, err := uploadDir(parent, cfg, secrets, logger, sessionMgr.GetSessionDir()); err != nil {
			return err
		}
	}

	logger.Info("All done!")
	return nil
}

func listSessions(cmd *cobra.Command, args []string) error {
	cfg, _, logger, err := loadConfig()
	if err != nil {
		return err
	}

	sessions, err := writer.ListSessions(cfg.Generation.OutputDir)
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		fmt.Println("No session directories found. Run a batch first.")
		return nil
	}

	fmt.Println("Available sessions:")
	fmt.Println()
	fmt.Printf("%-30s %-12s %-12s %s\n", "SESSION", "CHECKPOINT", "PHASE", "PROGRESS")
	fmt.Println(strings.Repeat("-", 70))

	for _, s := range sessions {
		hasCheckpoint := "No"
		phase := "N/A"
		progress := 0.0
		if _, err := os.Stat(filepath.Join(s.Path, checkpoint.CheckpointFilename)); err == nil {
			hasCheckpoint = "Yes"
			if cp, err := checkpoint.Load(s.Path, logger); err == nil {
				phase = string(cp.CurrentPhase)
				progress = checkpoint.GetProgressPercentage(cp)
			}
		}
		fmt.Printf("%-30s %-12s %-12s %.1f%%\n", s.Name, hasCheckpoint, phase, progress)
	}

	return nil
}

func inspectSession(cmd *cobra.Command, args []string) error {
	cfg, _, logger, err := loadConfig()
	if err != nil {
		return err
	}

	fullPath, err := sessionPath(cfg, args[0])
	if err != nil {
		return err
	}

	fmt.Printf("Session: %s\n", args[0])
	fmt.Println(strings.Repeat("=", 70))

	cp, err := checkpoint.Load(fullPath, logger)
	if err == nil {
		fmt.Printf("Session ID:          %s\n", cp.SessionID)
		fmt.Printf("Created At:          %s\n", cp.CreatedAt.Format("2006-01-02 15:04:05"))
		fmt.Printf("Last Saved At:       %s\n", cp.LastSavedAt.Format("2006-01-02 15:04:05"))
		fmt.Printf("Current Phase:       %s\n", cp.CurrentPhase)
		fmt.Printf("Config Hash:         %s\n", cp.ConfigHash)
		fmt.Printf("Items:               %d / %d completed (%.1f%%)\n",
			checkpoint.GetCompletedCount(cp),
			checkpoint.GetTotalCount(cp),
			checkpoint.GetProgressPercentage(cp))
		if cp.Stats.AverageDuration > 0 {
			fmt.Printf("Average Duration:    %s\n", cp.Stats.AverageDuration)
		}
	} else {
		fmt.Println("No checkpoint in this session.")
	}
	fmt.Println()

	records, err := writer.ReadResults(filepath.Join(fullPath, writer.ResultsFilename))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to read results: %w", err)
	}
	printResultStats(records)
	fmt.Println()

	if cp != nil && cp.CurrentPhase != models.PhaseComplete {
		fmt.Println("To resume this session, run:")
		fmt.Printf("  medibill session resume %s\n", args[0])
	}

	return nil
}

func printResultStats(records []models.ItemRecord) {
	var ok, failed int
	byKind := make(map[string]int)
	byStatus := make(map[models.InsuranceStatus]int)
	for _, r := range records {
		if r.Status == models.ItemStatusOK {
			ok++
			byStatus[r.InsuranceStatus]++
			continue
		}
		failed++
		byKind[r.ErrorKind]++
	}

	fmt.Println("Results:")
	fmt.Printf("  Records:           %d\n", len(records))
	fmt.Printf("  Successful:        %d\n", ok)
	fmt.Printf("  Failed:            %d\n", failed)
	for _, status := range models.InsuranceStatuses {
		if n := byStatus[status]; n > 0 {
			fmt.Printf("  %-18s %d\n", status.Label()+":", n)
		}
	}

	kinds := make([]string, 0, len(byKind))
	for kind := range byKind {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	for _, kind := range kinds {
		fmt.Printf("  failed/%-10s %d\n", kind+":", byKind[kind])
	}
}

func resumeSession(cmd *cobra.Command, args []string) error {
	cfg, secrets, logger, err := loadConfig()
	if err != nil {
		return err
	}

	fullPath, err := sessionPath(cfg, args[0])
	if err != nil {
		return err
	}

	cp, err := checkpoint.Load(fullPath, logger)
	if err != nil {
		return fmt.Errorf("failed to load checkpoint: %w", err)
	}
	if err := checkpoint.ValidateCheckpoint(cp, cfg); err != nil {
		return fmt.Errorf("checkpoint validation failed: %w", err)
	}

	cfg.Generation.ResumeFromSession = args[0]

	fmt.Printf("Resuming session: %s\n", args[0])
	fmt.Printf("Progress: %.1f%%\n", checkpoint.GetProgressPercentage(cp))
	fmt.Println()

	return runSession(cmd.Context(), cfg, secrets, logger)
}

func uploadSession(cmd *cobra.Command, args []string) error {
	cfg, secrets, logger, err := loadConfig()
	if err != nil {
		return err
	}

	fullPath, err := sessionPath(cfg, args[0])
	if err != nil {
		return err
	}

	keys, err := uploadDir(cmd.Context(), cfg, secrets, logger, fullPath)
	if err != nil {
		return err
	}
	for _, key := range keys {
		fmt.Println(key)
	}
	return nil
}

func uploadDir(ctx context.Context, cfg *config.Config, secrets *config.Secrets, logger *slog.Logger, dir string) ([]string, error) {
	uploader, err := upload.New(cfg.Storage, secrets, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create uploader: %w", err)
	}
	keys, err := uploader.UploadSession(ctx, dir)
	if err != nil {
		return keys, fmt.Errorf("upload failed: %w", err)
	}
	return keys, nil
}

// sessionPath validates a session name and returns its directory
func sessionPath(cfg *config.Config, name string) (string, error) {
	if err := writer.ValidateSessionPath(cfg.Generation.OutputDir, name); err != nil {
		return "", fmt.Errorf("invalid session directory: %w", err)
	}

	fullPath := filepath.Join(cfg.Generation.OutputDir, name)
	if _, err := os.Stat(fullPath); os.IsNotExist(err) {
		return "", fmt.Errorf("session directory not found: %s", name)
	}
	return fullPath, nil
}
