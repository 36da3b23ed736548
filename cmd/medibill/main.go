package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/lamim/medibill/internal/config"
	"github.com/lamim/medibill/internal/server"
	"github.com/lamim/medibill/internal/store"
	"github.com/lamim/medibill/internal/util"
	"github.com/lamim/medibill/pkg/models"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

var (
	configPath string
	envFile    string
	verbose    bool
	dryRun     bool
	language   string
	familyMode bool
	uploadRun  bool
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "medibill",
		Short: "MediBill - plain-language hospital bill explanations",
		Long: `MediBill explains hospital bill line items in plain language using an LLM,
classifies how insurance usually treats each charge, and serves the
results over a JSON API or writes them in batch sessions.`,
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", Version, GitCommit, BuildTime),
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return config.LoadEnvFile(envFile, cmd.Flags().Changed("env-file"))
		},
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config.toml", "Path to configuration file")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Path to environment file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().BoolVar(&dryRun, "dry-run", false, "Use a canned model response instead of calling a provider")

	itemsCmd := &cobra.Command{
		Use:   "items",
		Short: "List bill items with the bill total",
		Args:  cobra.NoArgs,
		RunE:  listItems,
	}

	explainCmd := &cobra.Command{
		Use:   "explain <item-id>",
		Short: "Explain a single bill item",
		Args:  cobra.ExactArgs(1),
		RunE:  explainItem,
	}
	explainCmd.Flags().StringVar(&language, "language", "", "Output language: English, Hindi or Bengali (default from config)")
	explainCmd.Flags().BoolVar(&familyMode, "family-mode", true, "Use family-friendly wording")

	illustrateCmd := &cobra.Command{
		Use:   "illustrate <item-id>",
		Short: "Describe an illustration for a single bill item",
		Args:  cobra.ExactArgs(1),
		RunE:  illustrateItem,
	}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Explain every bill item in a batch session",
		Long: `Run a batch session:
1. Load all bill items from the store
2. Explain each item (and optionally describe an illustration)
3. Write one JSON line per item to output/session_*/results.jsonl
4. Optional: upload the session directory to S3-compatible storage`,
		Args: cobra.NoArgs,
		RunE: runBatch,
	}
	runCmd.Flags().BoolVar(&uploadRun, "upload", false, "Upload the session directory when the run completes")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the JSON HTTP API",
		Args:  cobra.NoArgs,
		RunE:  serveAPI,
	}

	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		Args:  cobra.NoArgs,
		RunE:  migrateDatabase,
	}

	seedCmd := &cobra.Command{
		Use:   "seed <items.yaml>",
		Short: "Insert bill items from a YAML file into the database",
		Args:  cobra.ExactArgs(1),
		RunE:  seedDatabase,
	}

	rootCmd.AddCommand(itemsCmd, explainCmd, illustrateCmd, runCmd, serveCmd, migrateCmd, seedCmd, newSessionCmd())
	return rootCmd
}

func listItems(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, false)
	if err != nil {
		return err
	}
	defer a.Close()

	items, err := a.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list items: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(items) == 0 {
		fmt.Fprintln(out, "No bill items found.")
		return nil
	}

	fmt.Fprintf(out, "%-6s %-40s %-20s %s\n", "ID", "ITEM", "CATEGORY", "COST")
	fmt.Fprintln(out, strings.Repeat("-", 80))
	for _, item := range items {
		fmt.Fprintf(out, "%-6d %-40s %-20s %s\n",
			item.ID, util.TruncateString(item.Name, 40), item.Category, store.FormatRupees(item.Cost))
	}
	fmt.Fprintln(out, strings.Repeat("-", 80))
	fmt.Fprintf(out, "%-68s %s\n", "Total", store.FormatRupees(store.Total(items)))
	return nil
}

func explainItem(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, true)
	if err != nil {
		return err
	}
	defer a.Close()

	item, err := a.lookupItem(ctx, args[0])
	if err != nil {
		return err
	}

	prefs := a.defaultPreferences()
	if cmd.Flags().Changed("family-mode") {
		prefs.FamilyMode = familyMode
	}
	if language != "" {
		lang, ok := util.ParseLanguage(language)
		if !ok {
			return fmt.Errorf("unsupported language %q (supported: English, Hindi, Bengali)", language)
		}
		prefs.Language = lang
	}

	result, err := a.service.Explain(ctx, item, prefs)
	if err != nil {
		return err
	}

	exp := result.Explanation
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s (%s) - %s\n", item.Name, item.Category, store.FormatRupees(item.Cost))
	fmt.Fprintln(out, strings.Repeat("=", 80))
	fmt.Fprintln(out, exp.Explanation)
	fmt.Fprintln(out)
	fmt.Fprintf(out, "Insurance: %s\n", exp.InsuranceStatus.Label())
	if exp.InsuranceNote != "" {
		fmt.Fprintf(out, "  %s\n", exp.InsuranceNote)
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out, exp.Disclaimer)
	if result.Cached {
		fmt.Fprintln(out, "(cached)")
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out, config.FooterNotice)
	return nil
}

func illustrateItem(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, true)
	if err != nil {
		return err
	}
	defer a.Close()

	item, err := a.lookupItem(ctx, args[0])
	if err != nil {
		return err
	}

	result, err := a.service.Illustrate(ctx, item)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, item.Name)
	fmt.Fprintln(out, strings.Repeat("=", 80))
	fmt.Fprintln(out, result.Description)
	return nil
}

func serveAPI(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, true)
	if err != nil {
		return err
	}
	defer a.Close()

	srv, err := server.New(a.cfg.Server, a.repo, a.service, a.defaultPreferences(), a.metrics, a.logger)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	a.logger.Info("MediBill API starting", "version", Version, "addr", a.cfg.Server.Addr)
	if err := srv.Run(ctx); err != nil {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

func migrateDatabase(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg, secrets, logger, err := loadConfig()
	if err != nil {
		return err
	}

	pg, err := openPostgres(ctx, cfg, secrets, logger, true)
	if err != nil {
		return err
	}
	defer func() { _ = pg.Close() }()

	version, err := store.MigrationVersion(ctx, pg.DB(), logger)
	if err != nil {
		return fmt.Errorf("failed to read migration version: %w", err)
	}
	fmt.Printf("Database is at migration version %d\n", version)
	return nil
}

func seedDatabase(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg, secrets, logger, err := loadConfig()
	if err != nil {
		return err
	}

	pg, err := openPostgres(ctx, cfg, secrets, logger, cfg.Database.AutoMigrate)
	if err != nil {
		return err
	}
	defer func() { _ = pg.Close() }()

	n, err := store.Seed(ctx, pg, args[0])
	if err != nil {
		return fmt.Errorf("seeding stopped after %d items: %w", n, err)
	}
	fmt.Printf("Inserted %d items from %s\n", n, args[0])
	return nil
}

func parseItemID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id < 1 {
		return 0, fmt.Errorf("invalid item id %q", s)
	}
	return id, nil
}

func (a *app) lookupItem(ctx context.Context, arg string) (models.BillItem, error) {
	id, err := parseItemID(arg)
	if err != nil {
		return models.BillItem{}, err
	}
	item, err := a.repo.Get(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return models.BillItem{}, fmt.Errorf("no bill item with id %d", id)
	}
	if err != nil {
		return models.BillItem{}, fmt.Errorf("failed to load item %d: %w", id, err)
	}
	return item, nil
}
