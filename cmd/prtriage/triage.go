package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jingkaihe/prtriage/pkg/classifier"
	"github.com/jingkaihe/prtriage/pkg/directive"
	"github.com/jingkaihe/prtriage/pkg/fixer"
	"github.com/jingkaihe/prtriage/pkg/history"
	"github.com/jingkaihe/prtriage/pkg/logger"
	"github.com/jingkaihe/prtriage/pkg/orchestrator"
	"github.com/jingkaihe/prtriage/pkg/platform"
	ghgateway "github.com/jingkaihe/prtriage/pkg/platform/github"
	"github.com/jingkaihe/prtriage/pkg/presenter"
	"github.com/jingkaihe/prtriage/pkg/report"
	"github.com/jingkaihe/prtriage/pkg/store"
)

// TriageConfig holds configuration for the triage command.
type TriageConfig struct {
	PRURL          string
	DirectivesFile string
	Workers        int
	Format         string
	FixCommand     string
	FixTimeout     time.Duration
	DryRun         bool
	NoArchive      bool
}

// NewTriageConfig creates a TriageConfig with default values.
func NewTriageConfig() *TriageConfig {
	return &TriageConfig{
		Workers:    4,
		Format:     "text",
		FixTimeout: 10 * time.Minute,
	}
}

// Validate validates the TriageConfig and returns an error if invalid.
func (c *TriageConfig) Validate() error {
	if c.PRURL == "" {
		return errors.New("PR URL cannot be empty")
	}
	if c.Workers <= 0 {
		return errors.New("workers must be positive")
	}
	if c.Format != "text" && c.Format != "yaml" {
		return errors.Errorf("unsupported format: %s, only 'text' and 'yaml' are supported", c.Format)
	}
	if !c.DryRun {
		if c.DirectivesFile == "" {
			return errors.New("directives file is required unless --dry-run is set")
		}
		if c.FixCommand == "" {
			return errors.New("fix command is required unless --dry-run is set, set --fix-command or fix.command in config")
		}
	}
	return nil
}

var triageCmd = &cobra.Command{
	Use:   "triage",
	Short: "Run the comment triage and remediation workflow for a PR",
	Long: `Fetch review comments for a pull request, classify them, apply the
directives from the given rules file, and remediate auto-fix comments
concurrently. With --dry-run the workflow stops after printing the
pre-decision distribution table.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		go func() {
			<-sigCh
			logger.G(ctx).Warn("cancellation requested, shutting down")
			cancel()
		}()

		config := getTriageConfigFromFlags(cmd)
		if err := config.Validate(); err != nil {
			return err
		}

		gateway := ghgateway.NewGateway(ghgateway.NewClient(ctx, githubToken()))
		return runTriage(ctx, config, gateway)
	},
}

func init() {
	defaults := NewTriageConfig()
	triageCmd.Flags().String("pr-url", "", "PR URL (required)")
	triageCmd.Flags().String("directives", "", "YAML file with directive rules")
	triageCmd.Flags().Int("workers", defaults.Workers, "Maximum concurrent remediation attempts")
	triageCmd.Flags().String("format", defaults.Format, "Report output format (text, yaml)")
	triageCmd.Flags().String("fix-command", "", "Command to run per auto-fix comment (comment JSON on stdin)")
	triageCmd.Flags().Duration("fix-timeout", defaults.FixTimeout, "Timeout per fix attempt")
	triageCmd.Flags().Bool("dry-run", false, "Stop after classification and the distribution table")
	triageCmd.Flags().Bool("no-archive", false, "Skip archiving the final report")
	triageCmd.MarkFlagRequired("pr-url")

	viper.BindPFlag("fix.command", triageCmd.Flags().Lookup("fix-command"))
	viper.BindPFlag("fix.timeout", triageCmd.Flags().Lookup("fix-timeout"))
	viper.BindPFlag("workers", triageCmd.Flags().Lookup("workers"))
}

// getTriageConfigFromFlags extracts triage configuration from command flags
// and viper-backed settings.
func getTriageConfigFromFlags(cmd *cobra.Command) *TriageConfig {
	config := NewTriageConfig()

	if prURL, err := cmd.Flags().GetString("pr-url"); err == nil {
		config.PRURL = prURL
	}
	if directives, err := cmd.Flags().GetString("directives"); err == nil {
		config.DirectivesFile = directives
	}
	if format, err := cmd.Flags().GetString("format"); err == nil {
		config.Format = format
	}
	if dryRun, err := cmd.Flags().GetBool("dry-run"); err == nil {
		config.DryRun = dryRun
	}
	if noArchive, err := cmd.Flags().GetBool("no-archive"); err == nil {
		config.NoArchive = noArchive
	}
	if workers := viper.GetInt("workers"); workers > 0 {
		config.Workers = workers
	}
	if fixCommand := viper.GetString("fix.command"); fixCommand != "" {
		config.FixCommand = fixCommand
	}
	if fixTimeout := viper.GetDuration("fix.timeout"); fixTimeout > 0 {
		config.FixTimeout = fixTimeout
	}
	return config
}

// githubToken resolves the GitHub token from config or the conventional
// environment variables.
func githubToken() string {
	if token := viper.GetString("github_token"); token != "" {
		return token
	}
	if token := os.Getenv("GITHUB_TOKEN"); token != "" {
		return token
	}
	return os.Getenv("GH_TOKEN")
}

// runTriage executes the full workflow against the given gateway.
func runTriage(ctx context.Context, config *TriageConfig, gateway platform.Gateway) error {
	log := logger.G(ctx).WithField("pr_url", config.PRURL)
	ctx = logger.WithLogger(ctx, log)
	p := presenter.New()

	p.Info("Fetching comments for %s...", config.PRURL)
	raw, err := gateway.FetchComments(ctx, config.PRURL)
	if err != nil {
		return err
	}
	if len(raw) == 0 {
		p.Info("No review comments found, nothing to triage.")
		return nil
	}

	batch, err := store.Ingest(raw)
	if err != nil {
		return err
	}
	if err := classifier.Annotate(ctx, batch); err != nil {
		return err
	}

	p.Distribution(report.Distribute(batch))
	if config.DryRun {
		return nil
	}

	rules, err := directive.LoadRules(config.DirectivesFile)
	if err != nil {
		return err
	}
	res, err := directive.Resolve(batch, rules)
	if err != nil {
		return err
	}
	log.WithField("assigned", len(res.Assigned)).
		WithField("skipped", len(res.Skipped)).
		Info("directives resolved")

	parts := strings.Fields(config.FixCommand)
	fix := fixer.NewCommandFixer(parts[0], parts[1:], fixer.WithTimeout(config.FixTimeout))

	orch := orchestrator.New(gateway, fix, orchestrator.WithWorkers(config.Workers))
	runResult, err := orch.Run(ctx, batch)
	if err != nil {
		return err
	}
	p.RunSummary(runResult)

	final := report.Final(config.PRURL, batch, runResult)
	if config.Format == "yaml" {
		out, err := final.YAML()
		if err != nil {
			return err
		}
		p.Info("%s", out)
	} else {
		p.Report(final)
	}

	if !config.NoArchive {
		if err := archiveReport(ctx, final); err != nil {
			// The run already completed; a broken archive is a warning.
			p.Warning("failed to archive report: %v", err)
		}
	}
	return nil
}

// archiveReport saves the final report to the local history database.
func archiveReport(ctx context.Context, rep *report.Report) error {
	dbPath, err := history.DefaultDBPath()
	if err != nil {
		return err
	}
	st, err := history.NewStore(ctx, dbPath)
	if err != nil {
		return err
	}
	defer st.Close()

	id, err := st.Save(ctx, rep)
	if err != nil {
		return err
	}
	logger.G(ctx).WithField("run_id", id).Info("report archived")
	return nil
}
