package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/rowjay/solr-backups/internal/app"
	"github.com/rowjay/solr-backups/internal/config"
	"github.com/rowjay/solr-backups/internal/logging"
	"github.com/rowjay/solr-backups/internal/manifest"
	"github.com/rowjay/solr-backups/internal/notify"
	"github.com/rowjay/solr-backups/internal/solr"
	"github.com/rowjay/solr-backups/internal/storage"
	"github.com/rowjay/solr-backups/internal/util"
	"github.com/rowjay/solr-backups/internal/version"
)

type rootFlags struct {
	ConfigPath string
	LogLevel   string
	LogFormat  string
	Backup     bool
	Restore    bool
}

type overrideFlags struct {
	Host            string
	Name            string
	Path            string
	ManifestDir     string
	Collections     []string
	Blacklist       []string
	Repository      string
	Retry           int
	RetryBackoff    time.Duration
	PollInterval    time.Duration
	PollTimeout     time.Duration
	FailFast        bool
	ManifestStorage string
	S3Endpoint      string
	S3Bucket        string
	S3AccessKey     string
	S3SecretKey     string
	S3Region        string
	S3UseSSL        string
	S3PathStyle     string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &rootFlags{}
	overrides := &overrideFlags{}

	rootCmd := &cobra.Command{
		Use:          "solr-backups",
		Short:        "Back up and restore every collection of a Solr cluster",
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMode(cmd, root, overrides)
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&root.ConfigPath, "config", "", "Path to config file (yaml/toml/json or .enc)")
	pf.StringVar(&root.LogLevel, "log-level", "", "Log level (debug, info, warn, error)")
	pf.StringVar(&root.LogFormat, "log-format", "", "Log format (json, console)")
	pf.BoolVar(&root.Backup, "backup", false, "Back up collections (default mode)")
	pf.BoolVar(&root.Restore, "restore", false, "Restore collections recorded in the manifest")

	pf.StringVar(&overrides.Host, "host", "", "Solr host, host:port or URL")
	pf.StringVar(&overrides.Name, "name", "", "Backup name")
	pf.StringVar(&overrides.Path, "path", "", "Backup location as seen by the Solr nodes")
	pf.StringVar(&overrides.ManifestDir, "manifest", "", "Manifest directory (or key prefix for s3)")
	pf.StringSliceVarP(&overrides.Collections, "collection", "c", nil, "Collection to include (repeatable; default all)")
	pf.StringSliceVar(&overrides.Blacklist, "blacklist", nil, "Collection to exclude (repeatable)")
	pf.StringVar(&overrides.Repository, "repository", "", "Solr backup repository")
	pf.IntVar(&overrides.Retry, "retry", 0, "Attempts per collection")
	pf.DurationVar(&overrides.RetryBackoff, "retry-backoff", 0, "Delay before the second attempt; doubles per attempt")
	pf.DurationVar(&overrides.PollInterval, "poll-interval", 0, "Delay between status polls")
	pf.DurationVar(&overrides.PollTimeout, "poll-timeout", 0, "Give up on an attempt after this long")
	pf.BoolVar(&overrides.FailFast, "fail-fast", false, "Stop at the first collection that exhausts its attempts")

	pf.StringVar(&overrides.ManifestStorage, "manifest-storage", "", "Manifest backend (local, s3)")
	pf.StringVar(&overrides.S3Endpoint, "s3-endpoint", "", "S3 endpoint (MinIO/OSS)")
	pf.StringVar(&overrides.S3Bucket, "s3-bucket", "", "S3 bucket")
	pf.StringVar(&overrides.S3AccessKey, "s3-access-key", "", "S3 access key")
	pf.StringVar(&overrides.S3SecretKey, "s3-secret-key", "", "S3 secret key")
	pf.StringVar(&overrides.S3Region, "s3-region", "", "S3 region")
	pf.StringVar(&overrides.S3UseSSL, "s3-ssl", "", "Use SSL for S3 endpoint (true/false)")
	pf.StringVar(&overrides.S3PathStyle, "s3-path-style", "", "Force path-style S3 (true/false)")

	rootCmd.MarkFlagsMutuallyExclusive("backup", "restore")

	rootCmd.AddCommand(newValidateCmd(root, overrides))
	rootCmd.AddCommand(newCollectionsCmd(root, overrides))
	rootCmd.AddCommand(newManifestCmd(root, overrides))
	rootCmd.AddCommand(newConfigCmd())
	rootCmd.AddCommand(newVersionCmd())
	return rootCmd
}

func runMode(cmd *cobra.Command, root *rootFlags, overrides *overrideFlags) error {
	svc, logger, err := buildApp(root, overrides, false)
	if err != nil {
		return err
	}
	ctx, cancel := runContext(svc.Cfg.Global.OperationTimeout)
	defer cancel()

	if svc.Cfg.Global.Mode == config.ModeRestore {
		report, err := svc.Restore(ctx)
		if report != nil {
			logger.Info().Strs("restored", report.Succeeded()).Strs("failed", report.Failed()).Msg("restore finished")
		}
		return err
	}

	report, err := svc.Backup(ctx)
	if report != nil && report.ManifestKey != "" {
		if payload, encErr := report.Manifest.Encode(); encErr == nil {
			fmt.Fprint(cmd.OutOrStdout(), string(payload))
		}
	}
	return err
}

func newValidateCmd(root *rootFlags, overrides *overrideFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate configuration, cluster reachability and manifest storage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, logger, err := buildApp(root, overrides, false)
			if err != nil {
				return err
			}
			ctx, cancel := runContext(svc.Cfg.Global.OperationTimeout)
			defer cancel()
			if err := svc.Validate(ctx); err != nil {
				return err
			}
			logger.Info().Msg("validation succeeded")
			return nil
		},
	}
}

func newCollectionsCmd(root *rootFlags, overrides *overrideFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "collections",
		Short: "List the collections a run would act on",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, logger, err := buildApp(root, overrides, true)
			if err != nil {
				return err
			}
			ctx, cancel := runContext(svc.Cfg.Global.OperationTimeout)
			defer cancel()
			sel, err := svc.Collections(ctx)
			if err != nil {
				return err
			}
			for _, name := range sel.Selected {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			logger.Info().Strs("excluded", sel.Excluded).Strs("missing", sel.Missing).Int("selected", len(sel.Selected)).Msg("collections listed")
			return nil
		},
	}
}

func newManifestCmd(root *rootFlags, overrides *overrideFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "manifest",
		Short: "Manifest utilities",
	}
	show := &cobra.Command{
		Use:   "show",
		Short: "Print the manifest of the configured backup name",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, _, err := buildApp(root, overrides, true)
			if err != nil {
				return err
			}
			ctx, cancel := runContext(svc.Cfg.Global.OperationTimeout)
			defer cancel()
			m, err := svc.ReadManifest(ctx)
			if err != nil {
				return err
			}
			payload, err := m.Encode()
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(payload)
			return err
		},
	}
	list := &cobra.Command{
		Use:   "list",
		Short: "List the manifests in manifest storage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(root.ConfigPath)
			if err != nil {
				return err
			}
			applyOverrides(cfg, root, overrides)
			store, err := storage.New(cfg.Manifest)
			if err != nil {
				return err
			}
			ctx, cancel := runContext(cfg.Global.OperationTimeout)
			defer cancel()
			items, err := manifest.NewStore(store).List(ctx)
			if err != nil {
				return err
			}
			for _, item := range items {
				name := strings.TrimSuffix(item.Key, util.ManifestSuffix)
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%d\t%s\n", name, item.Size, item.Modified.Format(time.RFC3339))
			}
			return nil
		},
	}
	cmd.AddCommand(show, list)
	return cmd
}

func newConfigCmd() *cobra.Command {
	var input string
	var output string
	var key string

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Config utilities",
	}

	encrypt := &cobra.Command{
		Use:   "encrypt",
		Short: "Encrypt a config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if input == "" || output == "" || key == "" {
				return fmt.Errorf("--input, --output, and --key are required")
			}
			return config.EncryptConfigFile(input, output, key)
		},
	}
	encrypt.Flags().StringVar(&input, "input", "", "Input config file")
	encrypt.Flags().StringVar(&output, "output", "", "Output encrypted config file (.enc)")
	encrypt.Flags().StringVar(&key, "key", "", "Encryption key (base64:, hex: or file:)")

	cmd.AddCommand(encrypt)
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "solr-backups %s (commit %s, built %s)\n", version.Version, version.Commit, version.Date)
		},
	}
}

func buildApp(root *rootFlags, overrides *overrideFlags, readOnly bool) (*app.App, zerolog.Logger, error) {
	cfg, err := loadConfig(root, overrides, readOnly)
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	logger := logging.Configure(cfg.Global.LogLevel, cfg.Global.LogFormat)
	client, err := solr.New(solr.Options{
		Host:     cfg.Solr.Host,
		Username: cfg.Solr.Username,
		Password: cfg.Solr.Password,
		Timeout:  cfg.Solr.RequestTimeout,
		Retries:  cfg.Solr.RequestRetries,
		Insecure: cfg.Solr.TLSInsecureSkip,
	})
	if err != nil {
		return nil, logger, err
	}
	store, err := storage.New(cfg.Manifest)
	if err != nil {
		return nil, logger, err
	}
	return app.New(cfg, client, store, logger, notify.FromConfig(cfg.Notifications)), logger, nil
}

// runContext is cancelled by SIGINT/SIGTERM or when timeout elapses.
func runContext(timeout time.Duration) (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	ctx, cancel := context.WithTimeout(ctx, timeout)
	return ctx, func() {
		cancel()
		stop()
	}
}

func loadConfig(root *rootFlags, overrides *overrideFlags, readOnly bool) (*config.Config, error) {
	cfg, err := config.Load(root.ConfigPath)
	if err != nil {
		return nil, err
	}
	applyOverrides(cfg, root, overrides)
	validate := cfg.Validate
	if readOnly {
		validate = cfg.ValidateReadOnly
	}
	if err := validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyOverrides(cfg *config.Config, root *rootFlags, overrides *overrideFlags) {
	if root.LogLevel != "" {
		cfg.Global.LogLevel = root.LogLevel
	}
	if root.LogFormat != "" {
		cfg.Global.LogFormat = root.LogFormat
	}
	switch {
	case root.Restore:
		cfg.Global.Mode = config.ModeRestore
	case root.Backup:
		cfg.Global.Mode = config.ModeBackup
	}
	if overrides.FailFast {
		cfg.Global.FailFast = true
	}

	if overrides.Host != "" {
		cfg.Solr.Host = overrides.Host
	}
	if overrides.Name != "" {
		cfg.Backup.Name = overrides.Name
	}
	if overrides.Path != "" {
		cfg.Backup.Path = overrides.Path
	}
	if overrides.Repository != "" {
		cfg.Backup.Repository = overrides.Repository
	}
	if len(overrides.Collections) > 0 {
		cfg.Backup.Collections = overrides.Collections
	}
	if len(overrides.Blacklist) > 0 {
		cfg.Backup.Blacklist = overrides.Blacklist
	}
	if overrides.Retry > 0 {
		cfg.Backup.RetryCount = overrides.Retry
	}
	if overrides.RetryBackoff > 0 {
		cfg.Backup.RetryBackoff = overrides.RetryBackoff
	}
	if overrides.PollInterval > 0 {
		cfg.Backup.PollInterval = overrides.PollInterval
	}
	if overrides.PollTimeout > 0 {
		cfg.Backup.PollTimeout = overrides.PollTimeout
	}

	if overrides.ManifestDir != "" {
		cfg.Manifest.Dir = overrides.ManifestDir
	}
	if overrides.ManifestStorage != "" {
		cfg.Manifest.Backend = overrides.ManifestStorage
	}
	if overrides.S3Endpoint != "" {
		cfg.Manifest.S3.Endpoint = overrides.S3Endpoint
	}
	if overrides.S3Bucket != "" {
		cfg.Manifest.S3.Bucket = overrides.S3Bucket
	}
	if overrides.S3AccessKey != "" {
		cfg.Manifest.S3.AccessKey = overrides.S3AccessKey
	}
	if overrides.S3SecretKey != "" {
		cfg.Manifest.S3.SecretKey = overrides.S3SecretKey
	}
	if overrides.S3Region != "" {
		cfg.Manifest.S3.Region = overrides.S3Region
	}
	if overrides.S3UseSSL != "" {
		cfg.Manifest.S3.UseSSL = strings.EqualFold(overrides.S3UseSSL, "true") || overrides.S3UseSSL == "1"
	}
	if overrides.S3PathStyle != "" {
		cfg.Manifest.S3.ForcePathStyle = strings.EqualFold(overrides.S3PathStyle, "true") || overrides.S3PathStyle == "1"
	}

	cfg.Global.Mode = strings.ToLower(cfg.Global.Mode)
	cfg.Manifest.Backend = strings.ToLower(cfg.Manifest.Backend)
}
