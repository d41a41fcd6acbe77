package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/zjrosen/catalog/internal/catalog"
	"github.com/zjrosen/catalog/internal/config"
	"github.com/zjrosen/catalog/internal/enforcer"
	"github.com/zjrosen/catalog/internal/log"
	"github.com/zjrosen/catalog/internal/paths"
	"github.com/zjrosen/catalog/internal/storage"
	"github.com/zjrosen/catalog/internal/storage/fsstore"
	"github.com/zjrosen/catalog/internal/storage/miniostore"
	"github.com/zjrosen/catalog/internal/storage/sqlitestore"
	"github.com/zjrosen/catalog/internal/tracing"
)

var (
	version = "dev"
	cfgFile string
	logFile string
	debug   bool
	cfg     config.Config
	// cfgBase is the directory relative roots resolve against.
	cfgBase string
)

var rootCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Identity and registry tooling for asset catalogs",
	Long: `Catalog keeps stable identifiers on the assets in a catalog tree,
indexes collections and the records they own, and repairs identifier
collisions caused by copying or moving assets outside the tool.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initLogging()
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "",
		"config file (default: .catalog/config.yaml, then ~/.config/catalog/config.yaml)")
	rootCmd.PersistentFlags().StringP("root", "r", "",
		"asset root directory")
	rootCmd.PersistentFlags().String("backend", "",
		"storage backend: fs, sqlite, or minio")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false,
		"write debug logs to stderr")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "",
		"append logs to this file")

	// Bind flags to viper
	_ = viper.BindPFlag("root", rootCmd.PersistentFlags().Lookup("root"))
	_ = viper.BindPFlag("store.backend", rootCmd.PersistentFlags().Lookup("backend"))
}

func initConfig() {
	defaults := config.Defaults()
	viper.SetDefault("root", defaults.Root)
	viper.SetDefault("mode", defaults.Mode)
	viper.SetDefault("store.backend", defaults.Store.Backend)
	viper.SetDefault("store.sqlite_path", defaults.Store.SQLitePath)
	viper.SetDefault("watch.enabled", defaults.Watch.Enabled)
	viper.SetDefault("watch.debounce", defaults.Watch.Debounce)
	viper.SetDefault("cache.ttl", defaults.Cache.TTL)
	viper.SetDefault("cache.cleanup_interval", defaults.Cache.CleanupInterval)

	cwd, _ := os.Getwd()
	cfgBase = cwd

	// Config lookup order:
	// 1. --config flag
	// 2. .catalog/config.yaml (current directory or any parent)
	// 3. ~/.config/catalog/config.yaml (user config)
	switch {
	case cfgFile != "":
		viper.SetConfigFile(cfgFile)
	case paths.FindProjectConfig(cwd) != "":
		found := paths.FindProjectConfig(cwd)
		viper.SetConfigFile(found)
		cfgBase = filepath.Dir(filepath.Dir(found))
	default:
		if user := paths.UserConfig(); user != "" {
			viper.AddConfigPath(filepath.Dir(user))
		}
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	if err := viper.ReadInConfig(); err != nil {
		// No config file found anywhere - create default at .catalog/config.yaml
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			defaultPath := paths.ProjectConfig(cwd)
			if writeErr := config.WriteDefaultConfig(defaultPath); writeErr == nil {
				viper.SetConfigFile(defaultPath)
				_ = viper.ReadInConfig()
			}
			// If write fails, just continue with defaults (no config file)
		}
	}

	cfg = defaults
	_ = viper.Unmarshal(&cfg)
	cfg.Root = paths.ResolveRoot(cfg.Root, cfgBase)
}

func initLogging() error {
	switch {
	case logFile != "":
		if _, err := log.Init(logFile); err != nil {
			return fmt.Errorf("opening log file: %w", err)
		}
	case debug:
		log.InitWriter(os.Stderr, log.LevelDebug)
	}
	return nil
}

// configPath returns the config file in use, defaulting to the project one.
func configPath() string {
	if used := viper.ConfigFileUsed(); used != "" {
		return used
	}
	return paths.ProjectConfig(cfgBase)
}

// session is an opened store and catalog plus everything to release.
type session struct {
	store   storage.Store
	catalog *catalog.Catalog
	closers []func(context.Context) error
	// report is the enforcement pass run by Init.
	report enforcer.Report
}

func (s *session) Close(ctx context.Context) {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](ctx); err != nil {
			log.ErrorErr(log.CatCLI, "shutdown failed", err)
		}
	}
}

// openStore opens the configured storage backend.
func openStore(ctx context.Context, c config.Config) (storage.Store, func(context.Context) error, error) {
	noop := func(context.Context) error { return nil }
	switch c.Store.Backend {
	case "", config.BackendFS:
		s, err := fsstore.New(c.Root)
		if err != nil {
			return nil, nil, err
		}
		return s, noop, nil
	case config.BackendSQLite:
		path := c.SQLitePath()
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return nil, nil, fmt.Errorf("creating database directory: %w", err)
		}
		s, err := sqlitestore.Open(ctx, path)
		if err != nil {
			return nil, nil, err
		}
		return s, func(context.Context) error { return s.Close() }, nil
	case config.BackendMinio:
		m := c.Store.Minio
		s, err := miniostore.Connect(ctx, miniostore.Options{
			Endpoint:  m.Endpoint,
			AccessKey: m.AccessKey,
			SecretKey: m.SecretKey,
			Bucket:    m.Bucket,
			Prefix:    m.Prefix,
			Secure:    m.Secure,
		})
		if err != nil {
			return nil, nil, err
		}
		return s, noop, nil
	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}
}

// openCatalog validates the config, opens the store and tracing, and
// builds a Catalog over them. Init is left to the caller.
func openCatalog(ctx context.Context, c config.Config) (*session, error) {
	if err := config.Validate(c); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	kinds, err := c.KindTable()
	if err != nil {
		return nil, err
	}

	store, closeStore, err := openStore(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("opening %s store: %w", c.Store.Backend, err)
	}
	s := &session{store: store, closers: []func(context.Context) error{closeStore}}

	tc := c.Tracing
	if tc.Enabled && tc.Exporter == tracing.ExporterFile && tc.FilePath == "" {
		tc.FilePath = config.DefaultTracesFilePath()
	}
	provider, err := tracing.NewProvider(tc)
	if err != nil {
		s.Close(ctx)
		return nil, fmt.Errorf("starting tracing: %w", err)
	}
	s.closers = append(s.closers, provider.Shutdown)

	s.catalog = catalog.New(store, kinds,
		catalog.WithReadOnly(c.ReadOnly()),
		catalog.WithCascadeDelete(c.CascadeDelete),
		catalog.WithCache(c.Cache.TTL, c.Cache.CleanupInterval),
		catalog.WithTracer(provider.Tracer()),
	)
	s.closers = append(s.closers, s.catalog.Shutdown)
	return s, nil
}

// withCatalog opens and initializes the catalog, runs fn and shuts down.
func withCatalog(cmd *cobra.Command, fn func(ctx context.Context, s *session) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	s, err := openCatalog(ctx, cfg)
	if err != nil {
		return err
	}
	defer s.Close(ctx)

	report, err := s.catalog.Init(ctx)
	if err != nil {
		return fmt.Errorf("initializing catalog: %w", err)
	}
	s.report = report
	return fn(ctx, s)
}

// Execute runs the root command
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("error: ")+err.Error())
	}
	return err
}

// SetVersion sets the version string (called from main with ldflags)
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}
