// Package main provides the TuneBridge CLI application entry point.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"tunebridge/internal/admission"
	"tunebridge/internal/convert"
	"tunebridge/internal/core"
	httpserver "tunebridge/internal/http"
	"tunebridge/internal/resolve"
	"tunebridge/internal/store"
	"tunebridge/pkg/provider"
)

const (
	defaultServerHost = "0.0.0.0"
)

var (
	cfgFile string
	config  *core.Config
	logger  *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "tunebridge",
	Short: "TuneBridge - Cross-provider music link conversion",
	Long: `TuneBridge resolves music share links (Spotify, Apple Music, Deezer) into
canonical entities and converts them to equivalent links on other providers,
accumulating provider IDs in a local store so repeat conversions are free.`,
	RunE: runTuneBridge,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .env)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("spotify-client-id", "", "Spotify client ID")
	rootCmd.PersistentFlags().String("spotify-client-secret", "", "Spotify client secret")
	rootCmd.PersistentFlags().String("store-path", "./tunebridge.db", "SQLite store path")
	rootCmd.PersistentFlags().Int("store-max-open-conns", 8, "Maximum open store connections")
	rootCmd.PersistentFlags().Int("memo-ttl-secs", 30, "Resolution memo TTL in seconds")
	rootCmd.PersistentFlags().Int("memo-size", 1024, "Resolution memo capacity")
	rootCmd.PersistentFlags().Int("poll-attempts", 12, "Conversion fallback poll attempts")
	rootCmd.PersistentFlags().Int("poll-initial-delay-ms", 400, "Conversion fallback initial poll delay in milliseconds")
	rootCmd.PersistentFlags().Float64("poll-backoff", 1.35, "Conversion fallback poll delay multiplier")
	rootCmd.PersistentFlags().Int("poll-max-wait-secs", 30, "Conversion fallback wall clock cap in seconds")
	rootCmd.PersistentFlags().String("bot-secret", "", "Shared secret granting the bot quota class")
	rootCmd.PersistentFlags().Int("bot-limit", 3600, "Hourly quota for bot callers")
	rootCmd.PersistentFlags().Int("apikey-limit", 600, "Hourly quota for API key callers")
	rootCmd.PersistentFlags().Int("user-limit", 300, "Hourly quota for authenticated users")
	rootCmd.PersistentFlags().Int("anonymous-limit", 60, "Hourly quota for anonymous callers")
	rootCmd.PersistentFlags().String("server-host", defaultServerHost, "HTTP server host")
	rootCmd.PersistentFlags().Int("server-port", 8080, "HTTP server port")

	if err := viper.BindPFlags(rootCmd.PersistentFlags()); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bind flags: %v\n", err)
		os.Exit(1)
	}
}

func initConfig() {
	// Load .env file explicitly using gotenv
	envFile := ".env"
	if cfgFile != "" {
		envFile = cfgFile
	}

	if err := gotenv.Load(envFile); err != nil {
		// Don't exit if .env file doesn't exist, just warn
		if !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "Error loading .env file: %v\n", err)
		}
	}

	viper.SetEnvPrefix("TUNEBRIDGE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	config = buildConfig()
	logger = buildLogger(config.Log.Level)
}

func buildConfig() *core.Config {
	cfg := core.DefaultConfig()

	configureSpotify(cfg)
	configureStore(cfg)
	configureConvert(cfg)
	configureAdmission(cfg)
	configureServer(cfg)

	return cfg
}

func configureSpotify(cfg *core.Config) {
	cfg.Spotify.ClientID = viper.GetString("spotify-client-id")
	cfg.Spotify.ClientSecret = viper.GetString("spotify-client-secret")
}

func configureStore(cfg *core.Config) {
	cfg.Store.Path = viper.GetString("store-path")
	if cfg.Store.Path == "" {
		cfg.Store.Path = "./tunebridge.db"
	}
	if v := viper.GetInt("store-max-open-conns"); v > 0 {
		cfg.Store.MaxOpenConns = v
	}
	if v := viper.GetInt("memo-ttl-secs"); v > 0 {
		cfg.Store.MemoTTL = time.Duration(v) * time.Second
	}
	if v := viper.GetInt("memo-size"); v > 0 {
		cfg.Store.MemoSize = v
	}
}

func configureConvert(cfg *core.Config) {
	if v := viper.GetInt("poll-attempts"); v > 0 {
		cfg.Convert.PollAttempts = v
	}
	if v := viper.GetInt("poll-initial-delay-ms"); v > 0 {
		cfg.Convert.PollInitialDelay = time.Duration(v) * time.Millisecond
	}
	if v := viper.GetFloat64("poll-backoff"); v >= 1.0 {
		cfg.Convert.PollBackoff = v
	}
	if v := viper.GetInt("poll-max-wait-secs"); v > 0 {
		cfg.Convert.PollMaxWait = time.Duration(v) * time.Second
	}
}

func configureAdmission(cfg *core.Config) {
	cfg.Admission.BotSecret = viper.GetString("bot-secret")
	if v := viper.GetInt("bot-limit"); v > 0 {
		cfg.Admission.BotLimit = v
	}
	if v := viper.GetInt("apikey-limit"); v > 0 {
		cfg.Admission.APIKeyLimit = v
	}
	if v := viper.GetInt("user-limit"); v > 0 {
		cfg.Admission.UserLimit = v
	}
	if v := viper.GetInt("anonymous-limit"); v > 0 {
		cfg.Admission.AnonymousLimit = v
	}
}

func configureServer(cfg *core.Config) {
	cfg.Server.Host = viper.GetString("server-host")
	if cfg.Server.Host == "" {
		cfg.Server.Host = defaultServerHost
	}
	cfg.Server.Port = viper.GetInt("server-port")
	cfg.Log.Level = viper.GetString("log-level")
}

func buildLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch strings.ToLower(level) {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "info":
		zapLevel = zapcore.InfoLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapLevel)

	builtLogger, err := cfg.Build()
	if err != nil {
		panic(fmt.Sprintf("Failed to build logger: %v", err))
	}

	return builtLogger
}

func runTuneBridge(_ *cobra.Command, _ []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger.Info("Starting TuneBridge",
		zap.String("version", "1.0.0"),
		zap.String("store_path", config.Store.Path))

	if err := validateConfig(); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	services, err := initializeServices()
	if err != nil {
		return err
	}
	defer services.shutdown()

	return runServices(ctx, services)
}

type services struct {
	store      *store.Store
	gate       *admission.Gate
	httpServer *httpserver.Server
}

func initializeServices() (*services, error) {
	st, err := store.Open(&config.Store, logger.Named("store"))
	if err != nil {
		return nil, err
	}

	registry := provider.NewRegistry(
		provider.NewSpotifyAdapter(&config.Spotify, logger.Named("spotify")),
		provider.NewAppleMusicAdapter(logger.Named("applemusic")),
		provider.NewDeezerAdapter(logger.Named("deezer")),
	)

	memo := store.NewMemo(config.Store.MemoSize, config.Store.MemoTTL)
	metrics := httpserver.NewMetrics()
	gate := admission.New(config.Admission)

	resolver := resolve.New(registry, memo, logger.Named("resolve"))
	converter := convert.New(registry, st, config.Convert, metrics, logger.Named("convert"))

	httpServer := httpserver.NewServer(&config.Server, logger.Named("http"),
		metrics, gate, resolver, converter, st)

	return &services{
		store:      st,
		gate:       gate,
		httpServer: httpServer,
	}, nil
}

func (s *services) shutdown() {
	s.gate.Stop()
	if err := s.store.Close(); err != nil {
		logger.Debug("Failed to close store", zap.Error(err))
	}
}

func runServices(ctx context.Context, svcs *services) error {
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return svcs.httpServer.Start(gCtx)
	})

	logger.Info("TuneBridge started successfully",
		zap.String("http_addr", fmt.Sprintf("%s:%d", config.Server.Host, config.Server.Port)))

	if err := g.Wait(); err != nil {
		logger.Error("TuneBridge stopped with error", zap.Error(err))
		return err
	}

	logger.Info("TuneBridge stopped gracefully")
	return nil
}

func validateConfig() error {
	if config.Spotify.ClientID == "" {
		return fmt.Errorf("spotify client ID is required")
	}
	if config.Spotify.ClientSecret == "" {
		return fmt.Errorf("spotify client secret is required")
	}
	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}
	return nil
}
