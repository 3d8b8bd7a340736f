package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/haivivi/voicegate/cmd/voicegate/internal/config"
	"github.com/haivivi/voicegate/pkg/embcache"
	"github.com/haivivi/voicegate/pkg/gateway"
	"github.com/haivivi/voicegate/pkg/voiceprint"
)

var (
	flagListen          string
	flagUpstream        string
	flagThreshold       float64
	flagVoiceprints     string
	flagEmbedder        string
	flagEmbedderArgs    []string
	flagDevice          string
	flagModelDir        string
	flagCacheDir        string
	flagMonitor         string
	flagLogLevel        string
	flagAllowNoSpeakers bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the gateway",
	Long: `Run the speaker-verifying gateway.

The gateway listens for inbound audio streams, verifies the speaker
against the enrolled voiceprints, and forwards verified audio to the
upstream recognizer. Every option can also come from a VOICEGATE_*
environment variable or the config file; flags win.`,
	RunE: runGateway,
}

func init() {
	f := runCmd.Flags()
	f.StringVar(&flagListen, "listen", "", "inbound listen address (default :10400)")
	f.StringVar(&flagUpstream, "upstream", "", "upstream speech-to-text address (required)")
	f.Float64Var(&flagThreshold, "threshold", 0, "similarity threshold (default 0.45)")
	f.StringVar(&flagVoiceprints, "voiceprints", "", "voiceprint directory or s3://bucket/prefix (required)")
	f.StringVar(&flagEmbedder, "embedder", "", "external embedding command (required)")
	f.StringSliceVar(&flagEmbedderArgs, "embedder-arg", nil, "argument passed to the embedder (repeatable)")
	f.StringVar(&flagDevice, "device", "", "inference device passed to the embedder")
	f.StringVar(&flagModelDir, "model-dir", "", "embedder model cache directory")
	f.StringVar(&flagCacheDir, "cache-dir", "", "embedding cache directory (empty: in-memory cache)")
	f.StringVar(&flagMonitor, "monitor", "", "websocket monitor listen address (empty: disabled)")
	f.StringVar(&flagLogLevel, "log-level", "", "log level: debug, info, warn, error")
	f.BoolVar(&flagAllowNoSpeakers, "allow-no-speakers", false, "start even when no voiceprints are found")
}

// loadRunConfig layers file, environment, and flags.
func loadRunConfig(cmd *cobra.Command) (config.Config, error) {
	path := flagConfig
	if path == "" {
		p, err := config.Path()
		if err != nil {
			return config.Config{}, err
		}
		path = p
	}
	cfg, err := config.Load(path)
	if err != nil {
		return cfg, err
	}

	if flagListen != "" {
		cfg.Listen = flagListen
	}
	if flagUpstream != "" {
		cfg.Upstream = flagUpstream
	}
	if cmd.Flags().Changed("threshold") {
		cfg.Threshold = flagThreshold
	}
	if flagVoiceprints != "" {
		cfg.Voiceprints = flagVoiceprints
	}
	if flagEmbedder != "" {
		cfg.Embedder = flagEmbedder
	}
	if len(flagEmbedderArgs) > 0 {
		cfg.EmbedderArgs = flagEmbedderArgs
	}
	if flagDevice != "" {
		cfg.Device = flagDevice
	}
	if flagModelDir != "" {
		cfg.ModelDir = flagModelDir
	}
	if flagCacheDir != "" {
		cfg.CacheDir = flagCacheDir
	}
	if flagMonitor != "" {
		cfg.Monitor = flagMonitor
	}
	if flagLogLevel != "" {
		cfg.LogLevel = flagLogLevel
	}
	if cmd.Flags().Changed("allow-no-speakers") {
		cfg.AllowNoSpeakers = flagAllowNoSpeakers
	}
	return cfg, nil
}

func runGateway(cmd *cobra.Command, _ []string) error {
	cfg, err := loadRunConfig(cmd)
	if err != nil {
		return err
	}
	if cfg.Upstream == "" {
		return fmt.Errorf("upstream address is required (--upstream or VOICEGATE_UPSTREAM)")
	}
	if cfg.Embedder == "" {
		return fmt.Errorf("embedder command is required (--embedder or VOICEGATE_EMBEDDER)")
	}
	if err := setupLogging(cfg.LogLevel); err != nil {
		return err
	}
	logger := slog.Default()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fs, err := openVoiceprints(cfg.Voiceprints)
	if err != nil {
		return err
	}
	store, err := voiceprint.Load(ctx, fs, logger)
	if err != nil {
		if !errors.Is(err, voiceprint.ErrNoVoiceprints) {
			return err
		}
		if !cfg.AllowNoSpeakers {
			return fmt.Errorf("%w (use --allow-no-speakers to start anyway)", err)
		}
		logger.Warn("no voiceprints loaded, every stream will be rejected")
	}
	logger.Info("voiceprints loaded", "speakers", len(store.Speakers()))

	var env []string
	if cfg.Device != "" {
		env = append(env, "VOICEGATE_DEVICE="+cfg.Device)
	}
	if cfg.ModelDir != "" {
		env = append(env, "VOICEGATE_MODEL_DIR="+cfg.ModelDir)
	}
	model := voiceprint.NewExecModel(cfg.Embedder,
		voiceprint.WithExecArgs(cfg.EmbedderArgs...),
		voiceprint.WithExecEnv(env...))

	cache, err := openCache(cfg.CacheDir)
	if err != nil {
		return err
	}
	defer cache.Close()

	gw := voiceprint.NewGateway(model,
		voiceprint.WithCache(cache),
		voiceprint.WithGatewayLogger(logger))
	defer gw.Close()

	orch := voiceprint.NewOrchestrator(gw, store, voiceprint.Config{
		Threshold: cfg.Threshold,
		Logger:    logger,
	})
	relay := gateway.NewRelay(cfg.Upstream, gateway.WithRelayLogger(logger))

	opts := []gateway.ServerOption{gateway.WithServerLogger(logger)}
	var monitorSrv *http.Server
	if cfg.Monitor != "" {
		monitor := gateway.NewMonitor(logger)
		opts = append(opts, gateway.WithMonitor(monitor))
		monitorSrv = &http.Server{Addr: cfg.Monitor, Handler: monitor}
		go func() {
			logger.Info("monitor listening", "addr", cfg.Monitor)
			if err := monitorSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("monitor server failed", "err", err)
			}
		}()
	}

	ln, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.Listen, err)
	}
	logger.Info("gateway listening",
		"addr", cfg.Listen, "upstream", cfg.Upstream, "threshold", cfg.Threshold)

	srv := gateway.NewServer(orch, relay, opts...)
	err = srv.Serve(ctx, ln)

	if monitorSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		monitorSrv.Shutdown(shutdownCtx)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("gateway stopped")
	return nil
}

// openCache picks the embedding cache backend: BadgerDB under dir when
// set, otherwise an in-process map.
func openCache(dir string) (embcache.Cache, error) {
	if dir == "" {
		return embcache.NewMemory(), nil
	}
	return embcache.NewBadger(embcache.BadgerOptions{
		Dir: filepath.Join(dir, "embeddings"),
	})
}
