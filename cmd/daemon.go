package cmd

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"streamjobs/internal/config"
	"streamjobs/internal/daemon"
	"streamjobs/internal/engine"
	"streamjobs/internal/ffmpeg"
	"streamjobs/internal/flow"
	"streamjobs/internal/logger"
	"streamjobs/internal/model"
	"streamjobs/internal/repository"
	"streamjobs/internal/scanner"
	"streamjobs/internal/source"
	"streamjobs/internal/source/dropbox"
	"streamjobs/internal/source/ftp"
	"streamjobs/internal/source/gdrive"
	"streamjobs/internal/source/local"
	"streamjobs/internal/ytdlp"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const shutdownTimeout = 30 * time.Second

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the job daemon and its HTTP API",
	RunE:  runDaemon,
}

func runDaemon(cmd *cobra.Command, args []string) error {
	defer logger.Sync()

	sources := newSources(cfg)
	registry := engine.NewRegistry(engineOptions(cfg), repository.NewJobRepository())
	flows := flow.NewFactory(flowDeps(cfg, sources))

	srv := daemon.NewServer(registry, flows, daemon.NewSessionManager(sources), cfg.DaemonPort)
	srv.Start()

	config.Watch(func(next *config.Config, e fsnotify.Event) {
		sources.Register("ftp", ftp.NewConnector(next.FTP.DialTimeout))
		registry.SetOptions(engineOptions(next))
		flows.SetDeps(flowDeps(next, sources))

		logger.Log.Info("config reloaded",
			zap.String("file", e.Name),
			zap.Duration("item_timeout", next.Engine.ItemTimeout),
			zap.Int("item_retries", next.Engine.ItemRetries),
			zap.Int("max_depth", next.Scan.MaxDepth),
			zap.Int("max_entries", next.Scan.MaxEntries))
	})

	logger.Log.Info("streamjobs daemon started",
		zap.Int("port", cfg.DaemonPort),
		zap.String("media_root", cfg.MediaRoot),
		zap.Strings("protocols", sources.Protocols()))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Log.Info("shutting down",
			zap.String("signal", sig.String()))
	case <-srv.StopCh():
		logger.Log.Info("stop requested via API")
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Stop(ctx)
}

func newSources(c *config.Config) *source.Registry {
	sources := source.NewRegistry()
	sources.Register("ftp", ftp.NewConnector(c.FTP.DialTimeout))
	sources.Register("local", local.NewConnector())
	sources.Register("gdrive", gdrive.NewConnector())
	sources.Register("dropbox", dropbox.NewConnector())
	return sources
}

func engineOptions(c *config.Config) engine.Options {
	concurrency := make(map[model.Kind]int, len(model.Kinds))
	for _, kind := range model.Kinds {
		concurrency[kind] = c.ConcurrencyFor(string(kind))
	}

	return engine.Options{
		ItemTimeout: c.Engine.ItemTimeout,
		ItemRetries: c.Engine.ItemRetries,
		ETAWindow:   c.Engine.ETAWindow,
		Concurrency: concurrency,
	}
}

func flowDeps(c *config.Config, sources *source.Registry) flow.Deps {
	return flow.Deps{
		Sources: sources,
		Scan: scanner.Options{
			MaxDepth:   c.Scan.MaxDepth,
			MaxEntries: c.Scan.MaxEntries,
			Extensions: c.MediaExtensions,
			IgnoreList: c.IgnoreList,
		},
		MediaRoot:      c.MediaRoot,
		StagingDir:     c.StagingDir,
		HTTPClient:     &http.Client{Timeout: c.Engine.ItemTimeout},
		UserAgent:      c.Download.UserAgent,
		Extractor:      ytdlp.NewClient(c.Download.YTDLPPath, c.Download.UserAgent),
		Transcoder:     ffmpeg.NewConverter(c.FFmpeg.Binary, c.FFmpeg.ProbeBinary),
		DefaultBackend: c.Download.Backend,
		MaxURLs:        c.Download.MaxURLs,
	}
}

func init() {
	rootCmd.AddCommand(daemonCmd)
}
