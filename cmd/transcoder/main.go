package main

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/bnema/transcoder/config"
	"github.com/bnema/transcoder/internal/adapter/converter/ffmpeg"
	HTTPAdapter "github.com/bnema/transcoder/internal/adapter/http"
	"github.com/bnema/transcoder/internal/adapter/lockfile"
	s3publisher "github.com/bnema/transcoder/internal/adapter/publisher/s3"
	"github.com/bnema/transcoder/internal/adapter/source"
	sqlitestore "github.com/bnema/transcoder/internal/adapter/storage/sqlite"
	"github.com/bnema/transcoder/internal/infrastructure/logger"
	"github.com/bnema/transcoder/internal/port"
	"github.com/bnema/transcoder/internal/service"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "hash-key" {
		os.Exit(hashKey())
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Error.Printf("failed to load config: %v", err)
		os.Exit(1)
	}
	logger.Setup(os.Stdout, cfg.LogLevel)

	logger.Info.Printf("starting transcoder on port %d, media=%s, output=%s", cfg.Port, cfg.MediaRoot, cfg.Transcoder.OutputDir)

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		logger.Error.Printf("failed to create data directory: %v", err)
		os.Exit(1)
	}

	store, err := sqlitestore.NewStore(cfg.DataDir)
	if err != nil {
		logger.Error.Printf("failed to create store: %v", err)
		os.Exit(1)
	}
	defer func() { _ = store.Close() }()

	locks, err := lockfile.NewManager(cfg.LockDir, cfg.LockStaleAfter)
	if err != nil {
		logger.Error.Printf("failed to create lock manager: %v", err)
		os.Exit(1)
	}

	var publisher port.Publisher
	if cfg.S3.Enabled() {
		s3pub, err := s3publisher.NewPublisher(context.Background(), s3publisher.Config{
			Bucket:    cfg.S3.Bucket,
			Region:    cfg.S3.Region,
			Prefix:    cfg.S3.Prefix,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
		})
		if err != nil {
			logger.Error.Printf("failed to configure s3 publisher: %v", err)
			os.Exit(1)
		}
		publisher = s3pub
		logger.Info.Printf("publishing derivatives to s3://%s/%s", cfg.S3.Bucket, cfg.S3.Prefix)
	}

	eventBus := service.NewEventBus()
	builder := ffmpeg.NewBuilder(cfg.Transcoder.EncoderPath, cfg.Transcoder.ProberPath, cfg.Transcoder.ProberOptions)
	supervisor := service.NewSupervisor(store, locks, publisher, eventBus, cfg.Transcoder.OutputURL, cfg.LockHeartbeat)
	transcoder := service.NewTranscoder(cfg.Transcoder, builder, ffmpeg.NewRunner(), ffmpeg.NewProber(), locks, store, supervisor)
	authSvc := service.NewAuthService(cfg.APIKeyHash)
	if !authSvc.Enabled() {
		logger.Warn.Printf("API_KEY_HASH not set, API is unauthenticated")
	}

	// Reaper recovers jobs orphaned by previous runs, then sweeps periodically
	reaperCtx, reaperCancel := context.WithCancel(context.Background())
	defer reaperCancel()
	service.NewReaper(store, locks, cfg.ReapInterval, cfg.JobRetention).Start(reaperCtx)

	server := HTTPAdapter.NewServer(transcoder, source.NewResolver(cfg.MediaRoot), store, eventBus, store, authSvc, cfg.BehindProxy)
	if strings.HasPrefix(cfg.Transcoder.OutputURL, "/") {
		server.ServeDerivatives(cfg.Transcoder.OutputURL, cfg.Transcoder.OutputDir)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           server,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// Event streams never end on their own, so close them when draining starts
	httpServer.RegisterOnShutdown(server.Close)

	// Graceful shutdown
	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info.Printf("received %s, shutting down", sig)

		reaperCancel()

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := httpServer.Shutdown(ctx); err != nil {
				logger.Error.Printf("http shutdown error: %v", err)
			}
		}()
		go func() {
			defer wg.Done()
			// Kill encoders so their jobs are recorded as failed and locks released
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := supervisor.Shutdown(ctx); err != nil {
				logger.Error.Printf("supervisor shutdown error: %v", err)
			}
		}()
		wg.Wait()

		logger.Info.Printf("shutdown complete")
	}()

	logger.Info.Printf("server listening on %s", addr)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error.Printf("server failed: %v", err)
		os.Exit(1)
	}
	<-shutdownDone
}

// hashKey reads an API key from stdin and prints its bcrypt hash for
// API_KEY_HASH.
func hashKey() int {
	fmt.Fprint(os.Stderr, "API key: ")
	key, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && key == "" {
		fmt.Fprintf(os.Stderr, "read key: %v\n", err)
		return 1
	}

	hash, err := service.HashAPIKey(strings.TrimSpace(key))
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}
	fmt.Println(hash)
	return 0
}
