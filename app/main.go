package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/lysyi3m/newsdeck/app/api"
	"github.com/lysyi3m/newsdeck/app/bridge"
	"github.com/lysyi3m/newsdeck/app/cache"
	"github.com/lysyi3m/newsdeck/app/cfg"
	"github.com/lysyi3m/newsdeck/app/content"
	"github.com/lysyi3m/newsdeck/app/feed"
	"github.com/lysyi3m/newsdeck/app/loader"
	"github.com/lysyi3m/newsdeck/app/prefetch"
	"github.com/lysyi3m/newsdeck/app/remote"
	"github.com/lysyi3m/newsdeck/app/session"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using flags and environment")
	}

	appCfg, err := cfg.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if appCfg == nil {
		// Help was shown
		return
	}

	level := slog.LevelInfo
	if appCfg.Debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})))

	tuning, err := cfg.LoadTuning(appCfg.TuningFile)
	if err != nil {
		log.Fatalf("Failed to load tuning file %s: %v", appCfg.TuningFile, err)
	}

	slog.Info("Starting Newsdeck server",
		"version", appCfg.Version,
		"api_url", appCfg.APIURL,
		"port", appCfg.Port,
		"debug", appCfg.Debug,
		"timezone", appCfg.Timezone)

	httpClient := &http.Client{}

	b, err := bridge.New(appCfg.APIURL,
		bridge.NewHTTPTransport(httpClient, appCfg.UserAgent),
		bridge.WithTimeout(appCfg.RequestTimeoutDuration()),
		bridge.WithLogger(slog.Default()))
	if err != nil {
		log.Fatalf("Failed to create request bridge: %v", err)
	}

	responses := cache.New[json.RawMessage](
		cache.WithMaxSize(tuning.Cache.MaxSize),
		cache.WithMaxAge(tuning.CacheMaxAge()))
	client := remote.NewClient(b, responses, slog.Default())

	extractor := content.NewExtractor()
	sess := session.New(extractor, tuning.Filter.CacheSize, slog.Default())

	imageLoader := prefetch.NewHTTPImageLoader(httpClient, appCfg.UserAgent)
	images := prefetch.NewImagePrefetcher(imageLoader, tuning.Prefetch.Images.MaxConcurrent, slog.Default())
	items := prefetch.NewItemQueue(client, tuning.ItemDelay(), slog.Default())

	orchestrator := loader.New(client, sess, images, items, loader.Options{
		Pacing:        tuning.LoadingPacing(),
		FeaturedLimit: tuning.Loading.FeaturedLimit,
		RecentLimit:   tuning.Loading.RecentLimit,
		ItemLimit:     tuning.Prefetch.Items.ItemLimit,
		Logger:        slog.Default(),
	})

	hub := api.NewHub(sess, images, tuning.FilterDebounce(), tuning.Viewport.Margin, slog.Default())
	hub.Start()

	baseURL := strings.TrimRight(appCfg.BaseUrl, "/")
	if baseURL == "" {
		baseURL = "http://localhost:" + appCfg.Port
	}

	handler := api.NewHandler(api.Deps{
		Remote:    client,
		Session:   sess,
		Loader:    orchestrator,
		Images:    images,
		Items:     items,
		Requests:  b,
		Generator: feed.NewGenerator(extractor),
		Channel: feed.Channel{
			Title:       "Newsdeck",
			Link:        baseURL,
			Description: "Latest newsletters",
			SelfURL:     baseURL + "/feed.xml",
			Version:     appCfg.Version,
		},
		Hub: hub,
	})
	server := api.NewServer(handler)

	loadCtx, stopLoading := context.WithCancel(context.Background())
	loadDone := make(chan struct{})
	go func() {
		defer close(loadDone)
		start := time.Now()
		if err := orchestrator.RunAll(loadCtx); err != nil {
			slog.Error("Progressive load failed", "error", err)
			return
		}
		slog.Info("Progressive load complete", "duration", time.Since(start))
	}()

	httpServer := &http.Server{
		Addr:         ":" + appCfg.Port,
		Handler:      server,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serverErrChan := make(chan error, 1)
	go func() {
		slog.Info("Starting HTTP server", "port", appCfg.Port)
		slog.Info("Endpoints available",
			"newsletters", baseURL+"/api/newsletters",
			"feed", baseURL+"/feed.xml",
			"live", baseURL+"/ws",
			"health", baseURL+"/health",
			"stats", baseURL+"/stats")

		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	slog.Info("Newsdeck server started successfully")

	select {
	case sig := <-sigChan:
		slog.Info("Received signal", "signal", sig)
	case err := <-serverErrChan:
		slog.Error("Server error", "error", err)
	}

	slog.Info("Shutting down server gracefully")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	} else {
		slog.Info("HTTP server stopped")
	}

	stopLoading()
	<-loadDone

	hub.Close()
	handler.Close()
	if err := orchestrator.Close(); err != nil {
		slog.Error("Background prefetch error", "error", err)
	}

	slog.Info("Newsdeck server shutdown complete")
}
