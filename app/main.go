package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/htbwatch/htb-relay/app/api"
	"github.com/htbwatch/htb-relay/app/cfg"
	"github.com/htbwatch/htb-relay/app/config"
	"github.com/htbwatch/htb-relay/app/database"
	"github.com/htbwatch/htb-relay/app/deliver"
	"github.com/htbwatch/htb-relay/app/discord"
	"github.com/htbwatch/htb-relay/app/feed"
	"github.com/htbwatch/htb-relay/app/htb"
	"github.com/htbwatch/htb-relay/app/linkwarden"
	"github.com/htbwatch/htb-relay/app/osint"
	"github.com/htbwatch/htb-relay/app/tasks"
)

func main() {
	opts, err := cfg.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if opts == nil {
		// Help was shown, exit gracefully
		return
	}

	setupLogger(opts.Debug)

	switch opts.Command() {
	case "run":
		run(opts)
	case "validate":
		validate(opts)
	case "generate-config":
		generateConfig(opts)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command %q, expected run, validate or generate-config\n", opts.Command())
		os.Exit(1)
	}
}

func setupLogger(debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

func validate(opts *cfg.Cfg) {
	if _, err := config.Load(opts.ConfigPath); err != nil {
		fmt.Fprintf(os.Stderr, "Configuration invalid: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Configuration %s is valid\n", opts.ConfigPath)
}

func generateConfig(opts *cfg.Cfg) {
	path := opts.ConfigPath
	if len(opts.Args) > 1 {
		path = opts.Args[1]
	}

	if err := config.GenerateSample(path); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to generate configuration: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Sample configuration written to %s\n", path)
}

func run(opts *cfg.Cfg) {
	slog.Info("Starting htb-relay", "version", opts.Version)

	conf, err := config.Load(opts.ConfigPath)
	if err != nil {
		slog.Error("Failed to load configuration", "path", opts.ConfigPath, "error", err)
		os.Exit(1)
	}

	db, err := database.NewConnection(opts.DBPath)
	if err != nil {
		slog.Error("Failed to open database", "path", opts.DBPath, "error", err)
		os.Exit(1)
	}
	defer db.Close()

	version, dirty, err := database.RunMigrations(db)
	if err != nil {
		slog.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}
	slog.Info("Database ready", "path", opts.DBPath, "schema_version", version, "dirty", dirty)

	deliveryRepo := database.NewDeliveryRepository(db)
	markerRepo := database.NewMarkerRepository(db)
	itemRepo := database.NewItemRepository(db)

	htbClient := htb.NewClient("", conf.API.HTBBearerToken, opts.UserAgent, nil)

	discordClient, err := discord.NewClient(conf.API.DiscordToken, conf.Discord.GuildID)
	if err != nil {
		slog.Error("Failed to create Discord client", "error", err)
		os.Exit(1)
	}

	enricher := osint.NewEnricher(htbClient)

	var archiver deliver.Archiver
	if conf.API.LinkwardenURL != "" {
		archiver = linkwarden.NewClient(conf.API.LinkwardenURL, conf.API.LinkwardenToken,
			conf.API.LinkwardenCollection, nil)
		slog.Info("Link archival enabled", "url", conf.API.LinkwardenURL)
	}

	deliverer := deliver.NewDeliverer(deliveryRepo, itemRepo, discordClient, enricher, archiver)
	detector := feed.NewDetector(deliveryRepo)

	var runners []tasks.FeedRunner
	for _, kind := range conf.EnabledKinds() {
		settings := conf.Settings(kind)
		announce, forum, voice := conf.Destinations(kind)

		task := tasks.NewPollFeedTask(kind, htbClient, detector, deliverer, markerRepo,
			conf.RequiredChannels(kind),
			deliver.Options{
				AnnounceChannelID: announce,
				ForumChannelID:    forum,
				VoiceChannelID:    voice,
				MaxAttempts:       settings.MaxAttempts,
				CallTimeout:       settings.GetTimeout(),
			},
			settings.GetTimeout())

		runners = append(runners, tasks.FeedRunner{
			Task:     task,
			Interval: settings.GetPollInterval(),
		})

		slog.Info("Feed enabled", "feed", kind,
			"interval", settings.GetPollInterval(),
			"channels", conf.RequiredChannels(kind))
	}

	scheduler := tasks.NewScheduler(runners)
	scheduler.Start()
	defer scheduler.Stop()

	apiHandler := api.NewHandler(deliveryRepo, itemRepo, maxAttempts(conf), opts.Version)
	httpServer := &http.Server{
		Addr:         ":" + opts.Port,
		Handler:      api.NewServer(apiHandler),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serverErrChan := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "port", opts.Port)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		slog.Info("Received signal, shutting down", "signal", sig.String())
	case err := <-serverErrChan:
		slog.Error("Server error, shutting down", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	// Scheduler is stopped via defer
	slog.Info("Shutdown complete")
}

// maxAttempts returns the largest configured attempt threshold so the stats
// surface reports a record stuck only once every feed would consider it so.
func maxAttempts(conf *config.Config) int {
	highest := 0
	for _, kind := range feed.Kinds {
		if s := conf.Settings(kind); s.MaxAttempts > highest {
			highest = s.MaxAttempts
		}
	}
	return highest
}
