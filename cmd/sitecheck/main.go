package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"sitecheck/analytics"
	"sitecheck/chat"
	"sitecheck/config"
	"sitecheck/httpapi"
	"sitecheck/store"
)

func main() {
	// Local .env is optional; real deployments set env vars directly.
	_ = godotenv.Load()

	var configPath string
	var listen string
	var dbPath string
	var debug bool

	flag.StringVar(&configPath, "config", "", "YAML config file path.")
	flag.StringVar(&listen, "listen", ":8080", "HTTP listen address.")
	flag.StringVar(&dbPath, "db", "sitecheck.db", "SQLite database path.")
	flag.BoolVar(&debug, "debug", false, "Enable debug logs.")
	flag.Parse()

	visited := map[string]bool{}
	flag.CommandLine.Visit(func(f *flag.Flag) {
		visited[f.Name] = true
	})

	cfg, err := config.Load(configPath)
	if err != nil {
		logrus.WithError(err).Fatal("load config")
	}
	if visited["listen"] {
		cfg.Listen = listen
	}
	if visited["db"] {
		cfg.DBPath = dbPath
	}
	if visited["debug"] {
		cfg.Debug = debug
	}

	log := config.NewLogger(cfg.Debug)

	db, err := store.OpenDB(cfg.DBPath)
	if err != nil {
		log.WithError(err).Fatal("open database")
	}
	st := store.New(db)
	engine := analytics.New(st, log)
	llm := chat.NewRewriteClient(config.NewAIResolver(cfg.AI))
	chatSvc := chat.NewService(st, engine, llm, log)
	api := httpapi.NewServer(st, engine, chatSvc, log)

	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           api.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		log.WithField("listen", cfg.Listen).Info("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("server failed")
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("shutdown")
	}
}
