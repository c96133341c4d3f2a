package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/lbartoli/parley/internal/bus"
	"github.com/lbartoli/parley/internal/config"
	"github.com/lbartoli/parley/internal/dialogue"
	"github.com/lbartoli/parley/internal/hermes"
	"github.com/lbartoli/parley/internal/history"
	"github.com/lbartoli/parley/internal/httpapi"
	"github.com/lbartoli/parley/internal/observability"
	"github.com/lbartoli/parley/internal/sounds"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	ctx := context.Background()
	store, err := history.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("history store init failed: %v", err)
	}
	defer store.Close()

	resolver, err := sounds.NewResolver(sounds.Config{
		Dir:            cfg.SoundsDir,
		DisabledSites:  cfg.SoundsDisabled,
		GroupSeparator: cfg.SiteGroupSeparator,
		DefaultVolume:  cfg.Volume,
		SiteVolumes:    cfg.SiteVolumes,
	})
	if err != nil {
		log.Fatalf("sound resolver init failed: %v", err)
	}

	// The bus handler can fire before the manager is wired, so dispatch
	// goes through a guarded holder.
	var (
		managerMu sync.Mutex
		manager   *dialogue.Manager
	)
	handler := func(topic string, payload []byte) {
		managerMu.Lock()
		m := manager
		managerMu.Unlock()
		if m == nil {
			return
		}

		msg, err := hermes.ParseInbound(topic, payload)
		if err != nil {
			if !errors.Is(err, hermes.ErrUnsupportedTopic) {
				metrics.ObserveDropped("malformed")
				if cfg.Debug {
					log.Printf("bus: %v", err)
				}
			}
			return
		}
		metrics.ObserveBusMessage("inbound", topic)
		m.HandleInbound(msg)
	}

	var publisher bus.Publisher
	if cfg.BusURL != "" {
		client, err := bus.Dial(ctx, cfg.BusURL, hermes.SubscriptionTopics(), handler)
		if err != nil {
			log.Fatalf("bus connect failed: %v", err)
		}
		defer client.Close()
		publisher = client
		log.Printf("connected to bus at %s", cfg.BusURL)
	} else {
		local := bus.NewLocal()
		local.Subscribe(hermes.SubscriptionTopics(), handler)
		publisher = local
		log.Printf("no PARLEY_BUS_URL configured, running with in-process bus only")
	}

	m := dialogue.NewManager(dialogue.Settings{
		SiteIDs:                  cfg.SiteIDs,
		WakewordIDs:              cfg.WakewordIDs,
		SessionTimeout:           cfg.SessionTimeout,
		SpeechMinDuration:        cfg.SpeechMinDuration,
		SpeechCharsPerSecond:     cfg.SpeechCharsPerSecond,
		ConfidenceFloor:          cfg.ConfidenceFloor,
		HotwordSendNotRecognized: cfg.HotwordSendNotRecognized,
		SoundOnSuperseded:        cfg.SoundOnSuperseded,
		QueueLimit:               cfg.SessionQueueLimit,
		Debug:                    cfg.Debug,
	}, publisher, resolver, store, metrics)

	managerMu.Lock()
	manager = m
	managerMu.Unlock()

	api := httpapi.New(cfg, m, store)
	httpServer := &http.Server{
		Addr:    cfg.BindAddr,
		Handler: api.Router(),
	}

	go func() {
		log.Printf("server listening on %s", cfg.BindAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Printf("shutdown signal received")

	m.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
		_ = httpServer.Close()
	}

	log.Printf("shutdown complete")
}
