package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tuner-control/internal/platform/config"
	"tuner-control/internal/platform/logger"
	"tuner-control/internal/platform/metrics"
	"tuner-control/internal/tuner"

	"github.com/go-chi/chi/v5"
)

const shutdownTimeout = 10 * time.Second

func main() {
	_ = config.Load()

	port := config.GetEnv("PORT", "8080")
	logLevel := config.GetEnv("LOG_LEVEL", "info")
	logFormat := config.GetEnv("LOG_FORMAT", "text")
	ringCapacity := config.GetEnvInt("RING_CAPACITY_BYTES", tuner.DefaultRingCapacity)
	pollInterval := config.GetEnvDuration("POLL_INTERVAL", 50*time.Millisecond)
	chunkSize := config.GetEnvInt("CHUNK_SIZE_BYTES", 64*1024)
	mapFile := config.GetEnv("CHANNEL_MAP_FILE", "")

	log := logger.New(logLevel, logFormat)

	maps := tuner.DefaultChannelMaps()
	if mapFile != "" {
		loaded, err := tuner.LoadChannelMaps(mapFile)
		if err != nil {
			log.Warn("channel map file ignored", "path", mapFile, "error", err)
		} else {
			maps = loaded
		}
	}

	loop := tuner.NewLoop()
	loop.Start()

	drv := tuner.NewVirtualDriver(nil)
	met := metrics.New()

	session := tuner.NewSession(drv, loop, tuner.SessionConfig{
		RingCapacity: ringCapacity,
		PollInterval: pollInterval,
		ChunkSize:    chunkSize,
	}, log, met)

	catalog := tuner.NewCatalog()
	engine := tuner.NewScanEngine(drv, loop, maps, log, met)
	engine.OnComplete(func(sum tuner.ScanSummary) {
		catalog.Rebuild(sum.Found)
		log.Info("channel catalog rebuilt",
			"status", sum.Status.String(),
			"channels_scanned", sum.ChannelsScanned,
			"channels_found", len(sum.Found))
	})

	h := tuner.NewHandler(session, engine, catalog, drv, maps, log, met)

	r := chi.NewRouter()
	r.Use(logger.RequestLogger(log))
	r.Use(metrics.RequestMiddleware(met))
	r.Get("/metrics", func(w http.ResponseWriter, req *http.Request) {
		met.Handler(func() {
			st := session.Stats()
			met.SetBufferFill(st.BufferedBytes)
		}).ServeHTTP(w, req)
	})
	h.Mount(r)

	addr := ":" + port
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	log.Info("tunerd starting",
		"port", port,
		"ring_capacity", ringCapacity,
		"poll_interval", pollInterval.String(),
		"channel_maps", maps.IDs(),
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Info("shutdown signal received")

	// Scan and stream wind down before the hardware handle goes away.
	engine.Cancel()
	if err := session.Close(); err != nil {
		log.Warn("session close", "error", err)
	}
	loop.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("shutdown error", "error", err)
		os.Exit(1)
	}

	log.Info("tunerd stopped")
}
