package tuner

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"tuner-control/internal/platform/metrics"

	"github.com/go-chi/chi/v5"
)

const streamContentType = "video/mp2t"

// Handler exposes the tuner core's capability surface over HTTP: start/stop
// for the stream session, begin/cancel for the scan engine, select/tune for
// the catalog. It stands in for the host UI.
type Handler struct {
	session *Session
	engine  *ScanEngine
	catalog *Catalog
	drv     Driver
	maps    *ChannelMapTable
	log     *slog.Logger
	metrics *metrics.Metrics
}

// NewHandler wires the handler to the core components. m may be nil to
// disable metric recording (e.g. in tests).
func NewHandler(session *Session, engine *ScanEngine, catalog *Catalog, drv Driver, maps *ChannelMapTable, log *slog.Logger, m *metrics.Metrics) *Handler {
	return &Handler{
		session: session,
		engine:  engine,
		catalog: catalog,
		drv:     drv,
		maps:    maps,
		log:     log,
		metrics: m,
	}
}

// Mount registers all tuner routes on r.
func (h *Handler) Mount(r chi.Router) {
	r.Route("/tuner", func(r chi.Router) {
		r.Post("/play", h.Play)
		r.Post("/stop", h.Stop)
		r.Get("/status", h.Status)
		r.Get("/stream", h.Stream)
	})
	r.Route("/scan", func(r chi.Router) {
		r.Post("/begin", h.BeginScan)
		r.Post("/cancel", h.CancelScan)
		r.Get("/status", h.ScanStatus)
	})
	r.Get("/channels", h.Channels)
	r.Post("/channels/{index}/tune", h.TuneSelection)
	r.Post("/tune", h.TuneManual)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Debug("write response", slog.String("error", err.Error()))
	}
}

// Play handles POST /tuner/play.
func (h *Handler) Play(w http.ResponseWriter, r *http.Request) {
	if err := h.session.Start(); err != nil {
		h.log.Error("start playback failed", slog.String("error", err.Error()))
		status := http.StatusInternalServerError
		if errors.Is(err, ErrHardwareUnavailable) {
			status = http.StatusServiceUnavailable
		}
		h.writeJSON(w, status, map[string]string{"error": err.Error()})
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]bool{"playing": true})
}

// Stop handles POST /tuner/stop. Stopping an idle session is fine.
func (h *Handler) Stop(w http.ResponseWriter, r *http.Request) {
	h.session.Stop()
	h.writeJSON(w, http.StatusOK, map[string]bool{"playing": false})
}

// Status handles GET /tuner/status.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.session.Stats())
}

// Stream handles GET /tuner/stream: it serves the decoder pull contract over
// HTTP, draining the ring buffer to the client until it disconnects. An empty
// buffer is "no data yet", so the copy loop idles rather than ending.
func (h *Handler) Stream(w http.ResponseWriter, r *http.Request) {
	src := h.session.Source()
	if err := src.Open(); err != nil {
		h.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
		return
	}
	defer src.Close()

	w.Header().Set("Content-Type", streamContentType)
	w.WriteHeader(http.StatusOK)

	flusher, _ := w.(http.Flusher)
	buf := make([]byte, 32*1024)
	idle := time.NewTicker(10 * time.Millisecond)
	defer idle.Stop()

	for {
		n, _ := src.Read(buf)
		if n > 0 {
			if _, err := w.Write(buf[:n]); err != nil {
				return
			}
			if flusher != nil {
				flusher.Flush()
			}
			continue
		}
		select {
		case <-r.Context().Done():
			return
		case <-idle.C:
		}
	}
}

// BeginScan handles POST /scan/begin. Body: {"channel_map": "us-bcast"}.
func (h *Handler) BeginScan(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ChannelMap string `json:"channel_map"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ChannelMap == "" {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "channel_map is required"})
		return
	}
	if !h.maps.Known(req.ChannelMap) {
		h.log.Debug("scan over unlisted map", slog.String("channel_map", req.ChannelMap))
	}

	if err := h.engine.Begin(req.ChannelMap); err != nil {
		if errors.Is(err, ErrAlreadyScanning) {
			h.writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
			return
		}
		h.log.Error("scan init failed", slog.String("error", err.Error()))
		h.writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
		return
	}
	h.writeJSON(w, http.StatusAccepted, map[string]string{"status": h.engine.Status().String()})
}

// CancelScan handles POST /scan/cancel. Cancelling an idle engine is fine.
func (h *Handler) CancelScan(w http.ResponseWriter, r *http.Request) {
	h.engine.Cancel()
	h.writeJSON(w, http.StatusOK, map[string]string{"status": h.engine.Status().String()})
}

// ScanStatus handles GET /scan/status.
func (h *Handler) ScanStatus(w http.ResponseWriter, r *http.Request) {
	p := h.engine.Progress()
	h.writeJSON(w, http.StatusOK, struct {
		Status string `json:"status"`
		ScanProgress
	}{Status: p.Status.String(), ScanProgress: p})
}

// Channels handles GET /channels.
func (h *Handler) Channels(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]any{
		"channels": h.catalog.Channels(),
		"labels":   h.catalog.Labels(),
	})
}

// TuneSelection handles POST /channels/{index}/tune.
func (h *Handler) TuneSelection(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "index must be an integer"})
		return
	}

	if err := h.catalog.TuneSelection(h.drv, index); err != nil {
		if errors.Is(err, ErrNoSelection) {
			h.writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
			return
		}
		h.log.Error("tune selection failed", slog.Int("index", index), slog.String("error", err.Error()))
		h.writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
		return
	}
	h.log.Info("tuned to catalog selection", slog.Int("index", index))
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "tuned"})
}

// TuneManual handles POST /tune. Body: {"channel": "189000000"}. The token is
// validated before it reaches the hardware.
func (h *Handler) TuneManual(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Channel string `json:"channel"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid body"})
		return
	}

	if err := TuneManual(h.drv, req.Channel); err != nil {
		if errors.Is(err, ErrInvalidChannelToken) {
			h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		h.log.Error("manual tune failed", slog.String("error", err.Error()))
		h.writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
		return
	}
	h.log.Info("tuned to manual channel", slog.String("channel", req.Channel))
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "tuned"})
}
