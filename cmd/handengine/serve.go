package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/lox/handengine/cmd/handengine/shared"
	"github.com/lox/handengine/internal/broadcast"
	"github.com/lox/handengine/internal/config"
	"github.com/lox/handengine/internal/hand"
	"github.com/lox/handengine/internal/handlog"
	"github.com/lox/handengine/internal/settlement"
	"github.com/lox/handengine/internal/table"
	"github.com/lox/handengine/internal/wallet"
)

// ServeCmd runs the table manager behind a small HTTP surface. Viewer ids
// are taken from the request as given; authentication happens upstream.
type ServeCmd struct {
	Addr     string `default:":8080" help:"Server address"`
	Config   string `default:"handengine.hcl" help:"Configuration file"`
	Debug    bool   `help:"Enable debug logging"`
	JSONLogs bool   `name:"json-logs" help:"Log structured JSON instead of console output"`
}

func (c *ServeCmd) Run() error {
	cfg, err := config.Load(c.Config)
	if err != nil {
		return err
	}
	logger, err := shared.NewLogger(shared.LogOptions{Level: cfg.Server.LogLevel, Debug: c.Debug, JSON: c.JSONLogs})
	if err != nil {
		return err
	}
	ctx, stop := shared.SignalContext(context.Background(), logger)
	defer stop()

	w, err := wallet.Open(cfg.Wallet.DSN, logger)
	if err != nil {
		return err
	}
	defer w.Close()

	hub := broadcast.NewHub(logger, broadcast.HubConfig{})
	defer hub.Close()
	if cfg.Redis.Addr != "" {
		client, err := broadcast.NewRedisClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return err
		}
		defer client.Close()
		go func() {
			if err := broadcast.NewRedisPublisher(client, logger).Run(ctx, hub.Subscribe("", "")); err != nil && !errors.Is(err, context.Canceled) {
				logger.Warn().Err(err).Msg("Redis relay stopped")
			}
		}()
	}

	store := handlog.NewStore(logger, handlog.StoreConfig{
		BaseDir:       cfg.Server.DataDir,
		FlushInterval: cfg.Server.FlushIntervalDuration(),
	})
	defaults, tables := cfg.TableConfigs()
	manager := table.NewManager(table.Deps{
		Store:     store,
		Wallet:    w,
		Evaluator: settlement.PokerEvaluator{},
		Publisher: hub,
		Logger:    logger,
	}, defaults, tables)

	srv := &http.Server{
		Addr:              c.Addr,
		Handler:           newAPI(cfg, manager, hub, logger).routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info().
		Str("address", c.Addr).
		Str("data_dir", cfg.Server.DataDir).
		Int("tables", len(cfg.Tables)).
		Bool("redis", cfg.Redis.Addr != "").
		Msg("Starting hand engine server")

	serverErr := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info().Msg("Shutting down server...")
	case err := <-serverErr:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return errors.Join(srv.Shutdown(shutdownCtx), manager.Shutdown(shutdownCtx))
}

// api adapts HTTP requests to table actors.
type api struct {
	cfg      *config.Config
	manager  *table.Manager
	hub      *broadcast.Hub
	logger   zerolog.Logger
	upgrader websocket.Upgrader
}

func newAPI(cfg *config.Config, manager *table.Manager, hub *broadcast.Hub, logger zerolog.Logger) *api {
	return &api{
		cfg:     cfg,
		manager: manager,
		hub:     hub,
		logger:  logger.With().Str("component", "api").Logger(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

func (a *api) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.HandleFunc("GET /tables", a.handleList)
	mux.HandleFunc("POST /tables/{id}/hands", a.handleStart)
	mux.HandleFunc("POST /tables/{id}/actions", a.handleAction)
	mux.HandleFunc("GET /tables/{id}/state", a.handleState)
	mux.HandleFunc("GET /tables/{id}/since/{index}", a.handleSince)
	mux.HandleFunc("GET /tables/{id}/stream", a.handleStream)
	return mux
}

func (a *api) handleList(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, a.manager.List())
}

func (a *api) handleStart(w http.ResponseWriter, r *http.Request) {
	tableID := r.PathValue("id")
	var req struct {
		Seats []hand.Seat `json:"seats"`
	}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
	}
	if len(req.Seats) == 0 {
		if tc := a.cfg.GetTable(tableID); tc != nil {
			req.Seats = tc.Seats
		}
	}

	actor, err := a.manager.Get(r.Context(), tableID)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	state, err := actor.StartHand(r.Context(), req.Seats)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusCreated, state)
}

func (a *api) handleAction(w http.ResponseWriter, r *http.Request) {
	var action hand.Action
	if err := json.NewDecoder(r.Body).Decode(&action); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	actor, err := a.manager.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	state, err := actor.Apply(r.Context(), action)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (a *api) handleState(w http.ResponseWriter, r *http.Request) {
	actor, err := a.manager.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	state, ok := actor.PublicState(r.URL.Query().Get("viewer"))
	if !ok {
		writeError(w, http.StatusNotFound, table.ErrNoHand)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (a *api) handleSince(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	actor, err := a.manager.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	frames, err := actor.Since(r.Context(), index, r.URL.Query().Get("viewer"))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, frames)
}

func (a *api) handleStream(w http.ResponseWriter, r *http.Request) {
	tableID := r.PathValue("id")
	viewer := r.URL.Query().Get("viewer")

	// Subscribed before the handshake completes so no frame after it is missed.
	sub := a.hub.Subscribe(tableID, viewer)
	defer a.hub.Unsubscribe(sub)

	conn, err := a.upgrader.Upgrade(w, r, nil)
	if err != nil {
		a.logger.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go func() {
		// Reads only detect the peer going away.
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	a.logger.Debug().Str("table_id", tableID).Str("viewer", viewer).Msg("Stream opened")
	if err := broadcast.Pump(ctx, conn, sub); err != nil && !errors.Is(err, context.Canceled) {
		a.logger.Debug().Err(err).Str("table_id", tableID).Msg("Stream closed")
	}
	if n := sub.Dropped(); n > 0 {
		a.logger.Info().Str("table_id", tableID).Uint64("dropped", n).Msg("Stream dropped frames")
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, hand.ErrInvalidAction):
		return http.StatusBadRequest
	case errors.Is(err, table.ErrNoHand), errors.Is(err, table.ErrHandInProgress):
		return http.StatusConflict
	case errors.Is(err, handlog.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, table.ErrClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
