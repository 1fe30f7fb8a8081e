// Package server exposes the settlement engine over HTTP: signed activity
// and settlement endpoints for the two wired callers, public claim and
// inspection endpoints for everyone else.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/PurgeGame/purge-settlement-engine/bonds"
	"github.com/PurgeGame/purge-settlement-engine/config"
	"github.com/PurgeGame/purge-settlement-engine/engine"
	"github.com/PurgeGame/purge-settlement-engine/identity"
	"github.com/PurgeGame/purge-settlement-engine/store"
	"github.com/PurgeGame/purge-settlement-engine/treasury"
	"github.com/PurgeGame/purge-settlement-engine/trophy"
)

type Server struct {
	cfg       *config.Config
	log       *slog.Logger
	engine    *engine.Engine
	treasury  *treasury.Client
	snapshots *store.SnapshotStore
	receipts  *store.ReceiptStore
	clock     clockwork.Clock
}

func New(cfg *config.Config, log *slog.Logger) (*Server, error) {
	var trophies engine.TrophyBank
	if cfg.TrophyBankURL != "" {
		trophies = trophy.NewClient(cfg.TrophyBankURL, cfg.TrophyBankSecret)
	}
	var registry engine.BondRegistry
	if cfg.BondRegistryURL != "" {
		registry = bonds.NewClient(cfg.BondRegistryURL, cfg.BondRegistrySecret)
	}
	eng, err := engine.New(engine.Config{
		BoardSize: cfg.BoardSize,
		Log:       log,
		Trophies:  trophies,
		Bonds:     registry,
	})
	if err != nil {
		return nil, err
	}
	if err := eng.Wire(identity.ID(cfg.ActivityCallerID), identity.ID(cfg.SettlementCallerID)); err != nil {
		return nil, err
	}

	snapshots := store.NewSnapshotStore(cfg.DataDir)
	if state, ok, err := snapshots.Load(); err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	} else if ok {
		if err := eng.Restore(state); err != nil {
			return nil, fmt.Errorf("restore snapshot: %w", err)
		}
		log.Info("snapshot restored", "savedAt", state.SavedAt, "lastResolved", state.LastResolved)
	}

	receipts, err := store.NewReceiptStore()
	if err != nil {
		return nil, fmt.Errorf("receipt store: %w", err)
	}
	if receipts.Enabled() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := receipts.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("receipt schema: %w", err)
		}
	}

	var tr *treasury.Client
	if cfg.TreasuryURL != "" {
		tr = treasury.NewClient(cfg.TreasuryURL, cfg.TreasurySecret)
	}
	return &Server{
		cfg:       cfg,
		log:       log,
		engine:    eng,
		treasury:  tr,
		snapshots: snapshots,
		receipts:  receipts,
		clock:     clockwork.NewRealClock(),
	}, nil
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(cors)
	r.Use(s.requestLogger)

	r.Get("/health", s.health)
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(s.callerAuth(s.cfg.ActivityCallerID, s.cfg.ActivitySecret))
		r.Post("/v1/activity/contribution", s.handleContribution)
		r.Post("/v1/activity/wager", s.handleWager)
	})
	r.Group(func(r chi.Router) {
		r.Use(s.callerAuth(s.cfg.SettlementCallerID, s.cfg.SettlementSecret))
		r.Post("/v1/level/resolve", s.handleResolve)
		r.Post("/v1/round/finalize", s.handleFinalize)
		r.Post("/v1/admin/snapshot", s.handleSnapshot)
	})

	r.Post("/v1/claim", s.handleClaim)
	r.Get("/v1/claimable", s.handleClaimable)
	r.Get("/v1/round", s.handleRound)
	r.Get("/v1/board", s.handleBoard)
	r.Get("/v1/audit", s.handleAudit)
	r.Get("/v1/receipts", s.handleReceipts)
	return r
}

// Run serves until the context ends, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	addr := ":" + strconv.Itoa(s.cfg.Port)
	srv := &http.Server{Addr: addr, Handler: s.Router()}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	s.log.Info("settlement engine listening", "addr", addr)
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// SnapshotLoop persists the engine image on the configured cadence and once
// more on shutdown.
func (s *Server) SnapshotLoop(ctx context.Context) error {
	ticker := s.clock.NewTicker(s.cfg.SnapshotInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			if err := s.snapshots.Save(s.engine.State()); err != nil {
				s.log.Error("final snapshot failed", "error", err)
				return err
			}
			s.log.Info("final snapshot saved")
			return nil
		case <-ticker.Chan():
			if err := s.snapshots.Save(s.engine.State()); err != nil {
				s.log.Error("snapshot failed", "error", err)
			}
		}
	}
}

func cors(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Caller-Id, X-Signature")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		h.ServeHTTP(w, r)
	})
}

// requestLogger logs method and path for each request (no body or secrets).
func (s *Server) requestLogger(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.log.Debug("http request", "method", r.Method, "path", r.URL.Path)
		h.ServeHTTP(w, r)
	})
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": "settlement-engine"})
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
