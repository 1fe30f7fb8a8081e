package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/PurgeGame/purge-settlement-engine/engine"
	"github.com/PurgeGame/purge-settlement-engine/entropy"
	"github.com/PurgeGame/purge-settlement-engine/identity"
	"github.com/PurgeGame/purge-settlement-engine/ledger"
	"github.com/PurgeGame/purge-settlement-engine/metrics"
	"github.com/PurgeGame/purge-settlement-engine/store"
)

type resolveRequest struct {
	Level uint32 `json:"level"`
	Seed  string `json:"seed"`
	Pool  uint64 `json:"pool"`
}

type resolveResponse struct {
	engine.Resolution
	RefundSettled bool `json:"refundSettled,omitempty"`
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", "bad_request")
		return
	}
	seed, err := entropy.WordFromHex(req.Seed)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "bad_seed")
		return
	}
	if seed.IsZero() {
		writeError(w, http.StatusBadRequest, "seed must be a nonzero entropy word", "bad_seed")
		return
	}
	caller := identity.ID(r.Header.Get(headerCallerID))
	start := time.Now()
	res, err := s.engine.ResolveLevel(caller, req.Level, seed, req.Pool)
	if err != nil {
		metrics.ResolutionsTotal.WithLabelValues("rejected").Inc()
		engineError(w, err)
		return
	}
	metrics.ResolveSeconds.Observe(time.Since(start).Seconds())

	out := resolveResponse{Resolution: res}
	if res.Refunded {
		metrics.ResolutionsTotal.WithLabelValues("refunded").Inc()
		if s.treasury != nil && res.RefundAmount > 0 {
			if err := s.treasury.Refund(res.RefundAmount, req.Level); err != nil {
				s.log.Warn("treasury refund deferred", "level", req.Level, "amount", res.RefundAmount, "error", err)
			} else {
				out.RefundSettled = true
			}
		}
	} else {
		metrics.ResolutionsTotal.WithLabelValues("resolved").Inc()
	}
	writeJSON(w, http.StatusOK, out)
}

type finalizeRequest struct {
	Level uint32 `json:"level"`
}

type finalizeResponse struct {
	Level         uint32 `json:"level"`
	Unclaimed     uint64 `json:"unclaimed"`
	RefundSettled bool   `json:"refundSettled"`
}

// handleFinalize retires a claim round and returns the unclaimed remainder
// to the treasury.
func (s *Server) handleFinalize(w http.ResponseWriter, r *http.Request) {
	var req finalizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", "bad_request")
		return
	}
	caller := identity.ID(r.Header.Get(headerCallerID))
	remaining, err := s.engine.FinalizeRound(caller, req.Level)
	if err != nil {
		engineError(w, err)
		return
	}
	out := finalizeResponse{Level: req.Level, Unclaimed: remaining}
	if remaining > 0 && s.treasury != nil {
		if err := s.treasury.Refund(remaining, req.Level); err != nil {
			s.log.Warn("treasury sweep deferred", "level", req.Level, "amount", remaining, "error", err)
		} else {
			out.RefundSettled = true
		}
	}
	writeJSON(w, http.StatusOK, out)
}

type snapshotResponse struct {
	SavedAt      time.Time `json:"savedAt"`
	LastResolved uint32    `json:"lastResolved"`
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	state := s.engine.State()
	if err := s.snapshots.Save(state); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error(), "snapshot_failed")
		return
	}
	writeJSON(w, http.StatusOK, snapshotResponse{SavedAt: state.SavedAt, LastResolved: state.LastResolved})
}

type auditResponse struct {
	Level  uint32             `json:"level"`
	Cursor ledger.AuditCursor `json:"cursor"`
	Report ledger.AuditReport `json:"report"`
	Done   bool               `json:"done"`
}

// handleAudit runs one bounded audit step. Callers resume by echoing the
// returned cursor fields as query parameters.
func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	level, err := queryUint32(r, "level")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "bad_request")
		return
	}
	q := r.URL.Query()
	denom, err := queryUintOptional(q, "denominator", 8)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "bad_request")
		return
	}
	sub, err := queryUintOptional(q, "subbucket", 8)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "bad_request")
		return
	}
	offset, err := queryUintOptional(q, "offset", 32)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "bad_request")
		return
	}
	sum, err := queryUintOptional(q, "partialSum", 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "bad_request")
		return
	}
	batch, err := queryUintOptional(q, "batch", 31)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "bad_request")
		return
	}
	cur := ledger.AuditCursor{
		Denominator: uint8(denom),
		Subbucket:   uint8(sub),
		Offset:      uint32(offset),
		PartialSum:  sum,
	}
	next, report := s.engine.AuditStep(level, cur, int(batch))
	writeJSON(w, http.StatusOK, auditResponse{Level: level, Cursor: next, Report: report, Done: next.Done()})
}

type receiptsResponse struct {
	Level    uint32          `json:"level"`
	Receipts []store.Receipt `json:"receipts"`
}

func (s *Server) handleReceipts(w http.ResponseWriter, r *http.Request) {
	if !s.receipts.Enabled() {
		writeError(w, http.StatusServiceUnavailable, "receipt persistence disabled", "receipts_disabled")
		return
	}
	level, err := queryUint32(r, "level")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "bad_request")
		return
	}
	receipts, err := s.receipts.ByLevel(r.Context(), level)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error(), "database_error")
		return
	}
	if receipts == nil {
		receipts = []store.Receipt{}
	}
	writeJSON(w, http.StatusOK, receiptsResponse{Level: level, Receipts: receipts})
}

// queryUintOptional parses an optional unsigned query parameter, returning
// zero when absent.
func queryUintOptional(q url.Values, key string, bits int) (uint64, error) {
	v := q.Get(key)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.ParseUint(v, 10, bits)
	if err != nil {
		return 0, fmt.Errorf("query parameter %s must be an unsigned integer", key)
	}
	return n, nil
}
