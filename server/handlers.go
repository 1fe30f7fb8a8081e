package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/PurgeGame/purge-settlement-engine/identity"
	"github.com/PurgeGame/purge-settlement-engine/leaderboard"
	"github.com/PurgeGame/purge-settlement-engine/metrics"
	"github.com/PurgeGame/purge-settlement-engine/store"
)

type contributionRequest struct {
	Level       uint32 `json:"level"`
	Identity    string `json:"identity"`
	Denominator uint8  `json:"denominator"`
	Amount      uint64 `json:"amount"`
}

type contributionResponse struct {
	Level       uint32 `json:"level"`
	Denominator uint8  `json:"denominator"`
	Subbucket   uint8  `json:"subbucket"`
	Burn        uint64 `json:"burn"`
}

func (s *Server) handleContribution(w http.ResponseWriter, r *http.Request) {
	var req contributionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", "bad_request")
		return
	}
	id, err := identity.Parse(req.Identity)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "bad_identity")
		return
	}
	caller := identity.ID(r.Header.Get(headerCallerID))
	entry, err := s.engine.RecordContribution(caller, req.Level, id, req.Denominator, req.Amount)
	if err != nil {
		metrics.ContributionsTotal.WithLabelValues("rejected").Inc()
		engineError(w, err)
		return
	}
	metrics.ContributionsTotal.WithLabelValues("ok").Inc()
	writeJSON(w, http.StatusOK, contributionResponse{
		Level:       entry.Level,
		Denominator: entry.Denominator,
		Subbucket:   entry.Subbucket,
		Burn:        entry.Burn,
	})
}

type wagerRequest struct {
	Level    uint32 `json:"level"`
	Identity string `json:"identity"`
	Amount   uint64 `json:"amount"`
}

func (s *Server) handleWager(w http.ResponseWriter, r *http.Request) {
	var req wagerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", "bad_request")
		return
	}
	id, err := identity.Parse(req.Identity)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "bad_identity")
		return
	}
	caller := identity.ID(r.Header.Get(headerCallerID))
	res, err := s.engine.RecordWager(caller, req.Level, id, req.Amount)
	if err != nil {
		metrics.WagersTotal.WithLabelValues("rejected").Inc()
		engineError(w, err)
		return
	}
	metrics.WagersTotal.WithLabelValues("ok").Inc()
	writeJSON(w, http.StatusOK, res)
}

type claimRequest struct {
	Level    uint32 `json:"level"`
	Identity string `json:"identity"`
}

type claimResponse struct {
	ReceiptID     string `json:"receiptId,omitempty"`
	Level         uint32 `json:"level"`
	Amount        uint64 `json:"amount"`
	Pool          uint64 `json:"pool"`
	Paid          uint64 `json:"paid"`
	PayoutSettled bool   `json:"payoutSettled"`
}

// handleClaim commits the claim first, then attempts the treasury payout.
// A failed payout leaves a pending receipt for out-of-band retry; the claim
// itself never rolls back.
func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request) {
	var req claimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", "bad_request")
		return
	}
	id, err := identity.Parse(req.Identity)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "bad_identity")
		return
	}
	res, err := s.engine.Claim(id, req.Level)
	if err != nil {
		metrics.ClaimsTotal.WithLabelValues("rejected").Inc()
		engineError(w, err)
		return
	}
	metrics.ClaimsTotal.WithLabelValues("paid").Inc()
	metrics.ClaimPayoutBase.Add(float64(res.Amount))

	status := store.ReceiptPending
	settled := false
	if s.treasury != nil {
		if err := s.treasury.Payout(id, res.Amount, req.Level); err != nil {
			s.log.Warn("treasury payout deferred", "level", req.Level, "id", id.Short(), "error", err)
		} else {
			status = store.ReceiptPaid
			settled = true
		}
	}
	receipt, err := s.receipts.Append(r.Context(), store.Receipt{
		Level:    req.Level,
		Identity: id,
		Amount:   res.Amount,
		Status:   status,
	})
	if err != nil {
		s.log.Warn("receipt append failed", "level", req.Level, "error", err)
	}
	writeJSON(w, http.StatusOK, claimResponse{
		ReceiptID:     receipt.ID,
		Level:         res.Level,
		Amount:        res.Amount,
		Pool:          res.Pool,
		Paid:          res.Paid,
		PayoutSettled: settled,
	})
}

type claimableResponse struct {
	Level    uint32      `json:"level"`
	Identity identity.ID `json:"identity"`
	Amount   uint64      `json:"amount"`
}

func (s *Server) handleClaimable(w http.ResponseWriter, r *http.Request) {
	level, err := queryUint32(r, "level")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "bad_request")
		return
	}
	id, err := identity.Parse(r.URL.Query().Get("identity"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "bad_identity")
		return
	}
	amount, err := s.engine.Claimable(id, level)
	if err != nil {
		engineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, claimableResponse{Level: level, Identity: id, Amount: amount})
}

func (s *Server) handleRound(w http.ResponseWriter, r *http.Request) {
	level, err := queryUint32(r, "level")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "bad_request")
		return
	}
	round, ok := s.engine.RoundInfo(level)
	if !ok {
		writeError(w, http.StatusNotFound, "no round for level", "round_not_found")
		return
	}
	writeJSON(w, http.StatusOK, round)
}

type boardResponse struct {
	Level uint32              `json:"level"`
	Rows  []leaderboard.Entry `json:"rows"`
}

func (s *Server) handleBoard(w http.ResponseWriter, r *http.Request) {
	level, err := queryUint32(r, "level")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "bad_request")
		return
	}
	rows := s.engine.Board(level)
	if rows == nil {
		rows = []leaderboard.Entry{}
	}
	writeJSON(w, http.StatusOK, boardResponse{Level: level, Rows: rows})
}

func queryUint32(r *http.Request, key string) (uint32, error) {
	v, err := strconv.ParseUint(r.URL.Query().Get(key), 10, 32)
	if err != nil {
		return 0, fmt.Errorf("query parameter %s must be a uint32", key)
	}
	return uint32(v), nil
}
