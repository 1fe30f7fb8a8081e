package server

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/PurgeGame/purge-settlement-engine/config"
	"github.com/PurgeGame/purge-settlement-engine/entropy"
	"github.com/PurgeGame/purge-settlement-engine/identity"
	"github.com/PurgeGame/purge-settlement-engine/leaderboard"
	"github.com/PurgeGame/purge-settlement-engine/logger"
)

const (
	testActivityID       = "activity-svc"
	testActivitySecret   = "activity-secret"
	testSettlementID     = "settlement-svc"
	testSettlementSecret = "settlement-secret"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Port:               0,
		DataDir:            t.TempDir(),
		BoardSize:          4,
		SnapshotInterval:   time.Minute,
		ActivityCallerID:   testActivityID,
		ActivitySecret:     testActivitySecret,
		SettlementCallerID: testSettlementID,
		SettlementSecret:   testSettlementSecret,
	}
}

func newTestServer(t *testing.T, cfg *config.Config) *httptest.Server {
	t.Helper()
	srv, err := New(cfg, logger.NewTest())
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts
}

func signedPost(t *testing.T, ts *httptest.Server, path, callerID, secret string, payload any) *http.Response {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodPost, ts.URL+path, bytes.NewReader(body))
	require.NoError(t, err)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(headerCallerID, callerID)
	req.Header.Set(headerSignature, hex.EncodeToString(mac.Sum(nil)))
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func decode(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func testIdentity(b byte) string {
	var raw [32]byte
	raw[0] = b
	return identity.FromBytes(raw).String()
}

// seedWhere searches counter-derived nonzero seeds until cond holds.
func seedWhere(t *testing.T, cond func(*entropy.Stream) bool) entropy.Word {
	t.Helper()
	for i := uint32(0); i < 1_000_000; i++ {
		var w entropy.Word
		binary.BigEndian.PutUint32(w[:4], i)
		w[31] = 1
		if cond(entropy.NewStream(w)) {
			return w
		}
	}
	t.Fatal("no seed satisfied the condition")
	return entropy.Word{}
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, testConfig(t))
	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out map[string]string
	decode(t, resp, &out)
	require.Equal(t, "ok", out["status"])
	require.Equal(t, "settlement-engine", out["service"])
}

func TestAuth_Rejections(t *testing.T) {
	ts := newTestServer(t, testConfig(t))
	body := map[string]any{"level": 1, "identity": testIdentity(1), "denominator": 2, "amount": 100}

	t.Run("wrong secret", func(t *testing.T) {
		resp := signedPost(t, ts, "/v1/activity/contribution", testActivityID, "wrong", body)
		defer resp.Body.Close()
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})
	t.Run("unknown caller", func(t *testing.T) {
		resp := signedPost(t, ts, "/v1/activity/contribution", "intruder", testActivitySecret, body)
		defer resp.Body.Close()
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})
	t.Run("activity caller cannot resolve", func(t *testing.T) {
		resp := signedPost(t, ts, "/v1/level/resolve", testActivityID, testActivitySecret,
			map[string]any{"level": 1, "seed": entropy.Word{31: 1}.Hex(), "pool": 100})
		defer resp.Body.Close()
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})
}

func TestContribution_RecordsAndClamps(t *testing.T) {
	ts := newTestServer(t, testConfig(t))
	alice := testIdentity(1)

	resp := signedPost(t, ts, "/v1/activity/contribution", testActivityID, testActivitySecret,
		map[string]any{"level": 1, "identity": alice, "denominator": 0, "amount": 100})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out contributionResponse
	decode(t, resp, &out)
	require.Equal(t, uint8(2), out.Denominator)
	require.Equal(t, uint8(0), out.Subbucket)
	require.Equal(t, uint64(100), out.Burn)

	resp = signedPost(t, ts, "/v1/activity/contribution", testActivityID, testActivitySecret,
		map[string]any{"level": 1, "identity": alice, "denominator": 9, "amount": 50})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decode(t, resp, &out)
	require.Equal(t, uint8(2), out.Denominator)
	require.Equal(t, uint64(150), out.Burn)
}

func TestContribution_RejectsBadIdentity(t *testing.T) {
	ts := newTestServer(t, testConfig(t))
	resp := signedPost(t, ts, "/v1/activity/contribution", testActivityID, testActivitySecret,
		map[string]any{"level": 1, "identity": "not-an-id-0OIl", "denominator": 2, "amount": 100})
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestWager_ReportsRank(t *testing.T) {
	ts := newTestServer(t, testConfig(t))
	resp := signedPost(t, ts, "/v1/activity/wager", testActivityID, testActivitySecret,
		map[string]any{"level": 1, "identity": testIdentity(1), "amount": 2 * uint64(leaderboard.WagerUnit)})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out struct {
		Score   uint32 `json:"score"`
		OnBoard bool   `json:"onBoard"`
		Rank    int    `json:"rank"`
	}
	decode(t, resp, &out)
	require.Equal(t, uint32(2), out.Score)
	require.True(t, out.OnBoard)
	require.Equal(t, 0, out.Rank)
}

func TestResolveAndClaim_EndToEnd(t *testing.T) {
	ts := newTestServer(t, testConfig(t))
	alice, bob := testIdentity(1), testIdentity(2)

	for _, c := range []struct {
		id     string
		amount uint64
	}{{alice, 400}, {bob, 100}} {
		resp := signedPost(t, ts, "/v1/activity/contribution", testActivityID, testActivitySecret,
			map[string]any{"level": 1, "identity": c.id, "denominator": 2, "amount": c.amount})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		resp.Body.Close()
	}

	seed := seedWhere(t, func(s *entropy.Stream) bool { return s.At(2)%2 == 0 })
	resp := signedPost(t, ts, "/v1/level/resolve", testSettlementID, testSettlementSecret,
		map[string]any{"level": 1, "seed": seed.Hex(), "pool": 1000})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var res resolveResponse
	decode(t, resp, &res)
	require.False(t, res.Refunded)
	require.Equal(t, uint64(400), res.TotalBurn)

	resp, err := http.Get(ts.URL + "/v1/round?level=1")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp, err = http.Get(ts.URL + "/v1/claimable?level=1&identity=" + alice)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var preview claimableResponse
	decode(t, resp, &preview)
	require.Equal(t, uint64(1000), preview.Amount)

	resp = signedPost(t, ts, "/v1/claim", "", "", map[string]any{"level": 1, "identity": alice})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var claim claimResponse
	decode(t, resp, &claim)
	require.Equal(t, uint64(1000), claim.Amount)
	require.False(t, claim.PayoutSettled)

	resp = signedPost(t, ts, "/v1/claim", "", "", map[string]any{"level": 1, "identity": alice})
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	var apiErr APIError
	decode(t, resp, &apiErr)
	require.Equal(t, "already_claimed", apiErr.Code)

	resp = signedPost(t, ts, "/v1/claim", "", "", map[string]any{"level": 1, "identity": bob})
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	decode(t, resp, &apiErr)
	require.Equal(t, "not_a_winner", apiErr.Code)
}

func TestResolve_RefundPath(t *testing.T) {
	ts := newTestServer(t, testConfig(t))
	resp := signedPost(t, ts, "/v1/activity/contribution", testActivityID, testActivitySecret,
		map[string]any{"level": 1, "identity": testIdentity(3), "denominator": 2, "amount": 50})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	seed := seedWhere(t, func(s *entropy.Stream) bool { return s.At(2)%2 == 1 })
	resp = signedPost(t, ts, "/v1/level/resolve", testSettlementID, testSettlementSecret,
		map[string]any{"level": 1, "seed": seed.Hex(), "pool": 700})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var res resolveResponse
	decode(t, resp, &res)
	require.True(t, res.Refunded)
	require.Equal(t, uint64(700), res.RefundAmount)
	require.False(t, res.RefundSettled)

	resp, err := http.Get(ts.URL + "/v1/round?level=1")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestResolve_RejectsZeroSeed(t *testing.T) {
	ts := newTestServer(t, testConfig(t))
	resp := signedPost(t, ts, "/v1/level/resolve", testSettlementID, testSettlementSecret,
		map[string]any{"level": 1, "seed": entropy.Word{}.Hex(), "pool": 100})
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAudit_WalksLedger(t *testing.T) {
	ts := newTestServer(t, testConfig(t))
	for i := byte(1); i <= 3; i++ {
		resp := signedPost(t, ts, "/v1/activity/contribution", testActivityID, testActivitySecret,
			map[string]any{"level": 1, "identity": testIdentity(i), "denominator": 4, "amount": 10})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		resp.Body.Close()
	}
	resp, err := http.Get(ts.URL + "/v1/audit?level=1&batch=100")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out auditResponse
	decode(t, resp, &out)
	require.True(t, out.Done)
	require.Equal(t, 3, out.Report.Checked)
	require.Empty(t, out.Report.Mismatches)
}

func TestReceipts_DisabledWithoutDatabase(t *testing.T) {
	ts := newTestServer(t, testConfig(t))
	resp, err := http.Get(ts.URL + "/v1/receipts?level=1")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestBoard_ReturnsRows(t *testing.T) {
	ts := newTestServer(t, testConfig(t))
	resp := signedPost(t, ts, "/v1/activity/wager", testActivityID, testActivitySecret,
		map[string]any{"level": 1, "identity": testIdentity(7), "amount": 5 * uint64(leaderboard.WagerUnit)})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp, err := http.Get(ts.URL + "/v1/board?level=1")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out boardResponse
	decode(t, resp, &out)
	require.Len(t, out.Rows, 1)
	require.Equal(t, uint32(5), out.Rows[0].Score)
}

func TestSnapshot_PersistsAndRestores(t *testing.T) {
	cfg := testConfig(t)
	ts := newTestServer(t, cfg)
	alice := testIdentity(1)

	resp := signedPost(t, ts, "/v1/activity/contribution", testActivityID, testActivitySecret,
		map[string]any{"level": 1, "identity": alice, "denominator": 2, "amount": 400})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	seed := seedWhere(t, func(s *entropy.Stream) bool { return s.At(2)%2 == 0 })
	resp = signedPost(t, ts, "/v1/level/resolve", testSettlementID, testSettlementSecret,
		map[string]any{"level": 1, "seed": seed.Hex(), "pool": 900})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = signedPost(t, ts, "/v1/claim", "", "", map[string]any{"level": 1, "identity": alice})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = signedPost(t, ts, "/v1/admin/snapshot", testSettlementID, testSettlementSecret, map[string]any{})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
	_, err := os.Stat(filepath.Join(cfg.DataDir, "state.json"))
	require.NoError(t, err)

	// A second server booting from the same data directory restores the
	// claim flags.
	ts2 := newTestServer(t, cfg)
	resp = signedPost(t, ts2, "/v1/claim", "", "", map[string]any{"level": 1, "identity": alice})
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	var apiErr APIError
	decode(t, resp, &apiErr)
	require.Equal(t, "already_claimed", apiErr.Code)
}
