// Package treasury calls the treasury service that moves base units for
// claim payouts and pool refunds.
package treasury

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/PurgeGame/purge-settlement-engine/identity"
)

type Client struct {
	baseURL string
	secret  string
	http    *http.Client
}

func NewClient(baseURL, secret string) *Client {
	return &Client{
		baseURL: baseURL,
		secret:  secret,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *Client) call(path string, payload map[string]any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequest(http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Signature", c.sign(body))
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		var data struct {
			Error string `json:"error"`
		}
		_ = json.Unmarshal(respBody, &data)
		return fmt.Errorf("treasury: %s", data.Error)
	}
	return nil
}

func (c *Client) sign(body []byte) string {
	m := hmac.New(sha256.New, []byte(c.secret))
	m.Write(body)
	return hex.EncodeToString(m.Sum(nil))
}

// Payout sends a claimed share to its winner.
func (c *Client) Payout(recipient identity.ID, amount uint64, level uint32) error {
	return c.call("/v1/treasury/payout", map[string]any{
		"recipient": recipient,
		"amount":    amount,
		"level":     level,
	})
}

// Refund returns an unclaimable pool to its source.
func (c *Client) Refund(amount uint64, level uint32) error {
	return c.call("/v1/treasury/refund", map[string]any{
		"amount": amount,
		"level":  level,
	})
}
