// Package trophy calls the trophy bank service that mints side-award
// artifacts and settles their bonuses.
package trophy

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

	"github.com/PurgeGame/purge-settlement-engine/engine"
	"github.com/PurgeGame/purge-settlement-engine/entropy"
	"github.com/PurgeGame/purge-settlement-engine/identity"
)

var _ engine.TrophyBank = (*Client)(nil)

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

// call posts a signed JSON payload and returns the response body.
func (c *Client) call(path string, payload map[string]any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequest(http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Signature", c.sign(body))
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		var data struct {
			Error string `json:"error"`
		}
		_ = json.Unmarshal(respBody, &data)
		return nil, fmt.Errorf("trophy bank: %s", data.Error)
	}
	return respBody, nil
}

func (c *Client) sign(body []byte) string {
	m := hmac.New(sha256.New, []byte(c.secret))
	m.Write(body)
	return hex.EncodeToString(m.Sum(nil))
}

// Award mints an artifact and settles its bonus from the bank's treasury.
func (c *Client) Award(recipient identity.ID, level uint32, kind engine.TrophyKind, selector entropy.Word, bonus uint64) error {
	if !kind.Valid() {
		return engine.ErrInvalidKind
	}
	_, err := c.call("/v1/trophies/award", map[string]any{
		"recipient": recipient,
		"level":     level,
		"kind":      kind.String(),
		"selector":  selector.Hex(),
		"bonus":     bonus,
	})
	return err
}

// BurnPlaceholder consumes a level's artifact slot with no recipient.
func (c *Client) BurnPlaceholder(level uint32, kind engine.TrophyKind) error {
	if !kind.Valid() {
		return engine.ErrInvalidKind
	}
	_, err := c.call("/v1/trophies/burn-placeholder", map[string]any{
		"level": level,
		"kind":  kind.String(),
	})
	return err
}

// SampleStaked asks the bank to pick one staked artifact holder.
func (c *Client) SampleStaked(word entropy.Word) (identity.ID, bool, error) {
	body, err := c.call("/v1/trophies/sample-staked", map[string]any{
		"word": word.Hex(),
	})
	if err != nil {
		return identity.None, false, err
	}
	var data struct {
		Identity identity.ID `json:"identity"`
	}
	if err := json.Unmarshal(body, &data); err != nil {
		return identity.None, false, err
	}
	if data.Identity == identity.None {
		return identity.None, false, nil
	}
	return data.Identity, true, nil
}

// RewardToken credits a bonus to an outstanding token's stored value.
func (c *Client) RewardToken(tokenID, amount uint64, level uint32) error {
	_, err := c.call("/v1/trophies/reward", map[string]any{
		"tokenId": tokenID,
		"amount":  amount,
		"level":   level,
	})
	return err
}
