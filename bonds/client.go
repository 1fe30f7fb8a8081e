// Package bonds calls the bond registry service that tracks outstanding
// bond tokens for the scatter slice.
package bonds

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

var _ engine.BondRegistry = (*Client)(nil)

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

// SampleOwner asks the registry to pick one live bond from an entropy word.
// ok is false when no bonds are outstanding.
func (c *Client) SampleOwner(word entropy.Word) (uint64, identity.ID, bool, error) {
	body, err := json.Marshal(map[string]any{"word": word.Hex()})
	if err != nil {
		return 0, identity.None, false, err
	}
	req, err := http.NewRequest(http.MethodPost, c.baseURL+"/v1/bonds/sample", bytes.NewReader(body))
	if err != nil {
		return 0, identity.None, false, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Signature", c.sign(body))
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, identity.None, false, err
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		var data struct {
			Error string `json:"error"`
		}
		_ = json.Unmarshal(respBody, &data)
		return 0, identity.None, false, fmt.Errorf("bond registry: %s", data.Error)
	}
	var data struct {
		TokenID uint64      `json:"tokenId"`
		Owner   identity.ID `json:"owner"`
	}
	if err := json.Unmarshal(respBody, &data); err != nil {
		return 0, identity.None, false, err
	}
	if data.Owner == identity.None {
		return 0, identity.None, false, nil
	}
	return data.TokenID, data.Owner, true, nil
}

func (c *Client) sign(body []byte) string {
	m := hmac.New(sha256.New, []byte(c.secret))
	m.Write(body)
	return hex.EncodeToString(m.Sum(nil))
}
