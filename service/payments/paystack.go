package payments

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const DefaultPaystackURL = "https://api.paystack.co"

type Paystack struct {
	baseURL string
	secret  string
	client  *http.Client
}

func NewPaystack(baseURL, secret string) *Paystack {
	if baseURL == "" {
		baseURL = DefaultPaystackURL
	}
	return &Paystack{
		baseURL: baseURL,
		secret:  secret,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

type InitializeRequest struct {
	Email     string                 `json:"email"`
	Amount    int64                  `json:"amount"`
	Reference string                 `json:"reference"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

type InitializeResult struct {
	AuthorizationURL string `json:"authorization_url"`
	AccessCode       string `json:"access_code"`
	Reference        string `json:"reference"`
}

// Initialize starts a Paystack transaction. Amount is in the smallest
// currency unit.
func (p *Paystack) Initialize(ctx context.Context, in InitializeRequest) (*InitializeResult, error) {
	payload, err := json.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("encode paystack request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/transaction/initialize", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+p.secret)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("initialize payment: %w", err)
	}
	defer resp.Body.Close()

	var out struct {
		Status  bool             `json:"status"`
		Message string           `json:"message"`
		Data    InitializeResult `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("read paystack response: %w", err)
	}
	if resp.StatusCode != http.StatusOK || !out.Status {
		return nil, fmt.Errorf("paystack rejected payment (%d): %s", resp.StatusCode, out.Message)
	}
	return &out.Data, nil
}

// Sign returns the hex HMAC-SHA512 Paystack sends in X-Paystack-Signature.
func (p *Paystack) Sign(body []byte) string {
	mac := hmac.New(sha512.New, []byte(p.secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func (p *Paystack) Verify(body []byte, signature string) bool {
	if p.secret == "" || signature == "" {
		return false
	}
	return hmac.Equal([]byte(signature), []byte(p.Sign(body)))
}
