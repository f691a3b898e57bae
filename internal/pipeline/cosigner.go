package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/hxuan190/ledger-orchestrator/internal/common"
	"github.com/hxuan190/ledger-orchestrator/internal/domain"
	"github.com/hxuan190/ledger-orchestrator/internal/metrics"
)

// CoSigner returns the base64 transaction carrying the backend's signature.
type CoSigner interface {
	CoSign(ctx context.Context, route string, req CoSignRequest) (string, error)
}

type CoSignRequest struct {
	// Tx is the base64 unsigned transaction.
	Tx           string              `json:"tx"`
	Expect       *domain.Expectation `json:"expect"`
	PurchaseLink string              `json:"purchase_link,omitempty"`
}

type coSignResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    struct {
		Signature string `json:"signature"`
	} `json:"data"`
}

// maxResponseBytes bounds what is read from the backend.
const maxResponseBytes = 1 << 20

type HTTPCoSigner struct {
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
}

func NewHTTPCoSigner(baseURL string, timeout time.Duration, rps int) *HTTPCoSigner {
	if rps <= 0 {
		rps = 1
	}
	return &HTTPCoSigner{
		baseURL: baseURL,
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
				DialContext: (&net.Dialer{
					Timeout:   5 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				MaxIdleConnsPerHost: 8,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 5 * time.Second,
			},
		},
		limiter: rate.NewLimiter(rate.Limit(rps), rps),
	}
}

// CoSign posts req to route. Any answer other than a 2xx response with code
// 200 and a signature is a rejection; the backend's message is logged, not
// returned.
func (c *HTTPCoSigner) CoSign(ctx context.Context, route string, req CoSignRequest) (string, error) {
	if c.baseURL == "" {
		return "", fmt.Errorf("%w: no co-signer configured", common.ErrRejectedByCoSigner)
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}

	body, err := sonic.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("encode co-sign request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+route, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.client.Do(httpReq)
	if err != nil {
		metrics.ObserveCoSign(route, "error", time.Since(start))
		return "", fmt.Errorf("co-sign request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		metrics.ObserveCoSign(route, "error", time.Since(start))
		return "", fmt.Errorf("read co-sign response: %w", err)
	}

	var out coSignResponse
	decodeErr := sonic.Unmarshal(raw, &out)
	if resp.StatusCode/100 != 2 || decodeErr != nil || out.Code != http.StatusOK || out.Data.Signature == "" {
		metrics.ObserveCoSign(route, "rejected", time.Since(start))
		log.Warn().
			Str("route", route).
			Int("status", resp.StatusCode).
			Int("code", out.Code).
			Str("message", out.Message).
			Msg("[CoSigner] request rejected")
		return "", fmt.Errorf("%w: status %d", common.ErrRejectedByCoSigner, resp.StatusCode)
	}

	metrics.ObserveCoSign(route, "signed", time.Since(start))
	return out.Data.Signature, nil
}
