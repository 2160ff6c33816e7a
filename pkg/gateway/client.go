package gateway

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
	"github.com/shopspring/decimal"

	"github.com/chopdirect/settlement/pkg/config"
	pkgerrors "github.com/chopdirect/settlement/pkg/errors"
	"github.com/chopdirect/settlement/pkg/logger"
)

var (
	errBaseURLRequired = errors.New("gateway base url is required")
	errSecretRequired  = errors.New("gateway secret key is required")
	errLoggerRequired  = errors.New("gateway logger is required")

	// errGatewayRejected marks a definitive gateway response; retrying
	// would re-submit a charge the gateway already refused.
	errGatewayRejected = errors.New("gateway rejected request")
)

// ChargeRequest initiates a mobile-money collection for an order attempt.
type ChargeRequest struct {
	TxRef         string          `json:"tx_ref"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	Phone         string          `json:"phone_number"`
	Provider      string          `json:"network"`
	CommissionBps int64           `json:"commission_bps"`
}

// ChargeResponse is the gateway's synchronous dispatch acknowledgement.
type ChargeResponse struct {
	Success    bool   `json:"success"`
	GatewayRef string `json:"gateway_ref"`
	Message    string `json:"message"`
}

// VerifyResponse is the gateway's view of a transaction when re-checked.
type VerifyResponse struct {
	Status string          `json:"status"`
	Amount decimal.Decimal `json:"amount"`
}

// Client calls the external payment gateway. Connectivity failures are
// retried with backoff; gateway-declared failures are not.
type Client struct {
	httpClient    *http.Client
	baseURL       string
	secretKey     string
	webhookSecret string
	maxRetries    uint64
	logger        *logger.Logger
}

// NewClient validates the credentials and builds the gateway wrapper.
func NewClient(ctx context.Context, cfg config.GatewayConfig, logg *logger.Logger) (*Client, error) {
	if logg == nil {
		return nil, errLoggerRequired
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errBaseURLRequired
	}
	secret := strings.TrimSpace(cfg.SecretKey)
	if secret == "" {
		return nil, errSecretRequired
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	c := &Client{
		httpClient:    &http.Client{Timeout: timeout},
		baseURL:       baseURL,
		secretKey:     secret,
		webhookSecret: strings.TrimSpace(cfg.WebhookSecret),
		maxRetries:    cfg.MaxRetries,
		logger:        logg,
	}
	logg.Info(ctx, "payment gateway client initialized")
	return c, nil
}

// InitiateCharge dispatches a collection request. Only transport-level
// errors count as retryable; an HTTP response from the gateway, success
// or failure, is final for this attempt.
func (c *Client) InitiateCharge(ctx context.Context, req ChargeRequest) (*ChargeResponse, error) {
	var out ChargeResponse
	backoff := retry.WithMaxRetries(c.maxRetries, retry.NewExponential(500*time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := c.post(ctx, "/charges", req, &out); err != nil {
			if errors.Is(err, errGatewayRejected) {
				return err
			}
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "gateway charge dispatch")
	}
	return &out, nil
}

// VerifyTransaction re-checks the gateway's record for a reference.
func (c *Client) VerifyTransaction(ctx context.Context, gatewayRef string) (*VerifyResponse, error) {
	if gatewayRef == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "gateway ref required")
	}
	var out VerifyResponse
	if err := c.get(ctx, "/transactions/"+gatewayRef, &out); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "gateway verify")
	}
	return &out, nil
}

// VerifySignature checks the webhook HMAC header against the raw body.
func (c *Client) VerifySignature(body []byte, signature string) bool {
	if c.webhookSecret == "" || signature == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(c.webhookSecret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

func (c *Client) post(ctx context.Context, path string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	return c.send(req, out)
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	return c.send(req, out)
}

func (c *Client) send(req *http.Request, out any) error {
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("gateway request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read gateway response: %w", err)
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("gateway unavailable: status %d", resp.StatusCode)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("%w: status %d body %s", errGatewayRejected, resp.StatusCode, raw)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode gateway response: %w", err)
	}
	return nil
}
