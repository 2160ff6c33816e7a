package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/chopdirect/settlement/pkg/config"
	"github.com/chopdirect/settlement/pkg/logger"
)

func testClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	logg := logger.New(logger.Options{ServiceName: "test"})
	c, err := NewClient(context.Background(), config.GatewayConfig{
		BaseURL:       baseURL,
		SecretKey:     "sk_test",
		WebhookSecret: "whsec",
		MaxRetries:    2,
	}, logg)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return c
}

func TestInitiateChargeRetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"success":true,"gateway_ref":"gw-1"}`))
	}))
	defer srv.Close()

	c := testClient(t, srv.URL)
	resp, err := c.InitiateCharge(context.Background(), ChargeRequest{
		TxRef:    "tx-1",
		Amount:   decimal.NewFromInt(5000),
		Currency: "NGN",
		Phone:    "0700000000",
	})
	if err != nil {
		t.Fatalf("initiate: %v", err)
	}
	if !resp.Success || resp.GatewayRef != "gw-1" {
		t.Fatalf("unexpected response %+v", resp)
	}
	if atomic.LoadInt32(&calls) != 2 {
		t.Fatalf("expected one retry, got %d calls", calls)
	}
}

func TestInitiateChargeDoesNotRetryRejections(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	c := testClient(t, srv.URL)
	if _, err := c.InitiateCharge(context.Background(), ChargeRequest{TxRef: "tx-2"}); err == nil {
		t.Fatal("expected rejection error")
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("rejections must not retry, got %d calls", calls)
	}
}

func TestVerifySignature(t *testing.T) {
	c := testClient(t, "http://unused")
	body := []byte(`{"tx_ref":"tx-1","status":"successful"}`)

	mac := hmac.New(sha256.New, []byte("whsec"))
	mac.Write(body)
	good := hex.EncodeToString(mac.Sum(nil))

	if !c.VerifySignature(body, good) {
		t.Fatal("expected valid signature to pass")
	}
	if c.VerifySignature(body, "deadbeef") {
		t.Fatal("expected forged signature to fail")
	}
	if c.VerifySignature(body, "") {
		t.Fatal("empty signature must fail")
	}
}
