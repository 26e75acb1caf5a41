package helius

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"koltracker/config"

	"go.uber.org/zap"
)

func newTestClient(serverURL string) *Client {
	return &Client{
		logger:     zap.NewNop(),
		httpClient: &http.Client{Timeout: 5 * time.Second},
		apiURL:     serverURL,
		apiKey:     "test-key",
		enabled:    true,
	}
}

func TestNewClient_Disabled(t *testing.T) {
	cfg := config.Defaults()
	cfg.Helius.APIKey = ""

	client := NewClient(nil, cfg)

	if client.IsEnabled() {
		t.Error("expected client to be disabled without api key")
	}
	if got := client.FetchRecentSwaps(context.Background(), "wallet", 30); got != nil {
		t.Errorf("expected nil from disabled client, got %v", got)
	}
}

func TestFetchRecentSwaps(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v0/addresses/wallet-a/transactions" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("api-key") != "test-key" {
			t.Error("missing api key")
		}
		if q.Get("type") != "SWAP" {
			t.Errorf("expected type SWAP, got %s", q.Get("type"))
		}
		if q.Get("limit") != "30" {
			t.Errorf("expected limit 30, got %s", q.Get("limit"))
		}

		json.NewEncoder(w).Encode([]EnhancedTransaction{
			{Signature: "sig1", Timestamp: 1700000000, Type: "SWAP", FeePayer: "wallet-a"},
			{Signature: "sig2", Timestamp: 1700000100, Type: "SWAP", FeePayer: "wallet-a"},
		})
	}))
	defer server.Close()

	client := newTestClient(server.URL)

	txs := client.FetchRecentSwaps(context.Background(), "wallet-a", 30)
	if len(txs) != 2 {
		t.Fatalf("expected 2 transactions, got %d", len(txs))
	}
	if txs[0].Signature != "sig1" {
		t.Errorf("unexpected signature: %s", txs[0].Signature)
	}
}

func TestFetchRecentSwaps_FailsSoft(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			"server error",
			func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
			},
		},
		{
			"rate limited",
			func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusTooManyRequests)
			},
		},
		{
			"malformed body",
			func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{not json`))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(tt.handler)
			defer server.Close()

			client := newTestClient(server.URL)

			txs := client.FetchRecentSwaps(context.Background(), "wallet-a", 30)
			if txs != nil {
				t.Errorf("expected nil result, got %v", txs)
			}
		})
	}
}

func TestFetchRecentSwaps_TransportError(t *testing.T) {
	client := newTestClient("http://127.0.0.1:1")

	txs := client.FetchRecentSwaps(context.Background(), "wallet-a", 30)
	if txs != nil {
		t.Errorf("expected nil result on transport error, got %v", txs)
	}
}

func TestGetParsedTransaction(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if r.URL.Path != "/v0/transactions" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}

		var body struct {
			Transactions []string `json:"transactions"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("failed to decode body: %v", err)
		}
		if len(body.Transactions) != 1 || body.Transactions[0] != "sig-abc" {
			t.Errorf("unexpected body: %+v", body)
		}

		json.NewEncoder(w).Encode([]EnhancedTransaction{
			{
				Signature: "sig-abc",
				Type:      "SWAP",
				FeePayer:  "wallet-a",
				TokenTransfers: []TokenTransfer{
					{Mint: "mint1", ToUserAccount: "wallet-a", TokenAmount: 1000},
				},
			},
		})
	}))
	defer server.Close()

	client := newTestClient(server.URL)

	tx, err := client.GetParsedTransaction(context.Background(), "sig-abc")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tx == nil || tx.Signature != "sig-abc" {
		t.Errorf("unexpected transaction: %+v", tx)
	}
}

func TestGetParsedTransaction_Empty(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)

	tx, err := client.GetParsedTransaction(context.Background(), "unknown-sig")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tx != nil {
		t.Errorf("expected nil transaction, got %+v", tx)
	}
}

func TestGetParsedTransaction_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error": "invalid signature"}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)

	_, err := client.GetParsedTransaction(context.Background(), "bad-sig")
	if err == nil {
		t.Error("expected error on API error")
	}
}

func TestShortAddr(t *testing.T) {
	if got := shortAddr("DYw8jCTfwHNRJhhmFcbXvVDTqWMEVFBX6ZKUmG5CNSKK"); got != "DYw8jCTf" {
		t.Errorf("unexpected short address: %s", got)
	}
	if got := shortAddr("abc"); got != "abc" {
		t.Errorf("expected short input unchanged, got %s", got)
	}
}
