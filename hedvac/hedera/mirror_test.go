package hedera

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestValidAccountID(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"0.0.1234", true},
		{"0.0.1", true},
		{"0.1.1234", false},
		{"0.0.", false},
		{"1234", false},
		{"0.0.12a4", false},
		{"", false},
		{" 0.0.1234", false},
	}

	for _, tt := range tests {
		if got := ValidAccountID(tt.in); got != tt.want {
			t.Errorf("ValidAccountID(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestTransfersTo(t *testing.T) {
	var gotQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"transactions": [
				{
					"transaction_id": "0.0.50-1700000000-000000001",
					"consensus_timestamp": "1700000001.000000001",
					"name": "CRYPTOTRANSFER",
					"result": "SUCCESS",
					"memo_base64": "MTIzNDU2Nzg5MA==",
					"transfers": [
						{"account": "0.0.50", "amount": -100000000},
						{"account": "0.0.99", "amount": 100000000}
					]
				}
			]
		}`))
	}))
	defer server.Close()

	client, err := NewMirrorClient(MirrorConfig{BaseURL: server.URL})
	if err != nil {
		t.Fatal(err)
	}

	txs, err := client.TransfersTo(context.Background(), "0.0.99", "1700000000.000000000")
	if err != nil {
		t.Fatalf("TransfersTo: %v", err)
	}

	if len(txs) != 1 {
		t.Fatalf("got %d transactions, want 1", len(txs))
	}
	tx := txs[0]
	if tx.ConsensusTimestamp != "1700000001.000000001" {
		t.Errorf("consensus timestamp = %q", tx.ConsensusTimestamp)
	}
	if tx.MemoBase64 != "MTIzNDU2Nzg5MA==" {
		t.Errorf("memo = %q", tx.MemoBase64)
	}
	if len(tx.Transfers) != 2 || tx.Transfers[1].Amount != 100000000 {
		t.Errorf("unexpected transfers: %+v", tx.Transfers)
	}

	req, _ := http.NewRequest(http.MethodGet, "http://x/?"+gotQuery, nil)
	q := req.URL.Query()
	if q.Get("account.id") != "0.0.99" {
		t.Errorf("account.id = %q", q.Get("account.id"))
	}
	if q.Get("order") != "asc" {
		t.Errorf("order = %q", q.Get("order"))
	}
	if q.Get("timestamp") != "gt:1700000000.000000000" {
		t.Errorf("timestamp = %q", q.Get("timestamp"))
	}
}

func TestTransfersToServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client, err := NewMirrorClient(MirrorConfig{BaseURL: server.URL})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := client.TransfersTo(context.Background(), "0.0.99", ""); err == nil {
		t.Fatal("expected error on non-200 response")
	}
}

func TestTokenInfoCached(t *testing.T) {
	hits := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"token_id": "0.0.7777", "name": "Example Token", "symbol": "EXT", "decimals": "6"}`))
	}))
	defer server.Close()

	client, err := NewMirrorClient(MirrorConfig{BaseURL: server.URL})
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 3; i++ {
		info, err := client.TokenInfo(context.Background(), "0.0.7777")
		if err != nil {
			t.Fatalf("TokenInfo: %v", err)
		}
		if info.Symbol != "EXT" || info.Decimals != 6 {
			t.Errorf("got %+v", info)
		}
	}

	if hits != 1 {
		t.Errorf("server hit %d times, want 1 (cached)", hits)
	}
}
