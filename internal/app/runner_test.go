package app

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestOnSweep_BroadcastsStandingsWithTimestamp(t *testing.T) {
	b := NewBroadcaster(nil)
	r := &Runner{broadcaster: b}

	srv := httptest.NewServer(httpHandler(b))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()

	waitForClients(t, b, 1)

	before := time.Now().Add(-time.Second)
	r.onSweep([]*KOL{{Name: "A", Full: "wallet-a", Rank: 1}}, TierTop, PeriodDaily)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, payload, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}

	var env struct {
		Type string `json:"type"`
		Data struct {
			Kols      []*KOL `json:"kols"`
			Tier      string `json:"tier"`
			Period    string `json:"period"`
			Timestamp string `json:"timestamp"`
		} `json:"data"`
	}
	if err := json.Unmarshal(payload, &env); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}

	if env.Type != "kols_update" {
		t.Errorf("expected type kols_update, got %s", env.Type)
	}
	if env.Data.Tier != string(TierTop) || env.Data.Period != PeriodDaily {
		t.Errorf("unexpected tier/period: %s/%s", env.Data.Tier, env.Data.Period)
	}
	if len(env.Data.Kols) != 1 || env.Data.Kols[0].Full != "wallet-a" {
		t.Errorf("unexpected kols payload: %+v", env.Data.Kols)
	}

	ts, err := time.Parse(time.RFC3339, env.Data.Timestamp)
	if err != nil {
		t.Fatalf("timestamp not RFC3339: %q", env.Data.Timestamp)
	}
	if ts.Before(before) || ts.After(time.Now().Add(time.Second)) {
		t.Errorf("timestamp %v outside sweep window", ts)
	}
}
