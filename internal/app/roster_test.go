package app

import (
	"context"
	"fmt"
	"testing"
	"time"

	"koltracker/config"
)

func newTestRoster(store *MockGistStorage) *Roster {
	cfg := config.Defaults()
	if store == nil {
		return NewRoster(nil, nil, cfg)
	}
	return NewRoster(nil, store, cfg)
}

func TestRoster_LoadFallback(t *testing.T) {
	r := newTestRoster(nil)
	r.Load(context.Background())

	if r.Size() == 0 {
		t.Fatal("expected fallback roster to be non-empty")
	}

	kols := r.All()
	if kols[0].Rank != 1 {
		t.Errorf("expected first kol rank 1, got %d", kols[0].Rank)
	}
	for _, k := range kols {
		if k.Source != "fallback" {
			t.Errorf("expected fallback source, got %s", k.Source)
		}
		if k.Full == "" {
			t.Errorf("kol %s has no full address", k.Name)
		}
		if k.Wallet == k.Full {
			t.Errorf("expected short display form for %s", k.Name)
		}
	}
}

func TestRoster_LoadFromStore(t *testing.T) {
	mock := NewMockGistStorage()
	ctx := context.Background()

	saved := []*KOL{
		{ID: 1, Rank: 1, Name: "Stored", Full: "wallet-stored", Chain: "SOL"},
	}
	if err := mock.SaveJSON(ctx, "kols.json", saved); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	r := newTestRoster(mock)
	r.Load(ctx)

	if r.Size() != 1 {
		t.Fatalf("expected 1 stored kol, got %d", r.Size())
	}
	kol, ok := r.Get("wallet-stored")
	if !ok || kol.Name != "Stored" {
		t.Errorf("unexpected kol: %+v", kol)
	}
	if kol.Metrics == nil {
		t.Error("expected metrics map initialized on load")
	}
}

func TestRoster_LoadStoreErrorFallsBack(t *testing.T) {
	mock := NewMockGistStorage()
	mock.SetLoadErr(fmt.Errorf("gist down"))

	r := newTestRoster(mock)
	r.Load(context.Background())

	if r.Size() == 0 {
		t.Error("expected fallback roster after load error")
	}
}

func TestRoster_AddAndRemove(t *testing.T) {
	r := newTestRoster(nil)
	r.Load(context.Background())
	before := r.Size()

	kol, err := r.Add("New KOL", "@new", "wallet-new", "GRP")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if kol.Source != "manual" {
		t.Errorf("expected manual source, got %s", kol.Source)
	}
	if r.Size() != before+1 {
		t.Errorf("expected size %d, got %d", before+1, r.Size())
	}
	if !r.IsDirty() {
		t.Error("expected roster dirty after add")
	}

	if _, err := r.Add("Dup", "@dup", "wallet-new", ""); err == nil {
		t.Error("expected duplicate wallet to be rejected")
	}

	if !r.Remove("wallet-new") {
		t.Error("expected remove to succeed")
	}
	if r.Remove("wallet-new") {
		t.Error("expected second remove to fail")
	}
	if r.Size() != before {
		t.Errorf("expected size back to %d, got %d", before, r.Size())
	}
}

func TestRoster_AddRequiresWallet(t *testing.T) {
	r := newTestRoster(nil)

	if _, err := r.Add("No Wallet", "@nw", "", ""); err == nil {
		t.Error("expected error for empty wallet")
	}
}

func TestRoster_SetAlert(t *testing.T) {
	r := newTestRoster(nil)
	r.Load(context.Background())

	wallet := r.All()[0].Full

	if !r.SetAlert(wallet, true) {
		t.Fatal("expected alert toggle to succeed")
	}
	kol, _ := r.Get(wallet)
	if !kol.AlertOn {
		t.Error("expected alert on")
	}

	if r.SetAlert("unknown-wallet", true) {
		t.Error("expected toggle on unknown wallet to fail")
	}
}

func TestRoster_UpdateMetricsMirrorsLegacyFields(t *testing.T) {
	r := newTestRoster(nil)
	r.Load(context.Background())

	wallet := r.All()[0].Full
	now := time.Now()

	m := PeriodMetrics{
		Pnl: 123.45, WinRate: 75, Wins: 3, Losses: 1,
		Trades: 8, Volume: 2000, TokensTraded: 4, UpdatedAt: now,
	}
	if !r.UpdateMetrics(wallet, PeriodWeekly, m) {
		t.Fatal("expected update to succeed")
	}

	kol, _ := r.Get(wallet)
	if kol.Pnl != 123.45 || kol.WinRate != 75 || kol.Trades != 8 || kol.Vol24 != 2000 {
		t.Errorf("legacy fields not mirrored: %+v", kol)
	}
	if kol.PnlPeriod != PeriodWeekly {
		t.Errorf("expected period weekly, got %s", kol.PnlPeriod)
	}
	if got := kol.Metrics[PeriodWeekly]; got.Pnl != 123.45 {
		t.Errorf("period metrics not stored: %+v", got)
	}
}

func TestRoster_SetRanksResorts(t *testing.T) {
	r := newTestRoster(nil)
	r.Load(context.Background())

	kols := r.All()
	last := kols[len(kols)-1]

	ranks := make(map[string]int, len(kols))
	for _, k := range kols {
		ranks[k.Full] = k.Rank
	}
	// Swap first and last
	ranks[kols[0].Full], ranks[last.Full] = last.Rank, 1

	r.SetRanks(ranks)

	resorted := r.All()
	if resorted[0].Full != last.Full {
		t.Errorf("expected %s promoted to rank 1, got %s", last.Name, resorted[0].Name)
	}
}

func TestRoster_SaveAndDirtyFlag(t *testing.T) {
	mock := NewMockGistStorage()
	ctx := context.Background()

	r := newTestRoster(mock)
	r.Load(ctx)

	r.Add("New", "@new", "wallet-new", "")
	if !r.IsDirty() {
		t.Fatal("expected dirty after add")
	}

	if err := r.Save(ctx); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if r.IsDirty() {
		t.Error("expected clean after save")
	}

	var saved []*KOL
	if err := mock.LoadJSON(ctx, "kols.json", &saved); err != nil {
		t.Fatalf("load saved roster: %v", err)
	}
	if len(saved) != r.Size() {
		t.Errorf("expected %d kols persisted, got %d", r.Size(), len(saved))
	}
}

func TestRoster_SaveFailureKeepsDirty(t *testing.T) {
	mock := NewMockGistStorage()
	ctx := context.Background()

	r := newTestRoster(mock)
	r.Load(ctx)
	r.Add("New", "@new", "wallet-new", "")

	mock.SetSaveErr(fmt.Errorf("gist down"))
	if err := r.Save(ctx); err == nil {
		t.Error("expected save error")
	}
	if !r.IsDirty() {
		t.Error("expected roster to stay dirty after failed save")
	}
}

func TestRoster_GetReturnsCopy(t *testing.T) {
	r := newTestRoster(nil)
	r.Load(context.Background())

	wallet := r.All()[0].Full
	kol, _ := r.Get(wallet)
	kol.Name = "Mutated"
	kol.Metrics["daily"] = PeriodMetrics{Pnl: 999}

	fresh, _ := r.Get(wallet)
	if fresh.Name == "Mutated" {
		t.Error("expected Get to return a copy")
	}
	if _, ok := fresh.Metrics["daily"]; ok {
		t.Error("expected metrics map to be copied")
	}
}

func TestShortWallet(t *testing.T) {
	full := "DXwuEuLCjq44dHJtBNc6cNGyduHrQ7YwJSZdP69VXGFH"
	short := ShortWallet(full)

	if short != "DXwuEu...VXGFH" {
		t.Errorf("unexpected short form: %s", short)
	}
	if ShortWallet("tiny") != "tiny" {
		t.Error("expected short input unchanged")
	}
}

func TestRoster_Contains(t *testing.T) {
	r := newTestRoster(nil)
	r.Load(context.Background())

	wallet := r.All()[0].Full
	if !r.Contains(wallet) {
		t.Error("expected roster to contain known wallet")
	}
	if r.Contains("unknown") {
		t.Error("expected unknown wallet absent")
	}
}
