package sim

import (
	"strings"
	"testing"
	"time"
)

func TestSnapshotRestoreRoundTrip(t *testing.T) {
	e := newTestEngine(t)
	setFrictionless(t, e)
	mustFillLimit(t, e, "BTCUSDT", SideBuy, 2, 100)
	if _, err := e.SubmitOrder(OrderSpec{Symbol: "ETHUSDT", Side: SideSell, Type: TypeLimit, Qty: 1, Price: 2000}); err != nil {
		t.Fatalf("SubmitOrder: %v", err)
	}
	if _, err := e.AddJournalEntry("", "range break", "scale out at 120", "waited for confirmation"); err != nil {
		t.Fatalf("AddJournalEntry: %v", err)
	}

	snap := e.Snapshot()
	if snap.SchemaVersion != SnapshotSchemaVersion {
		t.Fatalf("schema version: want %d, got %d", SnapshotSchemaVersion, snap.SchemaVersion)
	}

	restored := NewEngine("user-1", nil)
	if err := restored.Restore(snap); err != nil {
		t.Fatalf("Restore: %v", err)
	}

	if got := restored.Wallet(); !approx(got.Cash, e.Wallet().Cash) || !approx(got.Equity, e.Wallet().Equity) {
		t.Fatalf("restored wallet mismatch: %+v vs %+v", got, e.Wallet())
	}
	if len(restored.Orders("")) != 2 || len(restored.Trades()) != 1 || len(restored.Journal()) != 1 {
		t.Fatal("restored ledgers mismatch")
	}
	if !restored.Initialized() {
		t.Fatal("restored session should stay initialized")
	}

	// The restored engine keeps working: fill the pending LIMIT order.
	pending := restored.Orders(StatusNew)
	if len(pending) != 1 {
		t.Fatalf("want 1 pending order, got %d", len(pending))
	}
	if err := restored.Fill(pending[0].ID, 2000); err != nil {
		t.Fatalf("Fill after restore: %v", err)
	}
}

func TestSnapshotValidate(t *testing.T) {
	e := newTestEngine(t)
	setFrictionless(t, e)
	mustFillLimit(t, e, "BTCUSDT", SideBuy, 2, 100)
	base := e.Snapshot()

	tests := []struct {
		name    string
		mutate  func(s *Snapshot)
		wantErr string
	}{
		{
			"wrong schema version",
			func(s *Snapshot) { s.SchemaVersion = 99 },
			"schema version",
		},
		{
			"bad currency",
			func(s *Snapshot) { s.BaseCurrency = "EUR" },
			"currency",
		},
		{
			"zero-qty position",
			func(s *Snapshot) {
				s.Wallet.Positions["BTCUSDT"] = Position{Symbol: "BTCUSDT", Qty: 0, AvgPrice: 100}
			},
			"zero-qty",
		},
		{
			"filled order without details",
			func(s *Snapshot) {
				s.Orders[0].FilledQty = 0
			},
			"without fill details",
		},
		{
			"trade referencing unknown order",
			func(s *Snapshot) {
				s.Trades[0].OrderID = "missing"
			},
			"unknown order",
		},
		{
			"negative starting balance",
			func(s *Snapshot) { s.StartingBalance = -1 },
			"starting balance",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := e.Snapshot()
			tt.mutate(&snap)
			err := snap.Validate()
			if err == nil {
				t.Fatal("want validation error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("error %q does not mention %q", err, tt.wantErr)
			}

			// A rejected import must leave live state untouched.
			fresh := NewEngine("user-1", nil)
			before := fresh.Wallet()
			if err := fresh.Restore(snap); err == nil {
				t.Fatal("Restore accepted an invalid snapshot")
			}
			if after := fresh.Wallet(); !approx(before.Cash, after.Cash) {
				t.Fatal("failed import mutated the engine")
			}
		})
	}

	if err := base.Validate(); err != nil {
		t.Fatalf("valid snapshot rejected: %v", err)
	}
}

func TestExportSnapshot(t *testing.T) {
	e := newTestEngine(t)
	before := time.Now().UTC()
	exp := e.ExportSnapshot()
	if exp.ExportedAt.Before(before.Add(-time.Second)) {
		t.Fatalf("exported_at not stamped: %v", exp.ExportedAt)
	}
	if exp.SchemaVersion != SnapshotSchemaVersion {
		t.Fatalf("export schema version: %d", exp.SchemaVersion)
	}
}
