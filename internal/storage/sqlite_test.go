package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/xab-mack/solguard/internal/model"
)

func openTemp(t *testing.T) *DB {
	t.Helper()
	db, err := Open(context.Background(), filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func report(n int, partial bool) *model.Report {
	r := &model.Report{
		Score:          10 * n,
		RiskLabel:      "Critical Risk",
		SeverityCounts: map[model.Severity]int{model.SeverityCritical: n},
		Metadata:       model.ScanMetadata{BudgetExceeded: partial},
	}
	for i := 0; i < n; i++ {
		r.Findings = append(r.Findings, model.Finding{
			RuleID: "SOL-REENTRANCY", Severity: model.SeverityCritical, File: "Bank.sol",
			Start: model.Position{Line: 6 + i, Column: 9}, Fingerprint: "fp" + string(rune('a'+i)),
		})
	}
	return r
}

func TestRecordAndList(t *testing.T) {
	db := openTemp(t)
	ctx := context.Background()
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	first, err := db.Record(ctx, "contracts/", start, 1500*time.Millisecond, 3, report(2, false))
	if err != nil {
		t.Fatal(err)
	}
	second, err := db.Record(ctx, "Bank.sol", start.Add(time.Hour), 20*time.Millisecond, 1, report(0, true))
	if err != nil {
		t.Fatal(err)
	}
	if second <= first {
		t.Fatalf("ids not increasing: %d then %d", first, second)
	}

	scans, err := db.List(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(scans) != 2 || scans[0].ID != second {
		t.Fatalf("want newest first, got %+v", scans)
	}
	old := scans[1]
	if old.Target != "contracts/" || old.Files != 3 || old.Findings != 2 || old.Score != 20 || old.Partial {
		t.Fatalf("scan %+v", old)
	}
	if !old.StartedAt.Equal(start) || old.Duration != 1500*time.Millisecond {
		t.Fatalf("timing %v %v", old.StartedAt, old.Duration)
	}
	if old.Counts[model.SeverityCritical] != 2 || old.Counts[model.SeverityLow] != 0 {
		t.Fatalf("counts %v", old.Counts)
	}
	if !scans[0].Partial {
		t.Fatal("partial flag lost")
	}

	limited, err := db.List(ctx, 1)
	if err != nil || len(limited) != 1 {
		t.Fatalf("limit: %v %d", err, len(limited))
	}
}

func TestFindings(t *testing.T) {
	db := openTemp(t)
	ctx := context.Background()
	id, err := db.Record(ctx, "Bank.sol", time.Now(), time.Second, 1, report(2, false))
	if err != nil {
		t.Fatal(err)
	}
	rows, err := db.Findings(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 || rows[0].Line != 6 || rows[1].Fingerprint != "fpb" || rows[0].Severity != model.SeverityCritical {
		t.Fatalf("rows %+v", rows)
	}
	none, err := db.Findings(ctx, id+100)
	if err != nil || len(none) != 0 {
		t.Fatalf("unknown scan: %v %v", none, err)
	}
}

func TestReopenKeepsHistory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "h.db")
	ctx := context.Background()
	db, err := Open(ctx, path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Record(ctx, "x", time.Now(), 0, 1, report(1, false)); err != nil {
		t.Fatal(err)
	}
	db.Close()
	db, err = Open(ctx, path)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	scans, err := db.List(ctx, 0)
	if err != nil || len(scans) != 1 {
		t.Fatalf("after reopen: %v %d", err, len(scans))
	}
}
