package persistence

import (
	"errors"
	"io"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/lordpba/AEON/internal/config"
	"github.com/lordpba/AEON/internal/engine"
	"github.com/lordpba/AEON/internal/events"
	"github.com/lordpba/AEON/internal/resources"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func testSave(t *testing.T) engine.SaveDocument {
	t.Helper()
	cfg := config.Default()
	cfg.EventProbabilities = map[events.Category]float64{}
	e, err := engine.New(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)), rand.New(rand.NewSource(1)))
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	return e.Save()
}

func TestStoreAndLoadSave(t *testing.T) {
	db := openTestDB(t)
	doc := testSave(t)

	if err := db.StoreSave(doc); err != nil {
		t.Fatalf("StoreSave: %v", err)
	}

	got, err := db.LoadSave(doc.ID)
	if err != nil {
		t.Fatalf("LoadSave: %v", err)
	}
	if got.ID != doc.ID || got.Colony != doc.Colony {
		t.Errorf("loaded %s/%s, want %s/%s", got.ID, got.Colony, doc.ID, doc.Colony)
	}
	if len(got.Resources) != len(doc.Resources) || len(got.Components) != len(doc.Components) {
		t.Errorf("loaded %d resources / %d components, want %d / %d",
			len(got.Resources), len(got.Components), len(doc.Resources), len(doc.Components))
	}
}

func TestLoadLatestPicksNewest(t *testing.T) {
	db := openTestDB(t)

	first := testSave(t)
	second := testSave(t)
	second.SavedAt = first.SavedAt.Add(time.Second)
	second.Clock.Sol = 7

	if err := db.StoreSave(first); err != nil {
		t.Fatalf("StoreSave first: %v", err)
	}
	if err := db.StoreSave(second); err != nil {
		t.Fatalf("StoreSave second: %v", err)
	}

	got, err := db.LoadLatest()
	if err != nil {
		t.Fatalf("LoadLatest: %v", err)
	}
	if got.ID != second.ID {
		t.Errorf("latest = %s, want %s", got.ID, second.ID)
	}

	infos, err := db.ListSaves(10)
	if err != nil {
		t.Fatalf("ListSaves: %v", err)
	}
	if len(infos) != 2 || infos[0].ID != second.ID {
		t.Errorf("ListSaves = %+v, want newest first", infos)
	}
	if infos[0].Sol != 7 {
		t.Errorf("listed sol = %f, want 7", infos[0].Sol)
	}
}

func TestLoadLatestEmpty(t *testing.T) {
	db := openTestDB(t)
	if _, err := db.LoadLatest(); !errors.Is(err, ErrNoSaves) {
		t.Errorf("error = %v, want ErrNoSaves", err)
	}
	if _, err := db.LoadSave("missing"); !errors.Is(err, ErrNoSaves) {
		t.Errorf("error = %v, want ErrNoSaves", err)
	}
}

func TestEventAuditRoundTrip(t *testing.T) {
	db := openTestDB(t)

	evs := []events.Event{
		{
			ID:          "ev-1",
			Category:    events.SolarStorm,
			Severity:    events.SeverityHigh,
			Description: "Solar storm detected",
			HealthDeltas: map[string]float64{
				"power_generation": -12.5,
			},
			Sol: 1.5,
		},
		{
			ID:          "ev-2",
			Category:    events.Discovery,
			Severity:    events.SeverityLow,
			Description: "Discovery: water ice deposit",
			ResourceDeltas: map[resources.Kind]float64{
				resources.Water: 500,
			},
			Sol:      2.0,
			Resolved: true,
		},
	}
	if err := db.AppendEvents(evs); err != nil {
		t.Fatalf("AppendEvents: %v", err)
	}

	got, err := db.RecentEvents(10)
	if err != nil {
		t.Fatalf("RecentEvents: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d events, want 2", len(got))
	}
	if got[0].ID != "ev-1" || got[1].ID != "ev-2" {
		t.Errorf("order = %s, %s; want chronological ev-1, ev-2", got[0].ID, got[1].ID)
	}
	if got[0].HealthDeltas["power_generation"] != -12.5 {
		t.Errorf("health delta = %v", got[0].HealthDeltas)
	}
	if got[1].ResourceDeltas[resources.Water] != 500 {
		t.Errorf("resource delta = %v", got[1].ResourceDeltas)
	}
	if !got[1].Resolved {
		t.Error("resolved flag lost")
	}
}

func TestRecentEventsLimit(t *testing.T) {
	db := openTestDB(t)

	var evs []events.Event
	for i := 0; i < 20; i++ {
		evs = append(evs, events.Event{
			ID:       string(rune('a' + i)),
			Category: events.SocialConflict,
			Severity: events.SeverityLow,
			Sol:      float64(i),
		})
	}
	if err := db.AppendEvents(evs); err != nil {
		t.Fatalf("AppendEvents: %v", err)
	}

	got, err := db.RecentEvents(5)
	if err != nil {
		t.Fatalf("RecentEvents: %v", err)
	}
	if len(got) != 5 {
		t.Fatalf("got %d events, want 5", len(got))
	}
	if got[0].Sol != 15 || got[4].Sol != 19 {
		t.Errorf("window = [%f..%f], want [15..19]", got[0].Sol, got[4].Sol)
	}
}

func TestMetaRoundTrip(t *testing.T) {
	db := openTestDB(t)

	if err := db.SetMeta("schema", "1"); err != nil {
		t.Fatalf("SetMeta: %v", err)
	}
	if err := db.SetMeta("schema", "2"); err != nil {
		t.Fatalf("SetMeta overwrite: %v", err)
	}
	got, err := db.GetMeta("schema")
	if err != nil {
		t.Fatalf("GetMeta: %v", err)
	}
	if got != "2" {
		t.Errorf("meta = %q, want 2", got)
	}
}

func TestOpenCreatesParentDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "deep", "colony.db")
	db, err := Open(path)
	if err != nil {
		t.Fatalf("Open with missing parent dirs: %v", err)
	}
	db.Close()
}

func TestOpenReportsBadDirectory(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "blocker")
	if err := os.WriteFile(blocker, []byte("not a directory"), 0644); err != nil {
		t.Fatalf("write blocker file: %v", err)
	}
	if _, err := Open(filepath.Join(blocker, "colony.db")); err == nil {
		t.Fatal("Open succeeded with a file in the directory position")
	}
}
