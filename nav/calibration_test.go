package nav

import (
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// ---------------------------------------------------------------------------
// LoadHeadingCache
// ---------------------------------------------------------------------------

func TestLoadHeadingCache_NotExists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "no-such-file.json")

	hc, err := LoadHeadingCache(path)
	if err != nil {
		t.Fatalf("expected nil error for missing file, got: %v", err)
	}
	if hc != nil {
		t.Fatal("expected nil HeadingCache for missing file")
	}
}

func TestLoadHeadingCache_ValidFile(t *testing.T) {
	data, err := json.Marshal(&HeadingCache{Offset: 0.17, LastUpdated: 1700000000})
	if err != nil {
		t.Fatalf("marshal fixture: %v", err)
	}
	path := filepath.Join(t.TempDir(), "heading.json")
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	got, err := LoadHeadingCache(path)
	if err != nil {
		t.Fatalf("LoadHeadingCache: %v", err)
	}
	if got == nil {
		t.Fatal("expected non-nil HeadingCache")
	}
	if got.Offset != 0.17 {
		t.Errorf("Offset = %g, want 0.17", got.Offset)
	}
	if got.LastUpdated != 1700000000 {
		t.Errorf("LastUpdated = %d, want 1700000000", got.LastUpdated)
	}
}

func TestLoadHeadingCache_Corrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "heading.json")
	if err := os.WriteFile(path, []byte("{not json"), 0644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	if _, err := LoadHeadingCache(path); err == nil {
		t.Fatal("expected error for corrupt cache")
	}
}

// ---------------------------------------------------------------------------
// SaveHeadingCache
// ---------------------------------------------------------------------------

func TestSaveHeadingCache_CreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "heading.json")

	hc := &HeadingCache{Offset: -0.3}
	if err := SaveHeadingCache(path, hc); err != nil {
		t.Fatalf("SaveHeadingCache: %v", err)
	}
	if hc.LastUpdated == 0 {
		t.Error("LastUpdated was not stamped")
	}

	got, err := LoadHeadingCache(path)
	if err != nil {
		t.Fatalf("LoadHeadingCache: %v", err)
	}
	if got.Offset != -0.3 {
		t.Errorf("Offset = %g, want -0.3", got.Offset)
	}
	if got.Age() > time.Minute {
		t.Errorf("Age = %v, want fresh", got.Age())
	}
}

func TestHeadingCache_AgeOfEmpty(t *testing.T) {
	var hc *HeadingCache
	if hc.Age() < 100*365*24*time.Hour {
		t.Errorf("nil cache should be infinitely old, got %v", hc.Age())
	}
}

// ---------------------------------------------------------------------------
// Restore / Persist
// ---------------------------------------------------------------------------

func TestHeadingOffsetRoundTrip(t *testing.T) {
	muteLogs(t)
	path := filepath.Join(t.TempDir(), "heading.json")

	src := NewCore(nil, nil)
	src.SetHeadingOffset(0.4)
	if err := PersistHeadingOffset(src, path); err != nil {
		t.Fatalf("PersistHeadingOffset: %v", err)
	}

	dst := NewCore(nil, nil)
	ok, err := RestoreHeadingOffset(dst, path, time.Hour)
	if err != nil {
		t.Fatalf("RestoreHeadingOffset: %v", err)
	}
	if !ok {
		t.Fatal("expected offset to be restored")
	}
	if math.Abs(dst.HeadingOffset()-0.4) > 1e-12 {
		t.Errorf("HeadingOffset = %g, want 0.4", dst.HeadingOffset())
	}
}

func TestRestoreHeadingOffset_Stale(t *testing.T) {
	muteLogs(t)
	path := filepath.Join(t.TempDir(), "heading.json")
	data, _ := json.Marshal(&HeadingCache{Offset: 0.4, LastUpdated: time.Now().Add(-48 * time.Hour).Unix()})
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	core := NewCore(nil, nil)
	ok, err := RestoreHeadingOffset(core, path, 24*time.Hour)
	if err != nil {
		t.Fatalf("RestoreHeadingOffset: %v", err)
	}
	if ok || core.HeadingOffset() != 0 {
		t.Errorf("stale cache applied: ok=%v offset=%g", ok, core.HeadingOffset())
	}

	// No age limit
	ok, _ = RestoreHeadingOffset(core, path, 0)
	if !ok {
		t.Error("expected cache to apply without an age limit")
	}
}

func TestRestoreHeadingOffset_Missing(t *testing.T) {
	ok, err := RestoreHeadingOffset(NewCore(nil, nil), filepath.Join(t.TempDir(), "none.json"), 0)
	if ok || err != nil {
		t.Errorf("missing cache: ok=%v err=%v", ok, err)
	}
}
