package motor

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/tianrking/HighTorque-Control/pkg/protocol"
)

func TestReportRoundTrip(t *testing.T) {
	mode := protocol.ModeVelocity
	results := []Info{
		{ID: 1, Online: true, Name: "HTM", HardwareVersion: "v1.0", Latency: 3 * time.Millisecond},
		{ID: 2},
		{ID: 3, Online: true, Mode: &mode, Latency: 5 * time.Millisecond},
	}
	r := NewReport("can0", 1000000, results)

	path := filepath.Join(t.TempDir(), "scan.json")
	if err := r.Save(path); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := LoadReport(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Interface != "can0" || loaded.Bitrate != 1000000 {
		t.Fatalf("bus fields = %q %d", loaded.Interface, loaded.Bitrate)
	}
	if !loaded.Time.Equal(r.Time) {
		t.Fatalf("time = %v, want %v", loaded.Time, r.Time)
	}
	if len(loaded.Results) != 3 {
		t.Fatalf("got %d results", len(loaded.Results))
	}
	if got := loaded.Results[0]; got.Name != "HTM" || got.HardwareVersion != "v1.0" || got.Latency != 3*time.Millisecond {
		t.Fatalf("result 0 = %+v", got)
	}
	if loaded.Results[1].Online {
		t.Fatal("offline entry came back online")
	}
	if got := loaded.Results[2]; got.Mode == nil || *got.Mode != protocol.ModeVelocity {
		t.Fatalf("result 2 mode = %v", got.Mode)
	}
}

func TestReportOnline(t *testing.T) {
	r := NewReport("can0", 1000000, []Info{
		{ID: 1, Online: true},
		{ID: 2},
		{ID: 3},
		{ID: 4, Online: true},
	})
	online := r.Online()
	if len(online) != 2 {
		t.Fatalf("got %d online entries, want 2", len(online))
	}
	if online[0].ID != 1 || online[1].ID != 4 {
		t.Fatalf("online ids = %d, %d", online[0].ID, online[1].ID)
	}
}

func TestLoadReportMissing(t *testing.T) {
	if _, err := LoadReport(filepath.Join(t.TempDir(), "absent.json")); err == nil {
		t.Fatal("missing file loaded")
	}
}
