// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package audit

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/bureau-foundation/nexus/lib/clock"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func openTestLog(t *testing.T) (*Log, *clock.FakeClock) {
	t.Helper()
	fake := clock.Fake(epoch)
	log, err := Open(Config{Path: filepath.Join(t.TempDir(), "audit.db"), Clock: fake})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() {
		if err := log.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	return log, fake
}

func seed(t *testing.T, log *Log, fake *clock.FakeClock) {
	t.Helper()
	events := []Event{
		{Kind: KindAccess, EntityID: "planner", Resource: "message:executor", Action: "create", Allowed: true, Source: "role"},
		{Kind: KindAccess, EntityID: "intruder", Resource: "data:secrets", Action: "read", Allowed: false, Source: "none", Reason: "no grant"},
		{Kind: KindAuthentication, EntityID: "planner", Resource: "planner:executor", Action: "verify", Allowed: true, Source: "signature"},
		{Kind: KindAuthentication, EntityID: "intruder", Resource: "intruder:executor", Action: "verify", Allowed: false, Source: "signature", Reason: "mismatch"},
	}
	for _, event := range events {
		if err := log.Record(context.Background(), event); err != nil {
			t.Fatalf("Record: %v", err)
		}
		fake.Advance(time.Second)
	}
}

func TestRecordAndRecent(t *testing.T) {
	log, fake := openTestLog(t)
	seed(t, log, fake)
	ctx := context.Background()

	count, err := log.Count(ctx)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != 4 {
		t.Errorf("Count = %d, want 4", count)
	}

	tests := []struct {
		name      string
		limit     int
		filter    Filter
		wantFirst string
		wantLen   int
	}{
		{"all newest first", 10, Filter{}, "intruder:executor", 4},
		{"limit", 2, Filter{}, "intruder:executor", 2},
		{"zero limit", 0, Filter{}, "", 0},
		{"by entity", 10, Filter{EntityID: "planner"}, "planner:executor", 2},
		{"by kind", 10, Filter{Kind: KindAccess}, "data:secrets", 2},
		{"denied only", 10, Filter{DeniedOnly: true}, "intruder:executor", 2},
		{"combined", 10, Filter{EntityID: "intruder", Kind: KindAccess, DeniedOnly: true}, "data:secrets", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			events, err := log.Recent(ctx, tt.limit, tt.filter)
			if err != nil {
				t.Fatalf("Recent: %v", err)
			}
			if len(events) != tt.wantLen {
				t.Fatalf("len = %d, want %d", len(events), tt.wantLen)
			}
			if tt.wantLen > 0 && events[0].Resource != tt.wantFirst {
				t.Errorf("first resource = %q, want %q", events[0].Resource, tt.wantFirst)
			}
		})
	}

	events, err := log.Recent(ctx, 10, Filter{EntityID: "intruder", Kind: KindAccess})
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	got := events[0]
	if !got.Time.Equal(epoch.Add(time.Second)) || got.Allowed || got.Reason != "no grant" || got.Action != "read" {
		t.Errorf("round-tripped event = %+v", got)
	}
}

func TestRecordKeepsExplicitTime(t *testing.T) {
	log, _ := openTestLog(t)
	stamp := epoch.Add(-time.Hour)
	if err := log.Record(context.Background(), Event{Time: stamp, Kind: KindKey, EntityID: "rotator", Action: "rotate", Allowed: true}); err != nil {
		t.Fatalf("Record: %v", err)
	}
	events, err := log.Recent(context.Background(), 1, Filter{})
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if !events[0].Time.Equal(stamp) {
		t.Errorf("Time = %v, want %v", events[0].Time, stamp)
	}
}

func TestPrune(t *testing.T) {
	log, fake := openTestLog(t)
	seed(t, log, fake)
	removed, err := log.Prune(context.Background(), epoch.Add(2*time.Second))
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if removed != 2 {
		t.Errorf("Prune = %d, want 2", removed)
	}
	count, err := log.Count(context.Background())
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != 2 {
		t.Errorf("Count after prune = %d, want 2", count)
	}
}

func TestExportReadExport(t *testing.T) {
	log, fake := openTestLog(t)
	seed(t, log, fake)

	var buffer bytes.Buffer
	written, err := log.Export(context.Background(), &buffer)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if written != 4 {
		t.Errorf("Export wrote %d, want 4", written)
	}

	events, err := ReadExport(&buffer)
	if err != nil {
		t.Fatalf("ReadExport: %v", err)
	}
	if len(events) != 4 {
		t.Fatalf("ReadExport = %d events, want 4", len(events))
	}
	for index, event := range events {
		if want := epoch.Add(time.Duration(index) * time.Second); !event.Time.Equal(want) {
			t.Errorf("events[%d].Time = %v, want %v (oldest first)", index, event.Time, want)
		}
	}
	if events[1].EntityID != "intruder" || events[1].Reason != "no grant" {
		t.Errorf("events[1] = %+v", events[1])
	}
}

func TestExportEmpty(t *testing.T) {
	log, _ := openTestLog(t)
	var buffer bytes.Buffer
	if _, err := log.Export(context.Background(), &buffer); err != nil {
		t.Fatalf("Export: %v", err)
	}
	events, err := ReadExport(&buffer)
	if err != nil {
		t.Fatalf("ReadExport: %v", err)
	}
	if len(events) != 0 {
		t.Errorf("ReadExport = %d events, want 0", len(events))
	}
}

func TestOrDiscard(t *testing.T) {
	if OrDiscard(nil) != Discard {
		t.Error("OrDiscard(nil) is not Discard")
	}
	if err := Discard.Record(context.Background(), Event{}); err != nil {
		t.Errorf("Discard.Record: %v", err)
	}
}

func TestMemory(t *testing.T) {
	var memory Memory
	ctx := context.Background()
	for _, allowed := range []bool{true, false, true} {
		if err := memory.Record(ctx, Event{Kind: KindAccess, Allowed: allowed}); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}
	if got := len(memory.Events()); got != 3 {
		t.Errorf("Events = %d, want 3", got)
	}
	if got := len(memory.Denied()); got != 1 {
		t.Errorf("Denied = %d, want 1", got)
	}
}
