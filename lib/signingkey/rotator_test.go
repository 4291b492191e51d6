// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package signingkey

import (
	"context"
	"testing"
	"time"

	"github.com/bureau-foundation/nexus/lib/testutil"
)

func TestCheckAndRotate(t *testing.T) {
	manager, fake := newTestManager(t)
	store := newTestStore(t)
	rotator := NewRotator(RotatorConfig{Manager: manager, Store: store, Clock: fake})
	ctx := context.Background()
	first := manager.Info().CurrentKeyID

	// 30-day interval: rotation starts once fewer than 6 days remain.
	fake.Set(epoch.Add(24 * day))
	rotated, err := rotator.CheckAndRotate(ctx)
	if err != nil {
		t.Fatalf("CheckAndRotate: %v", err)
	}
	if rotated {
		t.Error("rotated with exactly 20% remaining")
	}

	fake.Advance(time.Second)
	rotated, err = rotator.CheckAndRotate(ctx)
	if err != nil {
		t.Fatalf("CheckAndRotate: %v", err)
	}
	if !rotated || manager.Info().CurrentKeyID == first {
		t.Fatal("did not rotate with under 20% remaining")
	}
	if !store.Exists() {
		t.Error("rotation was not saved")
	}
}

func TestCheckAndRotateAutoPurge(t *testing.T) {
	manager, fake := newTestManager(t)
	rotator := NewRotator(RotatorConfig{Manager: manager, Clock: fake, Grace: day, AutoPurge: true})
	ctx := context.Background()

	if _, err := rotator.Rotate(ctx, false); err != nil {
		t.Fatalf("Rotate: %v", err)
	}
	// Two retired keys expire at day 30; the current one lives to day 50.
	fake.Set(epoch.Add(20 * day))
	if _, err := rotator.Rotate(ctx, false); err != nil {
		t.Fatalf("Rotate: %v", err)
	}
	fake.Set(epoch.Add(32 * day))
	if _, err := rotator.CheckAndRotate(ctx); err != nil {
		t.Fatalf("CheckAndRotate: %v", err)
	}
	if got := manager.Info().KeyCount; got != 1 {
		t.Errorf("KeyCount after auto-purge = %d, want 1", got)
	}
}

func TestRotateEmergencyCallsHook(t *testing.T) {
	manager, fake := newTestManager(t)
	type rotation struct {
		id        string
		emergency bool
	}
	rotations := make(chan rotation, 1)
	rotator := NewRotator(RotatorConfig{
		Manager:  manager,
		Clock:    fake,
		OnRotate: func(id string, emergency bool) { rotations <- rotation{id, emergency} },
	})

	id, err := rotator.Rotate(context.Background(), true)
	if err != nil {
		t.Fatalf("Rotate: %v", err)
	}
	got := testutil.RequireReceive(t, rotations, time.Second, "rotation hook")
	if got.id != id || !got.emergency {
		t.Errorf("hook got %+v, want {%s true}", got, id)
	}
	if manager.Info().KeyCount != 1 {
		t.Error("emergency rotation kept old keys")
	}
}

func TestRotateCancelled(t *testing.T) {
	manager, fake := newTestManager(t)
	rotator := NewRotator(RotatorConfig{Manager: manager, Clock: fake})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	before := manager.Info().CurrentKeyID
	if _, err := rotator.Rotate(ctx, false); err == nil {
		t.Error("Rotate with cancelled context succeeded")
	}
	if manager.Info().CurrentKeyID != before {
		t.Error("cancelled Rotate changed the key")
	}
}

func TestRunRotatesOnTick(t *testing.T) {
	manager, fake := newTestManager(t)
	rotations := make(chan string, 4)
	rotator := NewRotator(RotatorConfig{
		Manager:       manager,
		Clock:         fake,
		CheckInterval: time.Hour,
		OnRotate:      func(id string, _ bool) { rotations <- id },
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		rotator.Run(ctx)
		close(done)
	}()
	fake.WaitForTickers(1)

	fake.Advance(25 * day)
	id := testutil.RequireReceive(t, rotations, 5*time.Second, "rotation after tick")
	if id != manager.Info().CurrentKeyID {
		t.Errorf("rotated to %s, current is %s", id, manager.Info().CurrentKeyID)
	}

	cancel()
	testutil.RequireClosed(t, done, 5*time.Second, "Run returns after cancel")
}
