// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package signingkey

import (
	"context"
	"log/slog"
	"time"

	"github.com/bureau-foundation/nexus/lib/clock"
)

// Rotation thresholds and defaults.
const (
	// rotateFraction rotates once less than 1/rotateFraction of the
	// rotation interval is left on the current key.
	rotateFraction = 5

	DefaultGrace         = 7 * 24 * time.Hour
	DefaultCheckInterval = time.Hour
)

// RotatorConfig configures a Rotator.
type RotatorConfig struct {
	Manager *Manager

	// Store, when set, is saved after every change.
	Store *Store

	Clock clock.Clock

	// Grace is how long expired keys stay available for verification.
	Grace time.Duration

	// AutoPurge purges on every check that does not rotate.
	AutoPurge bool

	// CheckInterval is the Run period.
	CheckInterval time.Duration

	// OnRotate, when set, is called after each successful rotation and
	// save.
	OnRotate func(keyID string, emergency bool)

	Logger *slog.Logger
}

// Rotator applies the rotation schedule to a Manager.
type Rotator struct {
	manager       *Manager
	store         *Store
	clock         clock.Clock
	grace         time.Duration
	autoPurge     bool
	checkInterval time.Duration
	onRotate      func(string, bool)
	logger        *slog.Logger
}

// NewRotator returns a Rotator. Zero durations take the defaults.
func NewRotator(config RotatorConfig) *Rotator {
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	if config.Grace <= 0 {
		config.Grace = DefaultGrace
	}
	if config.CheckInterval <= 0 {
		config.CheckInterval = DefaultCheckInterval
	}
	if config.Logger == nil {
		config.Logger = slog.New(slog.DiscardHandler)
	}
	return &Rotator{
		manager:       config.Manager,
		store:         config.Store,
		clock:         config.Clock,
		grace:         config.Grace,
		autoPurge:     config.AutoPurge,
		checkInterval: config.CheckInterval,
		onRotate:      config.OnRotate,
		logger:        config.Logger,
	}
}

// Rotate performs a normal or emergency rotation and saves.
func (r *Rotator) Rotate(ctx context.Context, emergency bool) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	var (
		id  string
		err error
	)
	if emergency {
		id, err = r.manager.EmergencyRotate()
	} else {
		id, err = r.manager.Rotate()
	}
	if err != nil {
		return "", err
	}
	if err := r.save(); err != nil {
		return id, err
	}
	if r.onRotate != nil {
		r.onRotate(id, emergency)
	}
	return id, nil
}

// Purge removes keys past the grace period and saves when any were
// removed.
func (r *Rotator) Purge(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	removed := r.manager.PurgeExpired(r.grace)
	if removed == 0 {
		return 0, nil
	}
	return removed, r.save()
}

// CheckAndRotate rotates when the current key is close to expiry and
// otherwise purges if auto-purge is on. Reports whether it rotated.
func (r *Rotator) CheckAndRotate(ctx context.Context) (bool, error) {
	info := r.manager.Info()
	remaining := info.ExpiresAt.Sub(r.clock.Now())
	threshold := info.Interval / rotateFraction
	if remaining < threshold {
		r.logger.Info("current signing key near expiry",
			"key_id", info.CurrentKeyID,
			"remaining", remaining,
		)
		if _, err := r.Rotate(ctx, false); err != nil {
			return false, err
		}
		return true, nil
	}
	if r.autoPurge {
		if _, err := r.Purge(ctx); err != nil {
			return false, err
		}
	}
	return false, nil
}

// Run calls CheckAndRotate once immediately and then every check
// interval until ctx is cancelled. Failures are logged and retried on
// the next tick.
func (r *Rotator) Run(ctx context.Context) {
	ticker := r.clock.NewTicker(r.checkInterval)
	defer ticker.Stop()

	r.check(ctx)
	for {
		select {
		case <-ticker.C:
			r.check(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (r *Rotator) check(ctx context.Context) {
	if _, err := r.CheckAndRotate(ctx); err != nil && ctx.Err() == nil {
		r.logger.Error("key rotation check failed", "error", err)
	}
}

func (r *Rotator) save() error {
	if r.store == nil {
		return nil
	}
	return r.store.Save(r.manager)
}
