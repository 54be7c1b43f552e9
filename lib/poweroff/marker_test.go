// Copyright 2026 The Safeoff Authors
// SPDX-License-Identifier: Apache-2.0

package poweroff

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/safeoff/safeoff/lib/clock"
	"github.com/safeoff/safeoff/lib/marker"
	"github.com/safeoff/safeoff/lib/testutil"
)

func newMarkedExecutor(t *testing.T, store *marker.Store, session string, mechanism Mechanism) *Executor {
	t.Helper()
	executor, err := New(Config{
		Mechanisms: []Mechanism{mechanism},
		Clock:      clock.Fake(epoch),
		Logger:     testutil.DiscardLogger(),
		Flush:      func() error { return nil },
		Marker:     store,
		Session:    session,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return executor
}

func TestMarkerBlocksSecondProcess(t *testing.T) {
	directory := filepath.Join(t.TempDir(), "state")
	fake := clock.Fake(epoch)

	firstMechanism := &fakeMechanism{name: "systemctl"}
	first := newMarkedExecutor(t, marker.NewStore(directory, 5*time.Minute, fake), "first", firstMechanism)
	if err := first.Execute(context.Background()); err != nil {
		t.Fatalf("first Execute: %v", err)
	}

	record, err := marker.Read(filepath.Join(directory, "poweroff.json"))
	if err != nil {
		t.Fatalf("reading record: %v", err)
	}
	if record.Session != "first" || record.Mechanism != "systemctl" || record.PID != os.Getpid() {
		t.Errorf("record = %+v", record)
	}

	// A separate executor stands in for another agent process.
	secondMechanism := &fakeMechanism{name: "systemctl"}
	second := newMarkedExecutor(t, marker.NewStore(directory, 5*time.Minute, fake), "second", secondMechanism)
	if err := second.Execute(context.Background()); !errors.Is(err, ErrAlreadyIssued) {
		t.Errorf("second Execute = %v, want ErrAlreadyIssued", err)
	}
	if secondMechanism.callCount() != 0 {
		t.Error("second executor touched its mechanism")
	}
}

func TestMarkerLockHeldMeansInProgress(t *testing.T) {
	directory := filepath.Join(t.TempDir(), "state")
	store := marker.NewStore(directory, 5*time.Minute, clock.Fake(epoch))
	release, err := store.Acquire()
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer release()

	mechanism := &fakeMechanism{name: "systemctl"}
	executor := newMarkedExecutor(t, marker.NewStore(directory, 5*time.Minute, clock.Fake(epoch)), "late", mechanism)
	if err := executor.Execute(context.Background()); !errors.Is(err, ErrInProgress) {
		t.Errorf("Execute = %v, want ErrInProgress", err)
	}
	if mechanism.callCount() != 0 {
		t.Error("mechanism ran while another process held the lock")
	}
}

func TestUnusableMarkerDoesNotBlockPoweroff(t *testing.T) {
	// A regular file where the state directory should be.
	blocker := filepath.Join(t.TempDir(), "state")
	if err := os.WriteFile(blocker, nil, 0o600); err != nil {
		t.Fatal(err)
	}

	mechanism := &fakeMechanism{name: "systemctl"}
	executor := newMarkedExecutor(t, marker.NewStore(blocker, 5*time.Minute, clock.Fake(epoch)), "s", mechanism)
	if err := executor.Execute(context.Background()); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if mechanism.callCount() != 1 {
		t.Errorf("mechanism called %d times, want 1", mechanism.callCount())
	}
}
