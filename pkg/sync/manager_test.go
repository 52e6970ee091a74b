package sync

import (
	"errors"
	gosync "sync"
	"testing"

	"go.uber.org/zap"

	"github.com/lwgs/searchindex-client/pkg/store/storetest"
)

func newTestManager(t *testing.T) (*StateManager, *storetest.Store) {
	t.Helper()
	st := storetest.New()
	return NewStateManager(st.Settings(), zap.NewNop()), st
}

func TestFullLifecycle(t *testing.T) {
	manager, _ := newTestManager(t)

	if manager.State() != SeedReady {
		t.Fatalf("expected READY, got %q", manager.State())
	}

	jobID, err := manager.StartSeeding()
	if err != nil {
		t.Fatalf("StartSeeding error: %v", err)
	}
	if !manager.IsInStateSeeding() {
		t.Fatalf("expected SEEDING after StartSeeding")
	}
	current, ok := manager.CurrentJobID()
	if !ok || current != jobID {
		t.Fatalf("expected current job id %s, got %s (%v)", jobID, current, ok)
	}

	if err := manager.SubmitSeeding(); err != nil {
		t.Fatalf("SubmitSeeding error: %v", err)
	}
	if err := manager.StartSending(); err != nil {
		t.Fatalf("StartSending error: %v", err)
	}
	if err := manager.FinishSending(); err != nil {
		t.Fatalf("FinishSending error: %v", err)
	}
	if err := manager.Reset(); err != nil {
		t.Fatalf("Reset error: %v", err)
	}

	if manager.State() != SeedReady {
		t.Fatalf("expected READY after reset, got %q", manager.State())
	}
	if _, ok := manager.CurrentJobID(); ok {
		t.Fatalf("expected no job id after reset")
	}
	if counters := manager.Counters(); counters.Seeded != 0 {
		t.Fatalf("expected zeroed counters, got %+v", counters)
	}
}

func TestIllegalTransitionsRejected(t *testing.T) {
	manager, _ := newTestManager(t)

	if err := manager.SubmitSeeding(); !errors.Is(err, ErrIllegalStateTransition) {
		t.Fatalf("expected illegal transition from READY, got %v", err)
	}
	if err := manager.StartSending(); !errors.Is(err, ErrIllegalStateTransition) {
		t.Fatalf("expected illegal transition from READY, got %v", err)
	}
	if err := manager.Reset(); !errors.Is(err, ErrIllegalStateTransition) {
		t.Fatalf("expected illegal reset from READY, got %v", err)
	}

	if _, err := manager.StartSeeding(); err != nil {
		t.Fatalf("StartSeeding error: %v", err)
	}
	if _, err := manager.StartSeeding(); !errors.Is(err, ErrIllegalStateTransition) {
		t.Fatalf("expected second StartSeeding to be rejected, got %v", err)
	}
	if err := manager.Fail(); !errors.Is(err, ErrIllegalStateTransition) {
		t.Fatalf("expected Fail to be rejected during SEEDING, got %v", err)
	}
}

func TestFailPaths(t *testing.T) {
	manager, _ := newTestManager(t)

	if _, err := manager.StartSeeding(); err != nil {
		t.Fatalf("StartSeeding error: %v", err)
	}
	if err := manager.FailSeeding(); err != nil {
		t.Fatalf("FailSeeding error: %v", err)
	}
	if manager.State() != SeedFailed {
		t.Fatalf("expected FAILED, got %q", manager.State())
	}
	if err := manager.Reset(); err != nil {
		t.Fatalf("Reset from FAILED error: %v", err)
	}

	if _, err := manager.StartSeeding(); err != nil {
		t.Fatalf("StartSeeding error: %v", err)
	}
	if err := manager.SubmitSeeding(); err != nil {
		t.Fatalf("SubmitSeeding error: %v", err)
	}
	if err := manager.Fail(); err != nil {
		t.Fatalf("Fail from SEEDED error: %v", err)
	}
	if manager.State() != SeedFailed {
		t.Fatalf("expected FAILED after escalation, got %q", manager.State())
	}
}

func TestCountersSafeUnderConcurrentSeeders(t *testing.T) {
	manager, _ := newTestManager(t)

	if _, err := manager.StartSeeding(); err != nil {
		t.Fatalf("StartSeeding error: %v", err)
	}

	var wg gosync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			manager.IncSeedMessageCounter()
		}()
	}
	wg.Wait()

	if counters := manager.Counters(); counters.Seeded != 50 {
		t.Fatalf("expected 50 seeded, got %d", counters.Seeded)
	}
}

func TestStateSurvivesRestart(t *testing.T) {
	st := storetest.New()
	manager := NewStateManager(st.Settings(), zap.NewNop())

	jobID, err := manager.StartSeeding()
	if err != nil {
		t.Fatalf("StartSeeding error: %v", err)
	}
	manager.IncSeedMessageCounter()
	manager.IncSeedMessageCounter()

	restored := NewStateManager(st.Settings(), zap.NewNop())
	if restored.State() != SeedSeeding {
		t.Fatalf("expected restored SEEDING, got %q", restored.State())
	}
	current, ok := restored.CurrentJobID()
	if !ok || current != jobID {
		t.Fatalf("expected restored job id %s, got %s (%v)", jobID, current, ok)
	}
	if counters := restored.Counters(); counters.Seeded != 2 {
		t.Fatalf("expected restored seeded counter 2, got %d", counters.Seeded)
	}
}
