package journal

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shelltide/shelltide/internal/migrate"
)

func openTestJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	t.Cleanup(func() { _ = j.Close() })
	return j
}

func TestRunLifecycle(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()

	run, err := j.StartRun(ctx, "dev/app", "prod/app", 244)
	if err != nil {
		t.Fatalf("StartRun returned error: %v", err)
	}
	for _, id := range []int{241, 242, 243, 244} {
		if err := j.Checkpoint(ctx, run, id); err != nil {
			t.Fatalf("Checkpoint(%d) returned error: %v", id, err)
		}
	}
	if err := j.FinishRun(ctx, run, "completed"); err != nil {
		t.Fatalf("FinishRun returned error: %v", err)
	}

	ids, err := j.Checkpoints(ctx, run)
	if err != nil {
		t.Fatalf("Checkpoints returned error: %v", err)
	}
	want := []int{241, 242, 243, 244}
	if len(ids) != len(want) {
		t.Fatalf("expected %d checkpoints, got %d", len(want), len(ids))
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Errorf("checkpoint[%d]: expected %d, got %d", i, want[i], ids[i])
		}
	}
}

func TestAcquireIsExclusive(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	first, err := Open(dir)
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	defer func() { _ = first.Close() }()

	release, err := first.Acquire(ctx, time.Minute)
	if err != nil {
		t.Fatalf("Acquire returned error: %v", err)
	}

	second, err := Open(dir)
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	defer func() { _ = second.Close() }()

	if _, err := second.Acquire(ctx, time.Minute); !errors.Is(err, migrate.ErrBusy) {
		t.Fatalf("expected ErrBusy, got %v", err)
	}
	if migrate.ExitCode(migrate.ErrBusy) != 3 {
		t.Errorf("expected exit code 3 for busy, got %d", migrate.ExitCode(migrate.ErrBusy))
	}

	if err := release(); err != nil {
		t.Fatalf("release returned error: %v", err)
	}
	release2, err := second.Acquire(ctx, time.Minute)
	if err != nil {
		t.Fatalf("Acquire after release returned error: %v", err)
	}
	_ = release2()
}

func TestAcquireReclaimsExpiredLease(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	first, err := Open(dir)
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	defer func() { _ = first.Close() }()
	if _, err := first.Acquire(ctx, time.Minute); err != nil {
		t.Fatalf("Acquire returned error: %v", err)
	}

	second, err := Open(dir)
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	defer func() { _ = second.Close() }()
	// Simulate the first holder having crashed long ago.
	second.now = func() time.Time { return time.Now().Add(2 * time.Minute) }

	release, err := second.Acquire(ctx, time.Minute)
	if err != nil {
		t.Fatalf("expected expired lease to be reclaimed, got %v", err)
	}
	_ = release()
}

func TestLeaseRenewedWhileHeld(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	first, err := Open(dir)
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	defer func() { _ = first.Close() }()
	release, err := first.Acquire(ctx, 250*time.Millisecond)
	if err != nil {
		t.Fatalf("Acquire returned error: %v", err)
	}
	run, err := first.StartRun(ctx, "dev/app", "prod/app", 242)
	if err != nil {
		t.Fatalf("StartRun returned error: %v", err)
	}

	// A single change can run far longer than the original expiry.
	time.Sleep(750 * time.Millisecond)

	second, err := Open(dir)
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	defer func() { _ = second.Close() }()
	if _, err := second.Acquire(ctx, time.Minute); !errors.Is(err, migrate.ErrBusy) {
		t.Fatalf("expected ErrBusy while the first invocation is live, got %v", err)
	}

	if err := first.Checkpoint(ctx, run, 241); err != nil {
		t.Fatalf("Checkpoint under a live lease returned error: %v", err)
	}
	_ = release()
}

func TestCheckpointFailsAfterLeaseTakeover(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()

	if _, err := j.Acquire(ctx, time.Minute); err != nil {
		t.Fatalf("Acquire returned error: %v", err)
	}
	run, err := j.StartRun(ctx, "dev/app", "prod/app", 242)
	if err != nil {
		t.Fatalf("StartRun returned error: %v", err)
	}

	// Another invocation reclaimed the lease after this one stalled.
	if _, err := j.db.Exec(`UPDATE lease SET holder = 'other' WHERE id = 1`); err != nil {
		t.Fatalf("failed to reassign lease: %v", err)
	}

	if err := j.Checkpoint(ctx, run, 241); err == nil {
		t.Fatal("expected Checkpoint to fail after losing the lock")
	}
	// The run stays aborted on every subsequent checkpoint.
	if err := j.Checkpoint(ctx, run, 242); err == nil {
		t.Fatal("expected Checkpoint to keep failing after losing the lock")
	}
}

func TestReacquireBySameHolder(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()

	if _, err := j.Acquire(ctx, time.Minute); err != nil {
		t.Fatalf("Acquire returned error: %v", err)
	}
	// The same holder may refresh its own lease.
	release, err := j.Acquire(ctx, time.Minute)
	if err != nil {
		t.Fatalf("re-Acquire by holder returned error: %v", err)
	}
	_ = release()
}
