// Package journal records migration invocations in a local SQLite database
// and provides the process-exclusive lock that serializes concurrent
// invocations against the same config directory.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/shelltide/shelltide/internal/migrate"
)

// FileName is the journal database file inside the config directory.
const FileName = "journal.db"

// DefaultLockTTL bounds how long a crashed invocation can hold the lock.
const DefaultLockTTL = 10 * time.Minute

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	source      TEXT NOT NULL,
	target      TEXT NOT NULL,
	requested   INTEGER NOT NULL,
	outcome     TEXT NOT NULL DEFAULT 'running',
	started_at  TEXT NOT NULL,
	finished_at TEXT
);
CREATE TABLE IF NOT EXISTS checkpoints (
	run_id     INTEGER NOT NULL REFERENCES runs(id),
	change_id  INTEGER NOT NULL,
	created_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS lease (
	id          INTEGER PRIMARY KEY CHECK (id = 1),
	holder      TEXT NOT NULL,
	acquired_at TEXT NOT NULL,
	expires_at  TEXT NOT NULL
);
`

// Journal is a handle on the journal database. It implements
// migrate.Journal.
type Journal struct {
	db     *sql.DB
	holder string
	now    func() time.Time

	mu        sync.Mutex
	ttl       time.Duration
	renewErr  error
	stopRenew chan struct{}
}

// Open opens (creating if needed) the journal in dir.
func Open(dir string) (*Journal, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create journal directory: %w", err)
	}
	path := filepath.Join(dir, FileName)
	db, err := sql.Open("sqlite", "file:"+path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize journal: %w", err)
	}
	return &Journal{
		db:     db,
		holder: fmt.Sprintf("%d-%d", os.Getpid(), time.Now().UnixNano()),
		now:    time.Now,
	}, nil
}

func (j *Journal) Close() error {
	j.mu.Lock()
	if j.stopRenew != nil {
		close(j.stopRenew)
		j.stopRenew = nil
	}
	j.mu.Unlock()
	return j.db.Close()
}

// Acquire takes the exclusive migration lock, failing with migrate.ErrBusy
// when another live invocation holds it. While the lock is held a background
// renewal keeps the lease current, so only a lease left behind by a crashed
// process expires after ttl and can be reclaimed.
func (j *Journal) Acquire(ctx context.Context, ttl time.Duration) (release func() error, err error) {
	if ttl <= 0 {
		ttl = DefaultLockTTL
	}
	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin lock transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var holder, expires string
	row := tx.QueryRowContext(ctx, `SELECT holder, expires_at FROM lease WHERE id = 1`)
	switch scanErr := row.Scan(&holder, &expires); scanErr {
	case nil:
		deadline, parseErr := time.Parse(time.RFC3339Nano, expires)
		if parseErr == nil && j.now().Before(deadline) && holder != j.holder {
			return nil, migrate.ErrBusy
		}
	case sql.ErrNoRows:
		// free
	default:
		return nil, fmt.Errorf("failed to read lock lease: %w", scanErr)
	}

	now := j.now()
	_, err = tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO lease (id, holder, acquired_at, expires_at) VALUES (1, ?, ?, ?)`,
		j.holder, now.Format(time.RFC3339Nano), now.Add(ttl).Format(time.RFC3339Nano))
	if err != nil {
		return nil, fmt.Errorf("failed to take lock lease: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit lock lease: %w", err)
	}

	j.mu.Lock()
	if j.stopRenew != nil {
		close(j.stopRenew)
	}
	stop := make(chan struct{})
	j.stopRenew = stop
	j.ttl = ttl
	j.renewErr = nil
	j.mu.Unlock()

	interval := ttl / 3
	if interval <= 0 {
		interval = time.Millisecond
	}
	go j.renewLoop(stop, interval)

	return func() error {
		j.mu.Lock()
		if j.stopRenew == stop {
			close(stop)
			j.stopRenew = nil
			j.renewErr = nil
		}
		j.mu.Unlock()
		_, err := j.db.Exec(`DELETE FROM lease WHERE id = 1 AND holder = ?`, j.holder)
		return err
	}, nil
}

func (j *Journal) renewLoop(stop chan struct{}, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := j.renew(context.Background()); err != nil {
				j.mu.Lock()
				j.renewErr = err
				j.mu.Unlock()
				return
			}
		}
	}
}

// renew extends the lease held by this invocation. Zero rows affected means
// another invocation took the lease over after it expired.
func (j *Journal) renew(ctx context.Context) error {
	j.mu.Lock()
	ttl := j.ttl
	j.mu.Unlock()
	res, err := j.db.ExecContext(ctx,
		`UPDATE lease SET expires_at = ? WHERE id = 1 AND holder = ?`,
		j.now().Add(ttl).Format(time.RFC3339Nano), j.holder)
	if err != nil {
		return fmt.Errorf("failed to renew lock lease: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to renew lock lease: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("migration lock lost to another invocation")
	}
	return nil
}

// checkLease verifies and extends the lease before a state-changing write.
// A Journal used without Acquire is not lease-checked.
func (j *Journal) checkLease(ctx context.Context) error {
	j.mu.Lock()
	held := j.stopRenew != nil
	renewErr := j.renewErr
	j.mu.Unlock()
	if !held && renewErr == nil {
		return nil
	}
	if renewErr != nil {
		return renewErr
	}
	if err := j.renew(ctx); err != nil {
		j.mu.Lock()
		j.renewErr = err
		j.mu.Unlock()
		return err
	}
	return nil
}

// StartRun opens a run record and returns its id.
func (j *Journal) StartRun(ctx context.Context, source, target string, requested int) (int64, error) {
	if err := j.checkLease(ctx); err != nil {
		return 0, err
	}
	res, err := j.db.ExecContext(ctx,
		`INSERT INTO runs (source, target, requested, started_at) VALUES (?, ?, ?, ?)`,
		source, target, requested, j.now().Format(time.RFC3339Nano))
	if err != nil {
		return 0, fmt.Errorf("failed to record run: %w", err)
	}
	return res.LastInsertId()
}

// Checkpoint durably records one applied change id for a run. It fails when
// this invocation no longer holds the migration lock, which aborts the run
// before any further change executes.
func (j *Journal) Checkpoint(ctx context.Context, run int64, changeID int) error {
	if err := j.checkLease(ctx); err != nil {
		return err
	}
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO checkpoints (run_id, change_id, created_at) VALUES (?, ?, ?)`,
		run, changeID, j.now().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to record checkpoint: %w", err)
	}
	return nil
}

// FinishRun closes a run record with its terminal outcome.
func (j *Journal) FinishRun(ctx context.Context, run int64, outcome string) error {
	_, err := j.db.ExecContext(ctx,
		`UPDATE runs SET outcome = ?, finished_at = ? WHERE id = ?`,
		outcome, j.now().Format(time.RFC3339Nano), run)
	if err != nil {
		return fmt.Errorf("failed to close run: %w", err)
	}
	return nil
}

// Checkpoints returns the change ids recorded for a run, in insert order.
func (j *Journal) Checkpoints(ctx context.Context, run int64) ([]int, error) {
	rows, err := j.db.QueryContext(ctx,
		`SELECT change_id FROM checkpoints WHERE run_id = ? ORDER BY rowid`, run)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var ids []int
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
