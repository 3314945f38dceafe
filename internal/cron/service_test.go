package cron

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/forkpoint/loyalty-backend/internal/ledger"
	"github.com/forkpoint/loyalty-backend/pkg/logger"
)

type fakeRedis struct {
	values map[string]string
	setErr error
	getErr error
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{values: map[string]string{}}
}

func (f *fakeRedis) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if f.setErr != nil {
		return false, f.setErr
	}
	if _, ok := f.values[key]; ok {
		return false, nil
	}
	f.values[key] = value.(string)
	return true, nil
}

func (f *fakeRedis) Get(ctx context.Context, key string) (string, error) {
	if f.getErr != nil {
		return "", f.getErr
	}
	value, ok := f.values[key]
	if !ok {
		return "", redis.Nil
	}
	return value, nil
}

func (f *fakeRedis) Del(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		delete(f.values, key)
	}
	return nil
}

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	return logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
}

func TestRedisLockAcquireAndRelease(t *testing.T) {
	store := newFakeRedis()
	lock, err := NewRedisLock(store, "cron:lock:test", time.Minute)
	if err != nil {
		t.Fatalf("NewRedisLock: %v", err)
	}

	ok, err := lock.Acquire(context.Background())
	if err != nil || !ok {
		t.Fatalf("expected acquire, got ok=%v err=%v", ok, err)
	}

	other, _ := NewRedisLock(store, "cron:lock:test", time.Minute)
	ok, err = other.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if ok {
		t.Fatal("expected contention to fail the second acquire")
	}

	if err := lock.Release(context.Background()); err != nil {
		t.Fatalf("Release: %v", err)
	}
	ok, _ = other.Acquire(context.Background())
	if !ok {
		t.Fatal("expected lock reacquirable after release")
	}
}

func TestRedisLockReleaseOnlyByOwner(t *testing.T) {
	store := newFakeRedis()
	lock, _ := NewRedisLock(store, "cron:lock:test", time.Minute)

	if ok, _ := lock.Acquire(context.Background()); !ok {
		t.Fatal("expected acquire")
	}

	// Simulate the TTL expiring and another instance taking over.
	store.values["cron:lock:test"] = "someone-else"

	if err := lock.Release(context.Background()); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if store.values["cron:lock:test"] != "someone-else" {
		t.Fatal("release must not delete a lock it no longer owns")
	}
}

func TestRedisLockReleaseWithoutAcquireIsNoop(t *testing.T) {
	store := newFakeRedis()
	lock, _ := NewRedisLock(store, "cron:lock:test", time.Minute)
	if err := lock.Release(context.Background()); err != nil {
		t.Fatalf("Release: %v", err)
	}
}

type recordingJob struct {
	name string
	runs int
	err  error
}

func (j *recordingJob) Name() string { return j.name }

func (j *recordingJob) Run(ctx context.Context) error {
	j.runs++
	return j.err
}

type staticLock struct {
	acquired bool
	releases int
}

func (l *staticLock) Acquire(ctx context.Context) (bool, error) { return l.acquired, nil }
func (l *staticLock) Release(ctx context.Context) error         { l.releases++; return nil }

func TestRunCycleExecutesJobsInOrder(t *testing.T) {
	first := &recordingJob{name: "first"}
	second := &recordingJob{name: "second", err: errors.New("boom")}
	third := &recordingJob{name: "third"}
	lock := &staticLock{acquired: true}

	svc, err := NewService(ServiceParams{
		Logger:   testLogger(t),
		Registry: NewRegistry(first, second, third),
		Lock:     lock,
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	if err := svc.runCycle(context.Background()); err != nil {
		t.Fatalf("runCycle: %v", err)
	}
	if first.runs != 1 || second.runs != 1 || third.runs != 1 {
		t.Fatalf("expected every job to run once, got %d/%d/%d", first.runs, second.runs, third.runs)
	}
	if lock.releases != 1 {
		t.Fatalf("expected lock released once, got %d", lock.releases)
	}
}

func TestRunCycleSkipsWhenLockHeldElsewhere(t *testing.T) {
	job := &recordingJob{name: "job"}
	svc, _ := NewService(ServiceParams{
		Logger:   testLogger(t),
		Registry: NewRegistry(job),
		Lock:     &staticLock{acquired: false},
	})

	if err := svc.runCycle(context.Background()); err != nil {
		t.Fatalf("runCycle: %v", err)
	}
	if job.runs != 0 {
		t.Fatal("expected no job runs without the lock")
	}
}

func TestRegistrySkipsNilJobs(t *testing.T) {
	registry := NewRegistry(nil, &recordingJob{name: "only"})
	registry.Register(nil)
	if got := len(registry.Jobs()); got != 1 {
		t.Fatalf("expected 1 job, got %d", got)
	}
}

type stubExpirer struct {
	result *ledger.ExpireResult
	err    error
	gotNow time.Time
}

func (s *stubExpirer) ExpireDue(ctx context.Context, now time.Time) (*ledger.ExpireResult, error) {
	s.gotNow = now
	return s.result, s.err
}

func TestPointsExpiryJobRuns(t *testing.T) {
	expirer := &stubExpirer{result: &ledger.ExpireResult{CustomersProcessed: 2, EntriesExpired: 3, PointsExpired: 70}}
	job, err := NewPointsExpiryJob(PointsExpiryJobParams{Logger: testLogger(t), Ledger: expirer})
	if err != nil {
		t.Fatalf("NewPointsExpiryJob: %v", err)
	}
	if job.Name() != "points-expiry" {
		t.Fatalf("unexpected name %q", job.Name())
	}
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if expirer.gotNow.Location() != time.UTC {
		t.Fatal("expected sweep timestamp in UTC")
	}

	expirer.err = errors.New("db down")
	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected error surfaced")
	}
}

type stubRetentionRepo struct {
	cutoff      time.Time
	maxAttempts int
	deleted     int64
	err         error
}

func (s *stubRetentionRepo) DeletePublishedBefore(cutoff time.Time, maxAttempts int) (int64, error) {
	s.cutoff = cutoff
	s.maxAttempts = maxAttempts
	return s.deleted, s.err
}

func TestOutboxRetentionJobDefaults(t *testing.T) {
	repo := &stubRetentionRepo{deleted: 12}
	job, err := NewOutboxRetentionJob(OutboxRetentionJobParams{Logger: testLogger(t), Repository: repo})
	if err != nil {
		t.Fatalf("NewOutboxRetentionJob: %v", err)
	}
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if repo.maxAttempts != outboxMaxAttempts {
		t.Fatalf("expected default max attempts, got %d", repo.maxAttempts)
	}

	wantCutoff := time.Now().UTC().Add(-outboxRetentionDays * 24 * time.Hour)
	if diff := repo.cutoff.Sub(wantCutoff); diff < -time.Minute || diff > time.Minute {
		t.Fatalf("cutoff %v far from expected %v", repo.cutoff, wantCutoff)
	}
}

func TestOutboxRetentionJobCustomWindow(t *testing.T) {
	repo := &stubRetentionRepo{}
	job, _ := NewOutboxRetentionJob(OutboxRetentionJobParams{
		Logger:      testLogger(t),
		Repository:  repo,
		Retention:   7,
		MaxAttempts: 3,
	})
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if repo.maxAttempts != 3 {
		t.Fatalf("expected max attempts 3, got %d", repo.maxAttempts)
	}
	wantCutoff := time.Now().UTC().Add(-7 * 24 * time.Hour)
	if diff := repo.cutoff.Sub(wantCutoff); diff < -time.Minute || diff > time.Minute {
		t.Fatalf("cutoff %v far from expected %v", repo.cutoff, wantCutoff)
	}
}
