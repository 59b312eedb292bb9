package store

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

// exerciseJobRepo checks the queue contract every backend must share.
func exerciseJobRepo(t *testing.T, repo JobRepo) {
	now := time.Now()

	id, err := repo.EnqueueJob(JobKindStartSurvey, now.Add(-time.Minute), `{"visit_id":"v_1"}`, "start_survey:v_1")
	if err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}

	// Dedupe: re-enqueueing the same key returns the existing job.
	again, err := repo.EnqueueJob(JobKindStartSurvey, now.Add(time.Hour), `{"visit_id":"v_1"}`, "start_survey:v_1")
	if err != nil {
		t.Fatalf("EnqueueJob dedupe: %v", err)
	}
	if again != id {
		t.Errorf("dedupe returned %q, want existing %q", again, id)
	}

	// A future job is not due.
	futureID, err := repo.EnqueueJob(JobKindStartSurvey, now.Add(time.Hour), `{"visit_id":"v_2"}`, "start_survey:v_2")
	if err != nil {
		t.Fatalf("EnqueueJob future: %v", err)
	}

	jobs, err := repo.ClaimDueJobs(now, 10)
	if err != nil {
		t.Fatalf("ClaimDueJobs: %v", err)
	}
	if len(jobs) != 1 || jobs[0].ID != id {
		t.Fatalf("claimed %+v, want only the due job", jobs)
	}
	if jobs[0].Status != JobStatusRunning {
		t.Errorf("claimed job status = %q", jobs[0].Status)
	}

	// A claimed job is not claimed twice.
	if again, _ := repo.ClaimDueJobs(now, 10); len(again) != 0 {
		t.Errorf("second claim returned %+v", again)
	}

	if err := repo.CompleteJob(id); err != nil {
		t.Fatalf("CompleteJob: %v", err)
	}
	done, err := repo.GetJob(id)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if done.Status != JobStatusDone {
		t.Errorf("status = %q, want done", done.Status)
	}

	// The dedupe key is free again once the job is terminal.
	fresh, err := repo.EnqueueJob(JobKindStartSurvey, now, `{"visit_id":"v_1"}`, "start_survey:v_1")
	if err != nil {
		t.Fatalf("EnqueueJob after done: %v", err)
	}
	if fresh == id {
		t.Error("terminal job must not absorb new enqueues")
	}

	// Retry bookkeeping: attempts grow until max, then the job fails for good.
	claimed, _ := repo.ClaimDueJobs(now, 10)
	if len(claimed) != 1 {
		t.Fatalf("claimed %d jobs, want 1", len(claimed))
	}
	retryID := claimed[0].ID
	for attempt := 0; attempt < DefaultMaxAttempts; attempt++ {
		if err := repo.FailJob(retryID, "provider down", now); err != nil {
			t.Fatalf("FailJob attempt %d: %v", attempt, err)
		}
		j, _ := repo.GetJob(retryID)
		if attempt < DefaultMaxAttempts-1 {
			if j.Status != JobStatusQueued {
				t.Fatalf("attempt %d: status = %q, want queued", attempt, j.Status)
			}
			if _, err := repo.ClaimDueJobs(now, 10); err != nil {
				t.Fatalf("reclaim: %v", err)
			}
		} else if j.Status != JobStatusFailed {
			t.Fatalf("final attempt: status = %q, want failed", j.Status)
		}
	}

	// Stale running jobs are requeued on recovery.
	staleID, _ := repo.EnqueueJob("tick", now.Add(-time.Minute), `{}`, "")
	if _, err := repo.ClaimDueJobs(now, 10); err != nil {
		t.Fatalf("claim stale: %v", err)
	}
	n, err := repo.RequeueStaleRunningJobs(now.Add(time.Minute))
	if err != nil {
		t.Fatalf("RequeueStaleRunningJobs: %v", err)
	}
	if n != 1 {
		t.Errorf("requeued %d jobs, want 1", n)
	}
	j, _ := repo.GetJob(staleID)
	if j.Status != JobStatusQueued {
		t.Errorf("stale job status = %q, want queued", j.Status)
	}

	// Cancel.
	if err := repo.CancelJob(futureID); err != nil {
		t.Fatalf("CancelJob: %v", err)
	}
	if j, _ := repo.GetJob(futureID); j.Status != JobStatusCanceled {
		t.Errorf("status = %q, want canceled", j.Status)
	}
}

func TestInMemoryJobRepo(t *testing.T) {
	exerciseJobRepo(t, NewInMemoryStore())
}

func TestSQLiteJobRepo(t *testing.T) {
	s, err := NewSQLiteStore(WithSQLiteDSN(t.TempDir() + "/feedbackpipe.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	defer s.Close()
	exerciseJobRepo(t, s)
}

func TestJobRunnerPoll(t *testing.T) {
	repo := NewInMemoryStore()
	runner := NewJobRunner(repo, time.Second)

	executed := 0
	runner.RegisterHandler("ok_job", func(ctx context.Context, payload string) error {
		executed++
		return nil
	})
	runner.RegisterHandler("retry_job", func(ctx context.Context, payload string) error {
		return fmt.Errorf("transient")
	})
	runner.RegisterHandler("fatal_job", func(ctx context.Context, payload string) error {
		return fmt.Errorf("%w: misconfigured", ErrPermanentJob)
	})

	past := time.Now().Add(-time.Minute)
	okID, _ := repo.EnqueueJob("ok_job", past, `{}`, "")
	retryID, _ := repo.EnqueueJob("retry_job", past, `{}`, "")
	fatalID, _ := repo.EnqueueJob("fatal_job", past, `{}`, "")

	runner.Poll(context.Background())

	if executed != 1 {
		t.Errorf("ok handler ran %d times, want 1", executed)
	}
	if j, _ := repo.GetJob(okID); j.Status != JobStatusDone {
		t.Errorf("ok job status = %q", j.Status)
	}

	// The transient failure is requeued with backoff, not failed.
	j, _ := repo.GetJob(retryID)
	if j.Status != JobStatusQueued {
		t.Errorf("retry job status = %q, want queued", j.Status)
	}
	if j.Attempt != 1 {
		t.Errorf("retry job attempt = %d, want 1", j.Attempt)
	}
	if !j.RunAt.After(time.Now()) {
		t.Errorf("retry job must be deferred, run_at = %v", j.RunAt)
	}

	// The permanent failure never requeues.
	if j, _ := repo.GetJob(fatalID); j.Status != JobStatusFailed {
		t.Errorf("fatal job status = %q, want failed", j.Status)
	}
}

func TestJobRunnerRecoverStaleJobs(t *testing.T) {
	repo := NewInMemoryStore()
	runner := NewJobRunner(repo, time.Second)

	id, _ := repo.EnqueueJob("ok_job", time.Now().Add(-time.Minute), `{}`, "")
	if _, err := repo.ClaimDueJobs(time.Now(), 10); err != nil {
		t.Fatalf("claim: %v", err)
	}

	// Within the stale threshold nothing is touched.
	if err := runner.RecoverStaleJobs(); err != nil {
		t.Fatalf("RecoverStaleJobs: %v", err)
	}
	if j, _ := repo.GetJob(id); j.Status != JobStatusRunning {
		t.Errorf("fresh running job must be left alone, status = %q", j.Status)
	}
}

func TestErrPermanentJobWrapping(t *testing.T) {
	err := fmt.Errorf("%w: no survey", ErrPermanentJob)
	if !errors.Is(err, ErrPermanentJob) {
		t.Error("wrapped permanent error must match ErrPermanentJob")
	}
}
