package policy_test

import (
	"testing"
	"time"

	"conveyor/internal/jobstatus"
	"conveyor/internal/policy"
	"conveyor/internal/testsupport"
)

func TestFromConfig(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Retry.StagingRetries = 5
	cfg.Retry.StagingTimeout = 60

	p := policy.FromConfig(cfg)
	if p.MaxStagingRetries != 5 {
		t.Fatalf("expected 5 staging retries, got %d", p.MaxStagingRetries)
	}
	if p.StagingTimeout != time.Minute {
		t.Fatalf("expected 60s timeout, got %s", p.StagingTimeout)
	}
}

func TestShouldRetryBounds(t *testing.T) {
	p := policy.Policy{MaxStagingRetries: 3, MaxSubmissionRetries: 3, MaxArchiveRetries: 2}

	for attempts := 0; attempts < 3; attempts++ {
		if !p.ShouldRetry(policy.StageStaging, attempts) {
			t.Fatalf("expected retry allowed at attempt %d", attempts)
		}
	}
	if p.ShouldRetry(policy.StageStaging, 3) {
		t.Fatal("expected retries exhausted at attempt 3")
	}
	if p.ShouldRetry(policy.StageArchive, 2) {
		t.Fatal("expected archive retries exhausted at attempt 2")
	}
	if p.ShouldRetry(policy.Stage("unknown"), 0) {
		t.Fatal("unknown stage must never retry")
	}
}

func TestOnExhaustedUsesRollbackCheckpoints(t *testing.T) {
	p := policy.Policy{}

	if got := p.OnExhausted(jobstatus.Submitting); got != jobstatus.Staged {
		t.Fatalf("SUBMITTING should fall back to STAGED, got %s", got)
	}
	if got := p.OnExhausted(jobstatus.StagingInputs); got != jobstatus.Pending {
		t.Fatalf("STAGING_INPUTS should fall back to PENDING, got %s", got)
	}
	if got := p.OnExhausted(jobstatus.Archiving); got != jobstatus.CleaningUp {
		t.Fatalf("ARCHIVING should fall back to CLEANING_UP, got %s", got)
	}
}
