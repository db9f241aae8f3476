package main

import (
	"strings"
	"testing"
)

func submitTestJob(t *testing.T, env *cliTestEnv) string {
	t.Helper()
	out, _, err := runCLI(t, []string{
		"jobs", "submit",
		"--tenant", "iplantc.org",
		"--owner", "rion",
		"--system", "hpc.example.org",
		"--app", "wordcount-1.0",
		"--input", "agave://data.example.org/inputs/words.txt",
	}, env.configPath)
	if err != nil {
		t.Fatalf("jobs submit: %v", err)
	}
	requireContains(t, out, "accepted with 1 input(s)")

	fields := strings.Fields(out)
	if len(fields) < 2 {
		t.Fatalf("unexpected submit output %q", out)
	}
	return fields[1]
}

func TestJobsSubmitListShow(t *testing.T) {
	env := setupCLITestEnv(t)
	jobUUID := submitTestJob(t, env)

	out, _, err := runCLI(t, []string{"jobs", "list"}, env.configPath)
	if err != nil {
		t.Fatalf("jobs list: %v", err)
	}
	requireContains(t, out, jobUUID)
	requireContains(t, out, "PENDING")

	out, _, err = runCLI(t, []string{"jobs", "show", jobUUID}, env.configPath)
	if err != nil {
		t.Fatalf("jobs show: %v", err)
	}
	requireContains(t, out, "PENDING")
	requireContains(t, out, "wordcount-1.0")

	out, _, err = runCLI(t, []string{"jobs", "list", "--status", "FINISHED"}, env.configPath)
	if err != nil {
		t.Fatalf("jobs list filtered: %v", err)
	}
	requireContains(t, out, "No jobs found")
}

func TestJobsKillAndRetry(t *testing.T) {
	env := setupCLITestEnv(t)
	jobUUID := submitTestJob(t, env)

	out, _, err := runCLI(t, []string{"jobs", "kill", jobUUID}, env.configPath)
	if err != nil {
		t.Fatalf("jobs kill: %v", err)
	}
	requireContains(t, out, "STOPPED")

	// A stopped job is terminal; retry only applies to failed jobs.
	_, _, err = runCLI(t, []string{"jobs", "retry", jobUUID}, env.configPath)
	if err == nil {
		t.Fatal("expected retry of stopped job to fail")
	}
}

func TestStatusCommand(t *testing.T) {
	env := setupCLITestEnv(t)
	submitTestJob(t, env)

	out, _, err := runCLI(t, []string{"status"}, env.configPath)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "PENDING")
	requireContains(t, out, "1")
}
