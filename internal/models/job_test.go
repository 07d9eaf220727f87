package models

import (
	"strings"
	"testing"
)

func TestStatusRankAndTerminal(t *testing.T) {
	order := []JobStatus{StatusPending, StatusBuilding, StatusDeploying, StatusComplete}
	for i := 1; i < len(order); i++ {
		if order[i].Rank() <= order[i-1].Rank() {
			t.Fatalf("%s should rank above %s", order[i], order[i-1])
		}
	}
	for _, s := range order[:3] {
		if s.Terminal() {
			t.Fatalf("%s should not be terminal", s)
		}
		if StatusFailed.Rank() <= s.Rank() {
			t.Fatalf("failed should be reachable from %s", s)
		}
	}
	if !StatusComplete.Terminal() || !StatusFailed.Terminal() {
		t.Fatalf("complete and failed must be terminal")
	}
}

func TestPromptPreviewBounded(t *testing.T) {
	job := BuildJob{Prompt: strings.Repeat("é", 500)}
	if got := []rune(job.PromptPreview()); len(got) != PromptPreviewLength {
		t.Fatalf("expected %d runes, got %d", PromptPreviewLength, len(got))
	}
	short := BuildJob{Prompt: "A blog"}
	if short.PromptPreview() != "A blog" {
		t.Fatalf("short prompt should be untouched")
	}
}

func TestRedact(t *testing.T) {
	if got := Redact("tok_abcdef123"); got != "****f123" {
		t.Fatalf("unexpected redaction %q", got)
	}
	if got := Redact("abc"); got != "****" {
		t.Fatalf("short secrets must be fully masked, got %q", got)
	}
	if Redact("") != "" {
		t.Fatalf("empty secret should stay empty")
	}
}

func TestStepsFollowProgress(t *testing.T) {
	job := BuildJob{Status: StatusBuilding, Step: 2}
	steps := job.Steps()
	if len(steps) != FinalStep {
		t.Fatalf("expected %d steps, got %d", FinalStep, len(steps))
	}
	if !steps[0].Complete || steps[1].Complete {
		t.Fatalf("unexpected completion flags: %+v", steps)
	}
	if job.CurrentStep() != 1 {
		t.Fatalf("expected current step 1, got %d", job.CurrentStep())
	}

	done := BuildJob{Status: StatusComplete, Step: FinalStep}
	for _, s := range done.Steps() {
		if !s.Complete {
			t.Fatalf("all steps should be complete: %+v", done.Steps())
		}
	}
	if done.CurrentStep() != FinalStep-1 {
		t.Fatalf("expected last index, got %d", done.CurrentStep())
	}
}
