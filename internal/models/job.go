package models

import (
	"time"
)

// JobStatus enumerates lifecycle states of a build job.
type JobStatus string

const (
	StatusPending   JobStatus = "pending"
	StatusBuilding  JobStatus = "building"
	StatusDeploying JobStatus = "deploying"
	StatusComplete  JobStatus = "complete"
	StatusFailed    JobStatus = "failed"
)

// Terminal reports whether no further transitions are permitted.
func (s JobStatus) Terminal() bool {
	return s == StatusComplete || s == StatusFailed
}

// Rank orders the non-failed statuses along the happy path. Failed ranks
// above everything so it is reachable from any non-terminal state.
func (s JobStatus) Rank() int {
	switch s {
	case StatusPending:
		return 0
	case StatusBuilding:
		return 1
	case StatusDeploying:
		return 2
	case StatusComplete:
		return 3
	case StatusFailed:
		return 4
	default:
		return -1
	}
}

// Mode records which execution path the dispatcher picked.
type Mode string

const (
	ModeAgent     Mode = "agent"
	ModeSimulated Mode = "simulated"
)

// Fixed failure reasons stored on the job.
const (
	ErrorDispatchFailed = "agent dispatch failed"
	ErrorTimedOut       = "timed out"
)

// PromptPreviewLength bounds the prompt wherever it is echoed back.
const PromptPreviewLength = 200

// Result describes the deployed site.
type Result struct {
	URL        string    `json:"url,omitempty"`
	DeployedAt time.Time `json:"deployed_at,omitempty"`
}

// BuildJob is one tracked build/deploy request. Credential never leaves the process.
type BuildJob struct {
	ID         string     `json:"id"`
	Status     JobStatus  `json:"status"`
	Step       int        `json:"step"`
	Mode       Mode       `json:"mode"`
	Prompt     string     `json:"prompt"`
	Style      string     `json:"style"`
	ColorTheme string     `json:"color_theme"`
	Credential string     `json:"-"`
	SessionRef string     `json:"-"`
	Result     Result     `json:"result"`
	Error      string     `json:"error,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// PromptPreview returns the prompt bounded to PromptPreviewLength runes.
func (j BuildJob) PromptPreview() string {
	r := []rune(j.Prompt)
	if len(r) <= PromptPreviewLength {
		return j.Prompt
	}
	return string(r[:PromptPreviewLength])
}

// RedactedCredential is safe to log.
func (j BuildJob) RedactedCredential() string {
	return Redact(j.Credential)
}

// Redact masks all but the last four characters of a secret.
func Redact(secret string) string {
	if secret == "" {
		return ""
	}
	if len(secret) <= 4 {
		return "****"
	}
	return "****" + secret[len(secret)-4:]
}
