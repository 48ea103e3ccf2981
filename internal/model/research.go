package model

import (
	"encoding/json"
	"time"
)

// LogSource names the upstream a research-log entry describes.
type LogSource string

const (
	LogSourcePerplexity    LogSource = "perplexity_ai"
	LogSourceOpenAI        LogSource = "openai"
	LogSourceAnthropic     LogSource = "anthropic"
	LogSourceGemini        LogSource = "gemini"
	LogSourceGoogleSearch  LogSource = "google_search"
	LogSourcePageScrape    LogSource = "page_scrape"
	LogSourceImageDownload LogSource = "image_download"
)

// ResearchLogEntry is an append-only audit record of one provider call.
type ResearchLogEntry struct {
	ID                   string          `json:"id"`
	WatchID              string          `json:"watch_id"`
	Source               LogSource       `json:"source"`
	RequestPayload       json.RawMessage `json:"request_payload,omitempty"`
	ResponsePayload      json.RawMessage `json:"response_payload,omitempty"`
	ProcessedResult      json.RawMessage `json:"processed_result,omitempty"`
	Success              bool            `json:"success"`
	ErrorMessage         string          `json:"error_message,omitempty"`
	ExecutionTimeSeconds float64         `json:"execution_time_seconds"`
	ProcessedAt          time.Time       `json:"processed_at"`
}

// Stage names one step of a research run.
type Stage string

const (
	StageSpecs  Stage = "specs"
	StagePrices Stage = "prices"
	StageImages Stage = "images"
)

// AllStages returns the stages in execution order.
func AllStages() []Stage {
	return []Stage{StageSpecs, StagePrices, StageImages}
}

// ParseStage validates a stage name.
func ParseStage(s string) (Stage, bool) {
	for _, st := range AllStages() {
		if string(st) == s {
			return st, true
		}
	}
	return "", false
}

// StageStatus is the outcome of a stage.
type StageStatus string

const (
	StageComplete StageStatus = "complete"
	StageFailed   StageStatus = "failed"
	StageSkipped  StageStatus = "skipped"
)

// StageResult records the outcome of a single stage.
type StageResult struct {
	Name       Stage          `json:"name"`
	Status     StageStatus    `json:"status"`
	DurationMS int64          `json:"duration_ms"`
	Error      string         `json:"error,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// RunReport summarizes a research run for one watch.
type RunReport struct {
	WatchID   string               `json:"watch_id"`
	Stages    []StageResult        `json:"stages"`
	Spec      *TechnicalSpecResult `json:"spec,omitempty"`
	Valuation *ValuationResult     `json:"valuation,omitempty"`
	Images    []WatchImage         `json:"images,omitempty"`
}

// Stage returns the result recorded for name, if any.
func (r *RunReport) Stage(name Stage) (StageResult, bool) {
	for _, s := range r.Stages {
		if s.Name == name {
			return s, true
		}
	}
	return StageResult{}, false
}

// Failed reports whether any stage failed.
func (r *RunReport) Failed() bool {
	for _, s := range r.Stages {
		if s.Status == StageFailed {
			return true
		}
	}
	return false
}
