package models

import (
	"time"
)

// BlockStatus is the outcome of processing one block
type BlockStatus string

const (
	StatusSuccess BlockStatus = "success"
	// StatusEmpty means no device folder maps to the block.
	StatusEmpty BlockStatus = "empty"
	// StatusNoData means devices exist but none has a file for the month.
	StatusNoData BlockStatus = "no_data"
	StatusFailed BlockStatus = "failed"
)

// BlockSummary is the result of one block worker
type BlockSummary struct {
	Block            string                    `json:"block"`
	Status           BlockStatus               `json:"status"`
	Meters           int                       `json:"meters"`
	Files            int                       `json:"files"`
	FailedFiles      int                       `json:"failed_files"`
	Rate             BlockRateStatistics       `json:"rate"`
	Cumulative       BlockCumulativeStatistics `json:"cumulative"`
	RateMeters       []RateStatistics          `json:"rate_meters,omitempty"`
	CumulativeMeters []CumulativeStatistics    `json:"cumulative_meters,omitempty"`
	Diagnostics      []Diagnostics             `json:"diagnostics,omitempty"`
	Artifacts        []string                  `json:"artifacts,omitempty"`
	Error            string                    `json:"error,omitempty"`
	Duration         time.Duration             `json:"duration"`
}

// DistrictSummary rolls up the successful blocks of a run.
// Completeness fields are the simple mean of block percentages.
type DistrictSummary struct {
	Meters                 int     `json:"meters"`
	SuccessfulBlocks       int     `json:"successful_blocks"`
	EmptyBlocks            int     `json:"empty_blocks"`
	NoDataBlocks           int     `json:"no_data_blocks"`
	FailedBlocks           int     `json:"failed_blocks"`
	RateTotalized          float64 `json:"rate_totalized"`
	RateOperatingHours     float64 `json:"rate_operating_hours"`
	RateCompleteness       float64 `json:"rate_completeness"`
	MonthlyConsumption     float64 `json:"monthly_consumption"`
	CumulativeTotalized    float64 `json:"cumulative_totalized"`
	CumulativeCompleteness float64 `json:"cumulative_completeness"`
}

// RunSummary is everything a monthly run produced
type RunSummary struct {
	ID         string          `json:"id"`
	Month      time.Month      `json:"month"`
	Year       int             `json:"year"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at"`
	Blocks     []BlockSummary  `json:"blocks"`
	District   DistrictSummary `json:"district"`
	OutputDir  string          `json:"output_dir,omitempty"`
	Artifacts  []string        `json:"artifacts,omitempty"`
}

func (r *RunSummary) Runtime() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Succeeded reports whether at least one block was processed successfully.
func (r *RunSummary) Succeeded() bool {
	return r.District.SuccessfulBlocks > 0
}

// Diagnostics flattens the per-file diagnostics of every block in block order.
func (r *RunSummary) Diagnostics() []Diagnostics {
	var out []Diagnostics
	for _, b := range r.Blocks {
		out = append(out, b.Diagnostics...)
	}
	return out
}

// BlocksWithStatus returns the blocks that ended in the given status
func (r *RunSummary) BlocksWithStatus(status BlockStatus) []BlockSummary {
	var out []BlockSummary
	for _, b := range r.Blocks {
		if b.Status == status {
			out = append(out, b)
		}
	}
	return out
}

// RunRequest asks the service to process one month
type RunRequest struct {
	RequestID string   `json:"requestId"`
	Month     int      `json:"month"`
	Year      int      `json:"year"`
	Blocks    []string `json:"blocks,omitempty"`
}
