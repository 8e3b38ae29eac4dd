package models

import (
	"math"
	"time"
)

// Kind identifies the metering series a log file carries.
type Kind string

const (
	// KindRate is the instantaneous per-minute reading (RT).
	KindRate Kind = "RT"
	// KindCumulative is the accumulating totalizer reading (RTH).
	KindCumulative Kind = "RTH"
)

// Kinds lists the metering kinds in processing order.
var Kinds = []Kind{KindRate, KindCumulative}

func (k Kind) String() string {
	return string(k)
}

// Device is a meter folder and the block/unit identity encoded in its name.
type Device struct {
	Name  string `json:"name"`
	Block string `json:"block"`
	Unit  string `json:"unit"`
}

// Reading represents one parsed data line of a meter log
type Reading struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
	Healthy   bool      `json:"healthy"`
}

// Diagnostics summarizes the parse of a single (device, file) pair
type Diagnostics struct {
	// ID is the "device<delim>file" identifier of the log.
	ID                 string   `json:"id"`
	Device             string   `json:"device"`
	File               string   `json:"file"`
	Kind               Kind     `json:"kind"`
	Encoding           string   `json:"encoding,omitempty"`
	TotalLines         int      `json:"total_lines"`
	ParsedLines        int      `json:"parsed_lines"`
	HealthyLines       int      `json:"healthy_lines"`
	FaultyLines        int      `json:"faulty_lines"`
	FaultyPercentage   float64  `json:"faulty_percentage"`
	FailureTimestamps  []string `json:"failure_timestamps"`
	RecoveryTimestamps []string `json:"recovery_timestamps"`
	CorruptedLines     int      `json:"corrupted_lines"`
	CommentLines       int      `json:"comment_lines"`
	EmptyLines         int      `json:"empty_lines"`
	OutOfOrderLines    int      `json:"out_of_order_lines"`
	Error              string   `json:"error,omitempty"`
}

// Failed reports whether the file could not be read at all.
func (d Diagnostics) Failed() bool {
	return d.Error != ""
}

// Percentage returns part/whole*100 rounded to two decimals, or 0 when whole is 0.
func Percentage(part, whole int) float64 {
	if whole <= 0 {
		return 0
	}
	return Round2(float64(part) / float64(whole) * 100)
}

// Round2 rounds half away from zero to two decimal places.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
