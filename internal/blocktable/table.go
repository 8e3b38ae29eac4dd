// Package blocktable holds the per-minute rate and cumulative columns of one block.
package blocktable

import (
	"errors"
	"fmt"

	"github.com/kanna-karuppasamy/smart-grid-metering-parser/internal/models"
	"github.com/kanna-karuppasamy/smart-grid-metering-parser/internal/timeline"
)

var ErrUnknownDevice = errors.New("device is not part of the block")

type columns struct {
	rate       []float64
	cumulative []float64
}

// Table is a timeline grid extended with two zero-filled columns per device.
// It is owned by a single block worker.
type Table struct {
	block   string
	grid    *timeline.Grid
	devices []string
	cols    map[string]*columns
}

// MergeResult counts how the readings of one merge landed on the grid.
type MergeResult struct {
	Matched int
	// Dropped readings fall outside the month or off a whole minute.
	Dropped int
}

// New builds a zero-filled table for the devices, in the given order.
// Duplicate device names share one column pair.
func New(block string, grid *timeline.Grid, devices []string) *Table {
	t := &Table{
		block: block,
		grid:  grid,
		cols:  make(map[string]*columns, len(devices)),
	}
	for _, d := range devices {
		if _, ok := t.cols[d]; ok {
			continue
		}
		t.devices = append(t.devices, d)
		t.cols[d] = &columns{
			rate:       make([]float64, grid.Len()),
			cumulative: make([]float64, grid.Len()),
		}
	}
	return t
}

func (t *Table) Block() string { return t.block }
func (t *Table) Grid() *timeline.Grid { return t.grid }
func (t *Table) Len() int { return t.grid.Len() }
func (t *Table) Devices() []string { return append([]string(nil), t.devices...) }

// Merge left-joins readings onto the device's column for kind. Healthy
// readings contribute their value and unhealthy ones contribute 0. Minutes
// without a reading keep their current value, so several files for one
// device can be merged in turn; a later reading for the same minute wins.
func (t *Table) Merge(device string, kind models.Kind, readings []models.Reading) (MergeResult, error) {
	col, err := t.column(device, kind)
	if err != nil {
		return MergeResult{}, err
	}

	var res MergeResult
	for _, r := range readings {
		i, ok := t.grid.Index(r.Timestamp)
		if !ok {
			res.Dropped++
			continue
		}
		if r.Healthy {
			col[i] = r.Value
		} else {
			col[i] = 0
		}
		res.Matched++
	}
	return res, nil
}

// Column returns the device's column for kind. Callers must not modify it.
func (t *Table) Column(device string, kind models.Kind) ([]float64, error) {
	return t.column(device, kind)
}

func (t *Table) column(device string, kind models.Kind) ([]float64, error) {
	c, ok := t.cols[device]
	if !ok {
		return nil, fmt.Errorf("%w: %s in block %s", ErrUnknownDevice, device, t.block)
	}
	switch kind {
	case models.KindRate:
		return c.rate, nil
	case models.KindCumulative:
		return c.cumulative, nil
	}
	return nil, fmt.Errorf("unknown metering kind %q", kind)
}

// ColumnName is the header used for a device column in exports, e.g. "J_B_82_10_27_RT".
func ColumnName(device string, kind models.Kind) string {
	return device + "_" + kind.String()
}

// Header returns the export header: timestamp, date, time, then RT and RTH per device.
func (t *Table) Header() []string {
	h := make([]string, 0, 3+2*len(t.devices))
	h = append(h, "timestamp", "date", "time")
	for _, d := range t.devices {
		h = append(h, ColumnName(d, models.KindRate), ColumnName(d, models.KindCumulative))
	}
	return h
}
