// Package analysis derives billing statistics from block tables.
//
// Block completeness is point-weighted (healthy points over total points of
// every meter) while district completeness is the plain mean of the block
// percentages. Reports already issued depend on both formulas.
package analysis

import (
	"fmt"

	"github.com/kanna-karuppasamy/smart-grid-metering-parser/internal/blocktable"
	"github.com/kanna-karuppasamy/smart-grid-metering-parser/internal/models"
	"github.com/kanna-karuppasamy/smart-grid-metering-parser/internal/timeline"
)

// NotAvailable marks a missing first/last healthy timestamp.
const NotAvailable = "N/A"

// RateStats summarizes an RT column. Values above zero are healthy.
func RateStats(device string, values []float64) models.RateStatistics {
	s := models.RateStatistics{Device: device, TotalPoints: len(values)}
	for _, v := range values {
		if v > 0 {
			s.Totalized += v
			s.HealthyPoints++
		}
	}
	s.FaultyPoints = s.TotalPoints - s.HealthyPoints
	if s.HealthyPoints > 0 {
		s.Average = s.Totalized / float64(s.HealthyPoints)
	}
	s.OperatingHours = float64(s.HealthyPoints) / 60
	s.Completeness = PointWeightedCompleteness(s.HealthyPoints, s.TotalPoints)
	return s
}

// CumulativeStats summarizes an RTH column. Values above zero are healthy.
// The monthly consumption is the last healthy value minus the first, by
// position on the grid.
func CumulativeStats(device string, grid *timeline.Grid, values []float64) models.CumulativeStatistics {
	s := models.CumulativeStatistics{
		Device:         device,
		TotalPoints:    len(values),
		FirstTimestamp: NotAvailable,
		LastTimestamp:  NotAvailable,
	}

	first, last := -1, -1
	for i, v := range values {
		s.UnfilteredTotalized += v
		if v <= 0 {
			continue
		}
		s.Totalized += v
		s.HealthyPoints++
		if first < 0 {
			first = i
		}
		last = i
	}
	s.FaultyPoints = s.TotalPoints - s.HealthyPoints

	if first >= 0 {
		s.FirstValue = values[first]
		s.LastValue = values[last]
		s.MonthlyConsumption = s.LastValue - s.FirstValue
		s.FirstTimestamp = stamp(grid, first)
		s.LastTimestamp = stamp(grid, last)
	}
	s.Completeness = PointWeightedCompleteness(s.HealthyPoints, s.TotalPoints)
	return s
}

func stamp(grid *timeline.Grid, i int) string {
	if grid == nil || i >= grid.Len() {
		return NotAvailable
	}
	return grid.Timestamp(i)
}

// BlockRate rolls meter RT statistics up to the block.
func BlockRate(block string, meters []models.RateStatistics) models.BlockRateStatistics {
	b := models.BlockRateStatistics{Block: block, Meters: len(meters)}
	for _, m := range meters {
		b.Totalized += m.Totalized
		b.OperatingHours += m.OperatingHours
		b.HealthyPoints += m.HealthyPoints
		b.TotalPoints += m.TotalPoints
	}
	if b.HealthyPoints > 0 {
		b.Average = b.Totalized / float64(b.HealthyPoints)
	}
	b.Completeness = PointWeightedCompleteness(b.HealthyPoints, b.TotalPoints)
	return b
}

// BlockCumulative rolls meter RTH statistics up to the block.
func BlockCumulative(block string, meters []models.CumulativeStatistics) models.BlockCumulativeStatistics {
	b := models.BlockCumulativeStatistics{Block: block, Meters: len(meters)}
	for _, m := range meters {
		b.MonthlyConsumption += m.MonthlyConsumption
		b.Totalized += m.Totalized
		b.UnfilteredTotalized += m.UnfilteredTotalized
		b.HealthyPoints += m.HealthyPoints
		b.TotalPoints += m.TotalPoints
	}
	b.Completeness = PointWeightedCompleteness(b.HealthyPoints, b.TotalPoints)
	return b
}

// BlockStatistics is the full analysis of one block table.
type BlockStatistics struct {
	RateMeters       []models.RateStatistics
	CumulativeMeters []models.CumulativeStatistics
	Rate             models.BlockRateStatistics
	Cumulative       models.BlockCumulativeStatistics
}

// AnalyzeBlock computes meter and block statistics in device order.
func AnalyzeBlock(t *blocktable.Table) (BlockStatistics, error) {
	var out BlockStatistics
	for _, d := range t.Devices() {
		rt, err := t.Column(d, models.KindRate)
		if err != nil {
			return BlockStatistics{}, fmt.Errorf("failed to read rate column: %w", err)
		}
		rth, err := t.Column(d, models.KindCumulative)
		if err != nil {
			return BlockStatistics{}, fmt.Errorf("failed to read cumulative column: %w", err)
		}
		out.RateMeters = append(out.RateMeters, RateStats(d, rt))
		out.CumulativeMeters = append(out.CumulativeMeters, CumulativeStats(d, t.Grid(), rth))
	}
	out.Rate = BlockRate(t.Block(), out.RateMeters)
	out.Cumulative = BlockCumulative(t.Block(), out.CumulativeMeters)
	return out, nil
}

// District sums the successful blocks and averages their completeness.
// Blocks in any other status only contribute to the status counters.
func District(blocks []models.BlockSummary) models.DistrictSummary {
	var (
		d      models.DistrictSummary
		rtPct  []float64
		rthPct []float64
	)
	for _, b := range blocks {
		switch b.Status {
		case models.StatusSuccess:
			d.SuccessfulBlocks++
		case models.StatusEmpty:
			d.EmptyBlocks++
			continue
		case models.StatusNoData:
			d.NoDataBlocks++
			continue
		default:
			d.FailedBlocks++
			continue
		}

		d.Meters += b.Meters
		d.RateTotalized += b.Rate.Totalized
		d.RateOperatingHours += b.Rate.OperatingHours
		d.MonthlyConsumption += b.Cumulative.MonthlyConsumption
		d.CumulativeTotalized += b.Cumulative.Totalized
		rtPct = append(rtPct, b.Rate.Completeness)
		rthPct = append(rthPct, b.Cumulative.Completeness)
	}
	d.RateCompleteness = MeanCompleteness(rtPct)
	d.CumulativeCompleteness = MeanCompleteness(rthPct)
	return d
}

// PointWeightedCompleteness is healthy/total*100 rounded to two decimals.
func PointWeightedCompleteness(healthy, total int) float64 {
	return models.Percentage(healthy, total)
}

// MeanCompleteness is the simple mean of the given percentages.
func MeanCompleteness(percentages []float64) float64 {
	if len(percentages) == 0 {
		return 0
	}
	var sum float64
	for _, p := range percentages {
		sum += p
	}
	return sum / float64(len(percentages))
}
