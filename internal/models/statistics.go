package models

// RateStatistics summarizes one device's RT column
type RateStatistics struct {
	Device         string  `json:"device"`
	Totalized      float64 `json:"totalized"`
	Average        float64 `json:"average"`
	OperatingHours float64 `json:"operating_hours"`
	HealthyPoints  int     `json:"healthy_points"`
	FaultyPoints   int     `json:"faulty_points"`
	TotalPoints    int     `json:"total_points"`
	Completeness   float64 `json:"completeness"`
}

// CumulativeStatistics summarizes one device's RTH column.
// MonthlyConsumption is the billing value: last healthy minus first healthy reading.
type CumulativeStatistics struct {
	Device              string  `json:"device"`
	MonthlyConsumption  float64 `json:"monthly_consumption"`
	Totalized           float64 `json:"totalized"`
	UnfilteredTotalized float64 `json:"unfiltered_totalized"`
	FirstValue          float64 `json:"first_value"`
	FirstTimestamp      string  `json:"first_timestamp"`
	LastValue           float64 `json:"last_value"`
	LastTimestamp       string  `json:"last_timestamp"`
	HealthyPoints       int     `json:"healthy_points"`
	FaultyPoints        int     `json:"faulty_points"`
	TotalPoints         int     `json:"total_points"`
	Completeness        float64 `json:"completeness"`
}

// BlockRateStatistics is the RT rollup over every meter of a block
type BlockRateStatistics struct {
	Block          string  `json:"block"`
	Meters         int     `json:"meters"`
	Totalized      float64 `json:"totalized"`
	Average        float64 `json:"average"`
	OperatingHours float64 `json:"operating_hours"`
	HealthyPoints  int     `json:"healthy_points"`
	TotalPoints    int     `json:"total_points"`
	Completeness   float64 `json:"completeness"`
}

// BlockCumulativeStatistics is the RTH rollup over every meter of a block
type BlockCumulativeStatistics struct {
	Block               string  `json:"block"`
	Meters              int     `json:"meters"`
	MonthlyConsumption  float64 `json:"monthly_consumption"`
	Totalized           float64 `json:"totalized"`
	UnfilteredTotalized float64 `json:"unfiltered_totalized"`
	HealthyPoints       int     `json:"healthy_points"`
	TotalPoints         int     `json:"total_points"`
	Completeness        float64 `json:"completeness"`
}
