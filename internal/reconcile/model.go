// Package reconcile compares the independently-mutated on-hand views of the
// ERP and the warehouse system and classifies their discrepancies.
package reconcile

import (
	"math"
	"time"
)

// Classification buckets a variance. Boundary values fall into the stricter
// band: exactly the matched threshold is MINOR, exactly the major threshold is
// still MINOR.
type Classification string

const (
	ClassMatched Classification = "matched"
	ClassMinor   Classification = "minor"
	ClassMajor   Classification = "major"
)

// Record is the append-only audit result for one (material, location) pair in
// one cycle. Records are never updated, only superseded by the next cycle.
type Record struct {
	ID             int64          `json:"id"`
	Material       string         `json:"material"`
	Location       string         `json:"location"`
	ERPQty         float64        `json:"erp_qty"`
	WMSQty         float64        `json:"wms_qty"`
	VariancePct    float64        `json:"variance_pct"`
	Classification Classification `json:"classification"`
	CreatedAt      time.Time      `json:"created_at"`
}

// Thresholds holds the variance band limits in percent.
type Thresholds struct {
	MatchedPct float64
	MajorPct   float64
}

// DefaultThresholds mirror the recognized configuration defaults.
var DefaultThresholds = Thresholds{MatchedPct: 0.1, MajorPct: 2.0}

// VariancePct computes the discrepancy between two quantities in percent.
// The denominator is floored at 1 so a pair that exists on only one side still
// yields a finite variance.
func VariancePct(erpQty, wmsQty float64) float64 {
	return math.Abs(erpQty-wmsQty) / math.Max(math.Max(erpQty, wmsQty), 1) * 100
}

// Classify places a variance into its band.
func (t Thresholds) Classify(variancePct float64) Classification {
	switch {
	case variancePct < t.MatchedPct:
		return ClassMatched
	case variancePct <= t.MajorPct:
		return ClassMinor
	default:
		return ClassMajor
	}
}
