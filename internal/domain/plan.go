/**
 * @description
 * Static adoption plan catalog and the single conversion point between major
 * and minor currency units. Every price that leaves this service for the
 * payment provider goes through ToMinorUnits.
 */
package domain

import (
	"errors"
	"math"
)

// MinorUnitsPerMajor is the number of minor units (paise) in one major unit (rupee).
const MinorUnitsPerMajor = 100

// MaxAmountMinor is the largest amount the payment provider accepts (eight digits).
const MaxAmountMinor int64 = 99_999_999

// DefaultPlanYears is the plan selected when the caller does not choose one.
const DefaultPlanYears = 1

var ErrUnknownPlan = errors.New("unknown adoption plan")

// AdoptionPlan is one fixed-price adoption duration tier.
type AdoptionPlan struct {
	Years         int    `json:"duration"`
	Price         int64  `json:"price"`
	DiscountLabel string `json:"discountLabel,omitempty"`
}

// MinorAmount returns the plan price in minor currency units.
func (p AdoptionPlan) MinorAmount() int64 {
	return ToMinorUnits(float64(p.Price))
}

var planCatalog = []AdoptionPlan{
	{Years: 1, Price: 1999},
	{Years: 2, Price: 3599, DiscountLabel: "Save 10%"},
	{Years: 5, Price: 7999, DiscountLabel: "Save 20%"},
}

// Plans returns a copy of the plan catalog ordered by duration.
func Plans() []AdoptionPlan {
	out := make([]AdoptionPlan, len(planCatalog))
	copy(out, planCatalog)
	return out
}

// PickPlan returns the plan whose duration matches years. Zero selects the
// default 1-year plan.
func PickPlan(years int) (AdoptionPlan, error) {
	if years == 0 {
		years = DefaultPlanYears
	}
	for _, plan := range planCatalog {
		if plan.Years == years {
			return plan, nil
		}
	}
	return AdoptionPlan{}, ErrUnknownPlan
}

// ToMinorUnits converts an amount in major units to integer minor units,
// rounding half away from zero.
func ToMinorUnits(major float64) int64 {
	return int64(math.Round(major * MinorUnitsPerMajor))
}

// MinorAmountFor converts a major-unit amount and reports whether the result is
// a chargeable amount between 1 and MaxAmountMinor. The range is checked on the
// float so huge inputs never overflow int64.
func MinorAmountFor(major float64) (int64, bool) {
	if math.IsNaN(major) || math.IsInf(major, 0) || major <= 0 {
		return 0, false
	}
	scaled := math.Round(major * MinorUnitsPerMajor)
	if scaled < 1 || scaled > float64(MaxAmountMinor) {
		return 0, false
	}
	return int64(scaled), true
}

// ToMajorUnits converts minor units back to major units for display.
func ToMajorUnits(minor int64) float64 {
	return float64(minor) / MinorUnitsPerMajor
}
