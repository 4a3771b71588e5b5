package risk

import (
	"sort"
	"time"
)

// ROIStep is one rung of the minimum-profit exit ladder: after AfterMinutes
// of position age, the host may exit once profit reaches MinProfit.
type ROIStep struct {
	AfterMinutes int     `json:"after_minutes"`
	MinProfit    float64 `json:"min_profit"`
}

// ROILadder is a backstop take-profit schedule consulted by the host
// alongside the exit signals. The trailing exit is the primary profit-taking
// mechanism; the ladder only caps how long a stale position is held.
type ROILadder []ROIStep

// ExitProfitOffset is the minimum profit cushion the host should require
// before acting on a profit-only exit.
const ExitProfitOffset = 0.005

// DefaultROILadder returns the production ladder: 2% immediately, stepping
// down to break-even after 24 hours.
func DefaultROILadder() ROILadder {
	return ROILadder{
		{AfterMinutes: 0, MinProfit: 0.02},
		{AfterMinutes: 60, MinProfit: 0.015},
		{AfterMinutes: 240, MinProfit: 0.005},
		{AfterMinutes: 1440, MinProfit: 0.0},
	}
}

// MinProfitAt returns the minimum profit threshold for a position of the
// given age. Steps are matched on the largest AfterMinutes not exceeding the
// age; an empty ladder never triggers (returns +Inf behavior via ok=false).
func (l ROILadder) MinProfitAt(age time.Duration) (float64, bool) {
	if len(l) == 0 {
		return 0, false
	}

	steps := make([]ROIStep, len(l))
	copy(steps, l)
	sort.Slice(steps, func(i, j int) bool { return steps[i].AfterMinutes < steps[j].AfterMinutes })

	minutes := int(age.Minutes())
	if minutes < steps[0].AfterMinutes {
		return 0, false
	}

	current := steps[0]
	for _, s := range steps[1:] {
		if minutes >= s.AfterMinutes {
			current = s
		}
	}
	return current.MinProfit, true
}
