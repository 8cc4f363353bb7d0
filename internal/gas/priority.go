// internal/gas/priority.go
package gas

import "time"

// Priority classifies the current gas price against its rolling average.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// profile pairs a classification threshold (multiple of the rolling
// average) with the wait recommended for the price to revert.
type profile struct {
	Threshold float64
	Wait      time.Duration
}

// classifyOrder is checked top-down; the first matching threshold wins.
var classifyOrder = []Priority{PriorityUrgent, PriorityHigh, PriorityMedium}

func defaultProfiles() map[Priority]profile {
	return map[Priority]profile{
		PriorityUrgent: {Threshold: 1.5, Wait: 15 * time.Minute},
		PriorityHigh:   {Threshold: 1.3, Wait: 10 * time.Minute},
		PriorityMedium: {Threshold: 1.1, Wait: 5 * time.Minute},
	}
}
