package search

import (
	"time"

	"github.com/zkx401/pulse/dashboard"
)

// Preset settings for the dashboard lists
const (
	FacilitatorDebounce  = 200 * time.Millisecond
	FacilitatorMinLength = 2
	ActivityMinLength    = 3
)

// FacilitatorFields searches the facilitator name and privacy tier
func FacilitatorFields() []Field[dashboard.Facilitator] {
	return []Field[dashboard.Facilitator]{
		{Name: "name", Value: func(f dashboard.Facilitator) string { return f.Name }},
		{Name: "privacyLevel", Value: func(f dashboard.Facilitator) string { return string(f.PrivacyLevel) }},
	}
}

// ActivityFields searches the message, the kind and the facilitator
func ActivityFields() []Field[dashboard.Activity] {
	return []Field[dashboard.Activity]{
		{Name: "message", Value: func(a dashboard.Activity) string { return a.Message }},
		{Name: "type", Value: func(a dashboard.Activity) string { return string(a.Type) }},
		{Name: "facilitator", Value: dashboard.Activity.Facilitator},
	}
}

// NewFacilitatorIndex creates the facilitator table index
func NewFacilitatorIndex(rows []dashboard.Facilitator, opts ...Option) *Index[dashboard.Facilitator] {
	opts = append([]Option{WithDebounce(FacilitatorDebounce), WithMinLength(FacilitatorMinLength)}, opts...)
	return NewIndex(rows, FacilitatorFields(), opts...)
}

// NewActivityIndex creates the activity feed index
func NewActivityIndex(items []dashboard.Activity, opts ...Option) *Index[dashboard.Activity] {
	opts = append([]Option{WithMinLength(ActivityMinLength)}, opts...)
	return NewIndex(items, ActivityFields(), opts...)
}
