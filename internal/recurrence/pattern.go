// Package recurrence decides when a recurring todo spawns its next instance.
//
// Everything here is pure: callers pass the current time in, nothing reads
// the clock or touches storage.
package recurrence

import "strings"

// Pattern is the parsed form of a task's recurrence pattern string.
type Pattern int

const (
	Unknown Pattern = iota
	Daily
	Weekly
	Monthly
	Yearly
)

var patternNames = map[Pattern]string{
	Unknown: "UNKNOWN",
	Daily:   "DAILY",
	Weekly:  "WEEKLY",
	Monthly: "MONTHLY",
	Yearly:  "YEARLY",
}

// ParsePattern maps a stored pattern string to a Pattern, ignoring case and
// surrounding spaces. Anything unrecognised is Unknown.
func ParsePattern(raw string) Pattern {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "DAILY":
		return Daily
	case "WEEKLY":
		return Weekly
	case "MONTHLY":
		return Monthly
	case "YEARLY":
		return Yearly
	default:
		return Unknown
	}
}

// Valid reports whether p is a pattern that ever produces instances.
func (p Pattern) Valid() bool {
	return p >= Daily && p <= Yearly
}

func (p Pattern) String() string {
	if name, ok := patternNames[p]; ok {
		return name
	}
	return patternNames[Unknown]
}

// Patterns lists the recognised patterns in cadence order.
func Patterns() []Pattern {
	return []Pattern{Daily, Weekly, Monthly, Yearly}
}
