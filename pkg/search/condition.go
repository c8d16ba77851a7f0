// Package search drives progressive scans over the memory of a target
// process: one initial full scan over selected ranges followed by any number
// of refinement passes that narrow the match set.
package search

import "fmt"

// Condition is a refine verb. The numeric values are wire identifiers
// shared with the scan engine and must remain stable across versions.
type Condition uint8

const (
	// Initial marks a first full scan. It is never usable as a refine step.
	Initial Condition = 0
	// Unchanged keeps values equal to the previous snapshot.
	Unchanged Condition = 1
	// Changed keeps values different from the previous snapshot.
	Changed Condition = 2
	// Increased keeps values strictly greater than the previous snapshot.
	Increased Condition = 3
	// Decreased keeps values strictly smaller than the previous snapshot.
	Decreased Condition = 4
	// IncreasedBy keeps values that grew by exactly the given delta.
	IncreasedBy Condition = 5
	// DecreasedBy keeps values that shrank by exactly the given delta.
	DecreasedBy Condition = 6
	// IncreasedByRange keeps values that grew by an amount inside the
	// inclusive (low, high) pair.
	IncreasedByRange Condition = 7
	// DecreasedByRange keeps values that shrank by an amount inside the
	// inclusive (low, high) pair.
	DecreasedByRange Condition = 8
	// IncreasedByPercent keeps values that grew by at least the given
	// percentage of the previous value.
	IncreasedByPercent Condition = 9
	// DecreasedByPercent keeps values that shrank by at least the given
	// percentage of the previous value.
	DecreasedByPercent Condition = 10
)

var conditionNames = map[Condition]string{
	Initial:            "initial",
	Unchanged:          "unchanged",
	Changed:            "changed",
	Increased:          "increased",
	Decreased:          "decreased",
	IncreasedBy:        "increased-by",
	DecreasedBy:        "decreased-by",
	IncreasedByRange:   "increased-by-range",
	DecreasedByRange:   "decreased-by-range",
	IncreasedByPercent: "increased-by-percent",
	DecreasedByPercent: "decreased-by-percent",
}

// FromNativeID maps a wire identifier back to a condition. The mapping is
// total over 0..10 and absent for everything else.
func FromNativeID(id uint8) (Condition, bool) {
	c := Condition(id)
	_, ok := conditionNames[c]
	return c, ok
}

// ConditionByName maps a condition name (as printed by String) back to the
// condition.
func ConditionByName(name string) (Condition, bool) {
	for c, n := range conditionNames {
		if n == name {
			return c, true
		}
	}
	return 0, false
}

// NativeID returns the stable wire identifier of the condition.
func (c Condition) NativeID() uint8 {
	return uint8(c)
}

func (c Condition) String() string {
	if name, ok := conditionNames[c]; ok {
		return name
	}
	return fmt.Sprintf("condition(%d)", uint8(c))
}

// NeedsParam returns true for the arity-1 verbs, which consume a single
// delta or percent parameter.
func (c Condition) NeedsParam() bool {
	switch c {
	case IncreasedBy, DecreasedBy, IncreasedByPercent, DecreasedByPercent:
		return true
	}
	return false
}

// NeedsTwoParams returns true for the arity-2 verbs, which consume an
// inclusive (low, high) pair.
func (c Condition) NeedsTwoParams() bool {
	switch c {
	case IncreasedByRange, DecreasedByRange:
		return true
	}
	return false
}

// Refinable returns true if the condition can be used for a refine pass.
// Every verb except Initial is refine-eligible.
func (c Condition) Refinable() bool {
	_, ok := conditionNames[c]
	return ok && c != Initial
}

// matches reports whether a value transition old→new satisfies the
// condition. Deltas use wrapping arithmetic; the percent verbs treat a zero
// previous value as matched by any move in the right direction.
func (c Condition) matches(old, new int64, p1, p2 int64) bool {
	diff := new - old
	switch c {
	case Initial:
		return true
	case Unchanged:
		return old == new
	case Changed:
		return old != new
	case Increased:
		return new > old
	case Decreased:
		return new < old
	case IncreasedBy:
		return diff == p1
	case DecreasedBy:
		return diff == -p1
	case IncreasedByRange:
		return diff >= p1 && diff <= p2
	case DecreasedByRange:
		return -diff >= p1 && -diff <= p2
	case IncreasedByPercent:
		if old == 0 {
			return new > 0
		}
		threshold := int64(float64(old) * (1.0 + float64(p1)/100.0))
		return new >= threshold
	case DecreasedByPercent:
		if old == 0 {
			return new < 0
		}
		threshold := int64(float64(old) * (1.0 - float64(p1)/100.0))
		return new <= threshold
	}
	return false
}
