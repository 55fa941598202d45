package registry

import (
	"slices"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// CapabilitySet is a sorted, de-duplicated list of normalized capability tags.
type CapabilitySet []string

// NormalizeCapability folds a tag to NFC, trims it and lower-cases it so that
// "Data_Analysis" and "data_analysis " name the same capability.
func NormalizeCapability(tag string) string {
	return strings.ToLower(strings.TrimSpace(norm.NFC.String(tag)))
}

// NewCapabilitySet normalizes, de-duplicates and sorts tags. Empty tags are dropped.
func NewCapabilitySet(tags ...string) CapabilitySet {
	set := make(CapabilitySet, 0, len(tags))
	for _, t := range tags {
		if n := NormalizeCapability(t); n != "" {
			set = append(set, n)
		}
	}
	slices.Sort(set)
	return slices.Compact(set)
}

// Has reports whether the tag is in the set. The tag is normalized first.
func (s CapabilitySet) Has(tag string) bool {
	_, found := slices.BinarySearch(s, NormalizeCapability(tag))
	return found
}

// IsSuperset reports whether every tag of other is in s.
func (s CapabilitySet) IsSuperset(other CapabilitySet) bool {
	for _, t := range other {
		if !s.Has(t) {
			return false
		}
	}
	return true
}

// IntersectCount is |s ∩ other|.
func (s CapabilitySet) IntersectCount(other CapabilitySet) int {
	n := 0
	for _, t := range other {
		if s.Has(t) {
			n++
		}
	}
	return n
}

// Strings returns a copy of the tags.
func (s CapabilitySet) Strings() []string {
	return slices.Clone([]string(s))
}
