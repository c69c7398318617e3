package graph

import (
	"regexp"
	"strconv"
)

const (
	defaultProjectLabel = "Project"
	defaultLabel        = "Untitled"
)

var counterSuffix = regexp.MustCompile(`^(.*) \((\d+)\)$`)

// UniqueLabel returns label when it is free, otherwise the base label with the
// lowest free " (n)" counter, n >= 2. An existing counter suffix is replaced
// rather than stacked, so "A (2)" collides into "A (3)" and not "A (2) (2)".
func UniqueLabel(label string, taken func(string) bool) string {
	if label == "" {
		label = defaultLabel
	}
	if !taken(label) {
		return label
	}
	base := label
	if m := counterSuffix.FindStringSubmatch(label); m != nil && m[1] != "" {
		base = m[1]
	}
	for n := 2; ; n++ {
		candidate := base + " (" + strconv.Itoa(n) + ")"
		if !taken(candidate) {
			return candidate
		}
	}
}
