package model

import (
	"strconv"
	"strings"
)

// IgnoreVersionChecks forces every version comparison to report equality.
// Set once at startup from configuration.
var IgnoreVersionChecks bool

// CompareVersions compares two four-part dotted versions component-wise,
// returning -1, 0 or 1. Missing components compare as zero; non-numeric
// components compare as zero.
func CompareVersions(a, b string) int {
	if IgnoreVersionChecks {
		return 0
	}

	left := versionParts(a)
	right := versionParts(b)
	for i := 0; i < 4; i++ {
		if left[i] < right[i] {
			return -1
		}
		if left[i] > right[i] {
			return 1
		}
	}
	return 0
}

func versionParts(v string) [4]int {
	var parts [4]int
	for i, p := range strings.SplitN(v, ".", 4) {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			continue
		}
		parts[i] = n
	}
	return parts
}
