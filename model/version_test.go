package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCompareVersions(t *testing.T) {
	assert.Equal(t, 0, CompareVersions("2.4.0.1", "2.4.0.1"))
	assert.Equal(t, -1, CompareVersions("2.4.0.1", "2.4.1.0"))
	assert.Equal(t, 1, CompareVersions("3.0", "2.9.9.9"))

	// missing and non-numeric components compare as zero
	assert.Equal(t, 0, CompareVersions("2.4", "2.4.0.0"))
	assert.Equal(t, 0, CompareVersions("2.4.x.0", "2.4.0.0"))
}

func TestCompareVersionsIsAntisymmetric(t *testing.T) {
	pairs := [][2]string{
		{"1.2.3.4", "1.2.3.5"},
		{"2.0", "1.9.9.9"},
		{"2.4.0.1", "2.4.0.1"},
	}
	for _, pair := range pairs {
		assert.Equal(t, -CompareVersions(pair[1], pair[0]), CompareVersions(pair[0], pair[1]))
	}
}

func TestIgnoreVersionChecksForcesEquality(t *testing.T) {
	IgnoreVersionChecks = true
	defer func() { IgnoreVersionChecks = false }()

	assert.Equal(t, 0, CompareVersions("1.0.0.0", "9.9.9.9"))
}
