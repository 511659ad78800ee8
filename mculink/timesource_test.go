package mculink

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCachedTime_ZeroValue(t *testing.T) {
	var ct CachedTime

	assert.Zero(t, ct.ReferenceTime())
	assert.Zero(t, ct.TimezoneOffset())
}

func TestCachedTime_Set(t *testing.T) {
	var ct CachedTime

	ct.Set(1700000000, -4)
	assert.Equal(t, uint32(1700000000), ct.ReferenceTime())
	assert.Equal(t, int8(-4), ct.TimezoneOffset())

	ct.Set(1700000100, 32)
	assert.Equal(t, uint32(1700000100), ct.ReferenceTime())
	assert.Equal(t, int8(32), ct.TimezoneOffset())
}
