package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseKind(t *testing.T) {
	k, ok := ParseKind(" device_orientation ")
	assert.True(t, ok)
	assert.Equal(t, KindDeviceOrientation, k)

	_, ok = ParseKind("THERMAL")
	assert.False(t, ok)

	for _, k := range Kinds() {
		parsed, ok := ParseKind(k.String())
		assert.True(t, ok)
		assert.Equal(t, k, parsed)
	}
	assert.Equal(t, "Kind(99)", Kind(99).String())
}

func TestStorageEqual(t *testing.T) {
	a := Storage{Units: []StorageUnit{{Path: "/", Capacity: 10}}}
	b := Storage{Units: []StorageUnit{{Path: "/", Capacity: 10}}}
	assert.True(t, a.Equal(b))

	b.Units[0].AvailableCapacity = 1
	assert.False(t, a.Equal(b))
	assert.False(t, a.Equal(Storage{}))
	assert.True(t, Storage{}.Equal(Storage{Units: []StorageUnit{}}))
}
