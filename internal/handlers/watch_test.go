package handlers

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVersionGateDropsStaleSnapshots(t *testing.T) {
	g := &versionGate{}
	var published []uint64
	pass := func(v uint64) bool {
		return g.pass(v, func() { published = append(published, v) })
	}

	assert.True(t, pass(1))
	assert.True(t, pass(3))
	// 2 was overtaken by 3 and must not overwrite it on the client
	assert.False(t, pass(2))
	assert.False(t, pass(3))
	assert.True(t, pass(4))

	assert.Equal(t, []uint64{1, 3, 4}, published)
}
