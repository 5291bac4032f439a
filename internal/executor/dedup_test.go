package executor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDedupSeenClaimsAndExpires(t *testing.T) {
	d := NewDedup(30 * time.Millisecond)

	assert.False(t, d.Seen("sig-1"), "first sight claims the signal")
	assert.True(t, d.Seen("sig-1"))
	assert.False(t, d.Seen("sig-2"), "IDs are independent")

	time.Sleep(40 * time.Millisecond)
	assert.False(t, d.Seen("sig-1"), "an expired entry can be claimed again")
}

func TestDedupForgetReleasesClaim(t *testing.T) {
	d := NewDedup(time.Minute)

	assert.False(t, d.Seen("sig-1"))
	d.Forget("sig-1")
	assert.False(t, d.Seen("sig-1"), "a forgotten signal can be claimed again")
	assert.True(t, d.Seen("sig-1"))
}

func TestDedupCleanupShrinksMap(t *testing.T) {
	d := NewDedup(10 * time.Millisecond)
	d.Seen("sig-1")
	d.Seen("sig-2")
	assert.Equal(t, 2, d.Len())

	time.Sleep(20 * time.Millisecond)
	d.Seen("sig-3")
	d.Cleanup()
	assert.Equal(t, 1, d.Len(), "only the fresh entry survives")
}
