package testutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFrozenClockDefaults(t *testing.T) {
	c := NewFrozenClock(time.Time{})
	assert.Equal(t, FrozenInstant, c.Now())
}

func TestFrozenClockAdvance(t *testing.T) {
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewFrozenClock(at)

	got := c.Advance(time.Hour)
	assert.Equal(t, at.Add(time.Hour), got)
	assert.Equal(t, got, c.Now())

	// Negative advances are ignored rather than rewinding.
	assert.Equal(t, got, c.Advance(-time.Minute))
}
