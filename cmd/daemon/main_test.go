package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNextRunTime(t *testing.T) {
	now := time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)
	slots := []string{"07:00", "13:00", "19:00"}

	// Mid-morning: the 13:00 slot is next.
	next := nextRunTime(now, slots)
	assert.Equal(t, time.Date(2026, 8, 28, 13, 0, 0, 0, time.UTC), next)

	// After the last slot the schedule rolls into tomorrow.
	late := time.Date(2026, 8, 28, 20, 0, 0, 0, time.UTC)
	next = nextRunTime(late, slots)
	assert.Equal(t, time.Date(2026, 8, 29, 7, 0, 0, 0, time.UTC), next)

	// An exact slot hit schedules the next occurrence, not now.
	at := time.Date(2026, 8, 28, 13, 0, 0, 0, time.UTC)
	next = nextRunTime(at, slots)
	assert.Equal(t, time.Date(2026, 8, 28, 19, 0, 0, 0, time.UTC), next)
}

func TestNextRunTimeNoUsableSlots(t *testing.T) {
	now := time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)
	assert.Equal(t, now.Add(time.Hour), nextRunTime(now, nil))
	assert.Equal(t, now.Add(time.Hour), nextRunTime(now, []string{"bogus"}))
}
