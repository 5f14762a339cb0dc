package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSystem_Now(t *testing.T) {
	now := System{}.Now()

	require.Equal(t, time.UTC, now.Location(), "system clock should report UTC")
	require.WithinDuration(t, time.Now(), now, time.Second)
}

func TestFake(t *testing.T) {
	start := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	c := NewFake(start)

	require.Equal(t, start, c.Now())

	c.Advance(15 * time.Minute)
	require.Equal(t, start.Add(15*time.Minute), c.Now())

	c.Set(start)
	require.Equal(t, start, c.Now(), "set should override advanced time")
}
