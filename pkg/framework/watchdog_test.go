package framework

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWatchdog(t *testing.T) {
	var stalls []string
	w := NewWatchdog(time.Second)
	w.OnStall = func(name string, silent time.Duration) {
		stalls = append(stalls, name)
	}
	w.Report("downlink")
	now := time.Now()
	require.Empty(t, w.Check(now))

	require.Equal(t, []string{"downlink"}, w.Check(now.Add(2*time.Second)))
	require.Empty(t, w.Check(now.Add(3*time.Second)), "reported once")

	w.Report("downlink")
	require.Empty(t, w.Check(time.Now()))
	require.Equal(t, []string{"downlink"}, w.Check(time.Now().Add(2*time.Second)))
	require.Equal(t, []string{"downlink", "downlink"}, stalls)
}
