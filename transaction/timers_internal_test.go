package transaction

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// TestRetransmitDoublingStaysUnderTimerB exercises the Timer A/E
// doubling sequence used by onRetransmitFire and asserts the six
// retransmits before Timer B (SPEC_FULL §8 scenario S2: "6
// retransmits for T1=500ms, T2=4s, Timer B=32s") land before the
// 32-second deadline without needing to run the clock for real.
func TestRetransmitDoublingStaysUnderTimerB(t *testing.T) {
	wait := T1
	var elapsed time.Duration
	var intervals []time.Duration
	for i := 0; i < 6; i++ {
		intervals = append(intervals, wait)
		elapsed += wait
		wait = nextRetransmit(wait)
	}
	assert.Equal(t, []time.Duration{
		500 * time.Millisecond,
		time.Second,
		2 * time.Second,
		4 * time.Second,
		4 * time.Second,
		4 * time.Second,
	}, intervals)
	assert.Less(t, elapsed, TimerB)
}

func TestTimerKDuration(t *testing.T) {
	assert.Equal(t, T4, TimerKDuration(false))
	assert.Equal(t, time.Duration(0), TimerKDuration(true))
}
