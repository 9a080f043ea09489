package loop

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTickRunsSignalsQueriesThenTicks(t *testing.T) {
	l := New()
	var got []string

	l.Once(OnTick, func() { got = append(got, "tick-1") })
	l.Once(OnQuery, func() { got = append(got, "query") })
	l.Once(OnSignal, func() { got = append(got, "signal") })
	l.Once(OnTick, func() { got = append(got, "tick-2") })

	assert.True(t, l.Tick())
	assert.Equal(t, []string{"signal", "query", "tick-1", "tick-2"}, got)
	assert.False(t, l.Tick())
}

func TestCallbacksQueuedDuringRoundRunNextRound(t *testing.T) {
	l := New()
	var got []string

	l.Once(OnTick, func() {
		got = append(got, "first")
		l.Once(OnSignal, func() { got = append(got, "late signal") })
	})

	l.Tick()
	assert.Equal(t, []string{"first"}, got)
	assert.True(t, l.Pending())

	l.Run()
	assert.Equal(t, []string{"first", "late signal"}, got)
	assert.False(t, l.Pending())
	assert.Equal(t, uint64(2), l.Rounds())
}

func TestObserversRunAfterNonEmptyRounds(t *testing.T) {
	l := New()
	calls := 0
	remove := l.Observe(func() { calls++ })

	l.Tick()
	assert.Equal(t, 0, calls)

	l.Once(OnTick, func() {})
	l.Run()
	assert.Equal(t, 1, calls)

	remove()
	l.Once(OnTick, func() {})
	l.Run()
	assert.Equal(t, 1, calls)
}
