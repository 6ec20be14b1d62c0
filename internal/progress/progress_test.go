package progress

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMonotonic_NeverDecreases(t *testing.T) {
	var got []float64
	fn := Monotonic(func(_ string, f float64) { got = append(got, f) })

	fn("a", 0.1)
	fn("b", 0.5)
	fn("c", 0.3) // regression, held at 0.5
	fn("d", 0.9)
	fn("e", 1.2) // clamped

	assert.Equal(t, []float64{0.1, 0.5, 0.5, 0.9, 1.0}, got)
}

func TestMonotonic_ClampsNegative(t *testing.T) {
	var got []float64
	fn := Monotonic(func(_ string, f float64) { got = append(got, f) })
	fn("a", -0.5)
	assert.Equal(t, []float64{0.0}, got)
}

func TestScaled_MapsRange(t *testing.T) {
	var got []float64
	fn := Scaled(func(_ string, f float64) { got = append(got, f) }, 0.5, 1.0)

	fn("a", 0)
	fn("b", 0.5)
	fn("c", 1.0)

	assert.InDeltaSlice(t, []float64{0.5, 0.75, 1.0}, got, 1e-9)
}

func TestScaled_InvertedRangeCollapses(t *testing.T) {
	var got []float64
	fn := Scaled(func(_ string, f float64) { got = append(got, f) }, 0.8, 0.2)
	fn("a", 1.0)
	assert.InDelta(t, 0.8, got[0], 1e-9)
}

func TestThrottled_TerminalAlwaysPasses(t *testing.T) {
	var got []float64
	fn := Throttled(func(_ string, f float64) { got = append(got, f) }, time.Hour)

	fn("a", 0.1)
	fn("b", 0.2) // within interval, dropped
	fn("c", 1.0) // terminal, kept

	assert.Equal(t, []float64{0.1, 1.0}, got)
}

func TestStoppable_CutsOffDelivery(t *testing.T) {
	var got []float64
	fn, stop := Stoppable(func(_ string, f float64) { got = append(got, f) })

	fn("a", 0.2)
	fn("b", 0.4)
	stop()
	fn("c", 1.0) // late report from an abandoned worker, dropped

	assert.Equal(t, []float64{0.2, 0.4}, got)
}

func TestStoppable_NoReportInFlightAfterStop(t *testing.T) {
	var mu sync.Mutex
	count := 0
	fn, stop := Stoppable(func(_ string, _ float64) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 1000; i++ {
			fn("spam", float64(i)/1000)
		}
	}()

	stop()
	mu.Lock()
	frozen := count
	mu.Unlock()

	fn("late", 1.0)
	<-done

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, frozen, count)
}

func TestStoppable_NilReporter(t *testing.T) {
	fn, stop := Stoppable(nil)
	assert.NotPanics(t, func() {
		fn("a", 0.5)
		stop()
		fn("b", 1.0)
	})
}

func TestMulti_FansOut(t *testing.T) {
	var a, b []float64
	fn := Multi(
		func(_ string, f float64) { a = append(a, f) },
		nil,
		func(_ string, f float64) { b = append(b, f) },
	)

	fn("x", 0.4)
	assert.Equal(t, []float64{0.4}, a)
	assert.Equal(t, []float64{0.4}, b)
}

func TestMulti_AllNil(t *testing.T) {
	assert.Nil(t, Multi(nil, nil))
}

func TestReport_NilSafe(t *testing.T) {
	assert.NotPanics(t, func() { Report(nil, "x", 0.5) })
}

func TestNopAndNilWrappers(t *testing.T) {
	assert.NotPanics(t, func() { Nop("x", 0.5) })
	assert.Nil(t, Monotonic(nil))
	assert.Nil(t, Scaled(nil, 0, 1))
	assert.Nil(t, Throttled(nil, time.Second))
}
