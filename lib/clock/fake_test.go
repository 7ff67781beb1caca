// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"sync"
	"testing"
	"time"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func TestFakeClockNow(t *testing.T) {
	clock := Fake(epoch)
	if got := clock.Now(); !got.Equal(epoch) {
		t.Fatalf("Now() = %v, want %v", got, epoch)
	}
	clock.Advance(5 * time.Second)
	want := epoch.Add(5 * time.Second)
	if got := clock.Now(); !got.Equal(want) {
		t.Fatalf("Now() after Advance = %v, want %v", got, want)
	}
}

func TestFakeClockAfterFiresOnAdvance(t *testing.T) {
	clock := Fake(epoch)
	channel := clock.After(3 * time.Second)

	// Should not fire yet.
	select {
	case <-channel:
		t.Fatal("After fired before Advance")
	default:
	}

	// Advance past the deadline.
	clock.Advance(3 * time.Second)

	select {
	case <-channel:
	default:
		t.Fatal("After did not fire after Advance")
	}
}

func TestFakeClockAfterZeroDuration(t *testing.T) {
	clock := Fake(epoch)
	channel := clock.After(0)

	select {
	case <-channel:
	default:
		t.Fatal("After(0) should fire immediately")
	}
}

func TestFakeClockAfterNegativeDuration(t *testing.T) {
	clock := Fake(epoch)
	channel := clock.After(-1 * time.Second)

	select {
	case <-channel:
	default:
		t.Fatal("After(-1s) should fire immediately")
	}
}

func TestFakeClockAfterPartialAdvance(t *testing.T) {
	clock := Fake(epoch)
	channel := clock.After(5 * time.Second)

	clock.Advance(3 * time.Second)
	select {
	case <-channel:
		t.Fatal("After fired before deadline")
	default:
	}

	clock.Advance(2 * time.Second)
	select {
	case <-channel:
	default:
		t.Fatal("After did not fire at exact deadline")
	}
}

func TestFakeClockAfterDoesNotDoubleFire(t *testing.T) {
	clock := Fake(epoch)
	channel := clock.After(1 * time.Second)

	clock.Advance(1 * time.Second)
	<-channel

	// A second advance must not deliver again.
	clock.Advance(1 * time.Second)
	select {
	case <-channel:
		t.Fatal("After fired twice")
	default:
	}
}

func TestFakeClockTickerFiresPerInterval(t *testing.T) {
	clock := Fake(epoch)
	ticker := clock.NewTicker(10 * time.Second)
	defer ticker.Stop()

	clock.Advance(10 * time.Second)
	select {
	case tick := <-ticker.C:
		want := epoch.Add(10 * time.Second)
		if !tick.Equal(want) {
			t.Fatalf("tick = %v, want %v", tick, want)
		}
	default:
		t.Fatal("ticker did not fire after one interval")
	}

	clock.Advance(10 * time.Second)
	select {
	case <-ticker.C:
	default:
		t.Fatal("ticker did not fire after second interval")
	}
}

func TestFakeClockTickerStop(t *testing.T) {
	clock := Fake(epoch)
	ticker := clock.NewTicker(5 * time.Second)
	ticker.Stop()

	clock.Advance(20 * time.Second)
	select {
	case <-ticker.C:
		t.Fatal("stopped ticker fired")
	default:
	}
}

func TestFakeClockTickerReset(t *testing.T) {
	clock := Fake(epoch)
	ticker := clock.NewTicker(10 * time.Second)
	defer ticker.Stop()

	ticker.Reset(2 * time.Second)
	clock.Advance(2 * time.Second)

	select {
	case <-ticker.C:
	default:
		t.Fatal("reset ticker did not fire at new interval")
	}
}

func TestFakeClockTickerDropsOverflowTicks(t *testing.T) {
	clock := Fake(epoch)
	ticker := clock.NewTicker(1 * time.Second)
	defer ticker.Stop()

	// Advancing across many intervals without draining must not
	// block: the channel has capacity 1 and extra ticks are dropped.
	clock.Advance(10 * time.Second)

	count := 0
	for {
		select {
		case <-ticker.C:
			count++
		default:
			if count != 1 {
				t.Fatalf("buffered ticks = %d, want 1", count)
			}
			return
		}
	}
}

func TestFakeClockNewTickerPanicsOnNonPositive(t *testing.T) {
	clock := Fake(epoch)
	defer func() {
		if recover() == nil {
			t.Fatal("NewTicker(0) did not panic")
		}
	}()
	clock.NewTicker(0)
}

func TestFakeClockSleepBlocksUntilAdvance(t *testing.T) {
	clock := Fake(epoch)

	done := make(chan struct{})
	go func() {
		clock.Sleep(5 * time.Second)
		close(done)
	}()

	clock.WaitForTimers(1)

	select {
	case <-done:
		t.Fatal("Sleep returned before Advance")
	default:
	}

	clock.Advance(5 * time.Second)

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Sleep did not return after Advance")
	}
}

func TestFakeClockSleepZeroReturnsImmediately(t *testing.T) {
	clock := Fake(epoch)
	clock.Sleep(0)
	if got := clock.PendingCount(); got != 0 {
		t.Fatalf("PendingCount after Sleep(0) = %d, want 0", got)
	}
}

func TestFakeClockWaitForTimersMultiple(t *testing.T) {
	clock := Fake(epoch)

	var group sync.WaitGroup
	for range 3 {
		group.Add(1)
		go func() {
			defer group.Done()
			clock.Sleep(1 * time.Second)
		}()
	}

	clock.WaitForTimers(3)
	clock.Advance(1 * time.Second)
	group.Wait()
}

func TestFakeClockAdvanceFiresInDeadlineOrder(t *testing.T) {
	clock := Fake(epoch)

	late := clock.After(10 * time.Second)
	early := clock.After(1 * time.Second)

	clock.Advance(10 * time.Second)

	// Both fired; each carries the post-advance time.
	want := epoch.Add(10 * time.Second)
	for name, channel := range map[string]<-chan time.Time{"early": early, "late": late} {
		select {
		case tick := <-channel:
			if !tick.Equal(want) {
				t.Fatalf("%s tick = %v, want %v", name, tick, want)
			}
		default:
			t.Fatalf("%s waiter did not fire", name)
		}
	}
}

func TestRealClockNow(t *testing.T) {
	clock := Real()
	before := time.Now()
	got := clock.Now()
	after := time.Now()
	if got.Before(before) || got.After(after) {
		t.Fatalf("Real().Now() = %v outside [%v, %v]", got, before, after)
	}
}

func TestRealClockAfter(t *testing.T) {
	clock := Real()
	select {
	case <-clock.After(1 * time.Millisecond):
	case <-time.After(5 * time.Second):
		t.Fatal("Real().After never fired")
	}
}
