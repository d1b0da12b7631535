package timeutil

import (
	"testing"
	"time"
)

func TestRealClock_Now(t *testing.T) {
	clock := RealClock{}
	before := time.Now()
	now := clock.Now()
	after := time.Now()

	if now.Before(before) || now.After(after) {
		t.Errorf("Now() = %v, expected between %v and %v", now, before, after)
	}
}

func TestRealClock_Since(t *testing.T) {
	clock := RealClock{}
	past := time.Now().Add(-time.Second)
	d := clock.Since(past)

	if d < time.Second {
		t.Errorf("Since() returned %v, expected >= 1s", d)
	}
}

func TestRealClock_NewTimer(t *testing.T) {
	clock := RealClock{}
	timer := clock.NewTimer(10 * time.Millisecond)
	defer timer.Stop()

	select {
	case <-timer.C():
		// Timer fired as expected
	case <-time.After(100 * time.Millisecond):
		t.Error("timer did not fire")
	}
}

func TestRealClock_NewTicker(t *testing.T) {
	clock := RealClock{}
	ticker := clock.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	select {
	case <-ticker.C():
		// Ticker fired as expected
	case <-time.After(100 * time.Millisecond):
		t.Error("ticker did not fire")
	}
}

func TestMockClock_NowAndSet(t *testing.T) {
	fixedTime := time.Date(2026, 1, 15, 10, 30, 0, 0, time.UTC)
	clock := NewMockClock(fixedTime)

	if !clock.Now().Equal(fixedTime) {
		t.Errorf("got %v, want %v", clock.Now(), fixedTime)
	}

	later := fixedTime.Add(time.Hour)
	clock.Set(later)
	if !clock.Now().Equal(later) {
		t.Errorf("after Set: got %v, want %v", clock.Now(), later)
	}
}

func TestMockClock_Advance(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := NewMockClock(start)
	clock.Advance(90 * time.Second)

	expected := start.Add(90 * time.Second)
	if !clock.Now().Equal(expected) {
		t.Errorf("got %v, want %v", clock.Now(), expected)
	}
	if d := clock.Since(start); d != 90*time.Second {
		t.Errorf("Since(start) = %v, want 90s", d)
	}
}

func TestMockClock_SleepRecords(t *testing.T) {
	clock := NewMockClock(time.Now())

	done := make(chan struct{})
	go func() {
		clock.Sleep(time.Hour) // must not block
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("MockClock.Sleep blocked")
	}

	clock.Sleep(500 * time.Millisecond)
	sleeps := clock.Sleeps()
	if len(sleeps) != 2 {
		t.Fatalf("Sleeps() = %v, want 2 entries", sleeps)
	}
	if sleeps[0] != time.Hour || sleeps[1] != 500*time.Millisecond {
		t.Errorf("Sleeps() = %v", sleeps)
	}
}

func TestMockTimer_FiresOnAdvance(t *testing.T) {
	base := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	clock := NewMockClock(base)

	timer := clock.NewTimer(10 * time.Second)

	clock.Advance(5 * time.Second)
	select {
	case <-timer.C():
		t.Fatal("timer fired before deadline")
	default:
	}

	clock.Advance(5 * time.Second)
	select {
	case fired := <-timer.C():
		if !fired.Equal(base.Add(10 * time.Second)) {
			t.Errorf("timer fired at %v, want %v", fired, base.Add(10*time.Second))
		}
	default:
		t.Fatal("timer did not fire at deadline")
	}
}

func TestMockTimer_Stop(t *testing.T) {
	clock := NewMockClock(time.Now())
	timer := clock.NewTimer(time.Second)

	if !timer.Stop() {
		t.Error("Stop() on active timer = false, want true")
	}
	clock.Advance(2 * time.Second)
	select {
	case <-timer.C():
		t.Fatal("stopped timer fired")
	default:
	}

	if timer.Stop() {
		t.Error("Stop() on stopped timer = true, want false")
	}
}

func TestMockClock_After(t *testing.T) {
	clock := NewMockClock(time.Now())
	ch := clock.After(time.Minute)

	clock.Advance(time.Minute)
	select {
	case <-ch:
	default:
		t.Fatal("After channel did not deliver")
	}
}

func TestMockTicker_FiresRepeatedly(t *testing.T) {
	clock := NewMockClock(time.Now())
	ticker := clock.NewTicker(time.Second)
	defer ticker.Stop()

	for i := 0; i < 3; i++ {
		clock.Advance(time.Second)
		select {
		case <-ticker.C():
		default:
			t.Fatalf("tick %d not delivered", i)
		}
	}
}

func TestMockTicker_StopAndTrigger(t *testing.T) {
	clock := NewMockClock(time.Now())
	ticker := clock.NewTicker(time.Second)

	ticker.Stop()
	clock.Advance(5 * time.Second)
	select {
	case <-ticker.C():
		t.Fatal("stopped ticker delivered a tick")
	default:
	}

	// Trigger bypasses the schedule, useful for driving poll loops.
	mock := ticker.(*MockTicker)
	now := clock.Now()
	mock.Trigger(now)
	select {
	case got := <-ticker.C():
		if !got.Equal(now) {
			t.Errorf("Trigger delivered %v, want %v", got, now)
		}
	default:
		t.Fatal("Trigger did not deliver")
	}
}
