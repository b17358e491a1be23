package enc28j60

import (
	"errors"
	"testing"
	"time"
)

type fakeClock struct {
	slept []time.Duration
}

func (c *fakeClock) Sleep(d time.Duration) { c.slept = append(c.slept, d) }

func TestRetry(t *testing.T) {
	errPoll := errors.New("poll failed")
	for _, test := range []struct {
		name       string
		doneAt     int // 1-based attempt that reports done, 0 for never.
		failAt     int
		attempts   int
		wantErr    error
		wantPolls  int
		wantSleeps int
	}{
		{name: "first", doneAt: 1, attempts: 5, wantPolls: 1},
		{name: "third", doneAt: 3, attempts: 5, wantPolls: 3, wantSleeps: 2},
		{name: "last", doneAt: 5, attempts: 5, wantPolls: 5, wantSleeps: 4},
		{name: "never", attempts: 5, wantErr: errRetryBudget, wantPolls: 5, wantSleeps: 4},
		{name: "error", failAt: 2, attempts: 5, wantErr: errPoll, wantPolls: 2, wantSleeps: 1},
		{name: "zero", attempts: 0, wantErr: errRetryBudget},
	} {
		t.Run(test.name, func(t *testing.T) {
			var clk fakeClock
			polls := 0
			err := retry(clk.Sleep, time.Millisecond, test.attempts, func() (bool, error) {
				polls++
				if polls == test.failAt {
					return false, errPoll
				}
				return polls == test.doneAt, nil
			})
			if err != test.wantErr {
				t.Errorf("err=%v, want %v", err, test.wantErr)
			}
			if polls != test.wantPolls {
				t.Errorf("polls=%d, want %d", polls, test.wantPolls)
			}
			if len(clk.slept) != test.wantSleeps {
				t.Errorf("sleeps=%d, want %d", len(clk.slept), test.wantSleeps)
			}
			for _, d := range clk.slept {
				if d != time.Millisecond {
					t.Errorf("slept %s", d)
				}
			}
		})
	}
}

func TestAttemptsFor(t *testing.T) {
	for _, test := range []struct {
		timeout, interval time.Duration
		want              int
	}{
		{100 * time.Millisecond, 10 * time.Millisecond, 10},
		{105 * time.Millisecond, 10 * time.Millisecond, 11},
		{0, 10 * time.Millisecond, 1},
		{time.Millisecond, 10 * time.Millisecond, 1},
	} {
		got := attemptsFor(test.timeout, test.interval)
		if got != test.want {
			t.Errorf("attemptsFor(%s, %s)=%d, want %d", test.timeout, test.interval, got, test.want)
		}
	}
}
