package utils

import (
	"sync"
	"time"
)

type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
	Sleep(d time.Duration)
}

type RealClock struct{}

func (self RealClock) Sleep(d time.Duration) {
	time.Sleep(d)
}

func (self RealClock) After(d time.Duration) <-chan time.Time {
	return time.After(d)
}

func (self RealClock) Now() time.Time {
	return time.Now()
}

// A manually advanced clock for tests. Timers fire only when the
// test moves the clock past their deadline.
type MockClock struct {
	mu      sync.Mutex
	now     time.Time
	waiters []*mockWaiter
}

type mockWaiter struct {
	deadline time.Time
	ch       chan time.Time
}

func NewMockClock(now time.Time) *MockClock {
	return &MockClock{now: now}
}

func (self *MockClock) Now() time.Time {
	self.mu.Lock()
	defer self.mu.Unlock()

	return self.now
}

func (self *MockClock) After(d time.Duration) <-chan time.Time {
	self.mu.Lock()
	defer self.mu.Unlock()

	waiter := &mockWaiter{
		deadline: self.now.Add(d),
		ch:       make(chan time.Time, 1),
	}
	self.waiters = append(self.waiters, waiter)
	return waiter.ch
}

func (self *MockClock) Sleep(d time.Duration) {
	<-self.After(d)
}

// Advance the clock, firing any timers that become due.
func (self *MockClock) Advance(d time.Duration) {
	self.mu.Lock()
	defer self.mu.Unlock()

	self.now = self.now.Add(d)

	remaining := self.waiters[:0]
	for _, waiter := range self.waiters {
		if !waiter.deadline.After(self.now) {
			waiter.ch <- self.now
		} else {
			remaining = append(remaining, waiter)
		}
	}
	self.waiters = remaining
}

// A clock that increments each time someone calls Now()
type IncClock struct {
	mu      sync.Mutex
	NowTime int64
}

func (self *IncClock) Now() time.Time {
	self.mu.Lock()
	defer self.mu.Unlock()

	self.NowTime++
	return time.Unix(self.NowTime, 0)
}

func (self *IncClock) After(d time.Duration) <-chan time.Time {
	return time.After(0)
}

func (self *IncClock) Sleep(d time.Duration) {
	time.Sleep(0)
}

var (
	clock_mu sync.Mutex
	g_clock  Clock = RealClock{}
)

func GetTime() Clock {
	clock_mu.Lock()
	defer clock_mu.Unlock()

	return g_clock
}

// Install a mock clock, returning a closer that restores the real
// clock. Tests must call the closer to avoid leaking mocked time
// into other tests.
func MockTime(clock Clock) func() {
	clock_mu.Lock()
	defer clock_mu.Unlock()

	old_clock := g_clock
	g_clock = clock

	return func() {
		clock_mu.Lock()
		defer clock_mu.Unlock()

		g_clock = old_clock
	}
}
