package testutil

import (
	"sort"
	"sync"
	"time"

	"github.com/udisondev/saferespawn/internal/schedule"
)

// ManualScheduler: детерминированный schedule.Scheduler + schedule.Clock для unit тестов.
// Время двигается только через Advance; таймеры срабатывают синхронно в порядке дедлайнов.
type ManualScheduler struct {
	mu     sync.Mutex
	now    time.Time
	seq    uint64
	timers []*manualTimer
}

type manualTimer struct {
	s       *ManualScheduler
	at      time.Time
	seq     uint64
	fn      func()
	stopped bool
	fired   bool
}

// NewManualScheduler создаёт scheduler с фиксированным стартовым временем.
func NewManualScheduler() *ManualScheduler {
	return &ManualScheduler{
		now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC),
	}
}

var (
	_ schedule.Scheduler = (*ManualScheduler)(nil)
	_ schedule.Clock     = (*ManualScheduler)(nil)
)

// Now возвращает текущее виртуальное время.
func (s *ManualScheduler) Now() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now
}

// After регистрирует callback на now+d.
func (s *ManualScheduler) After(d time.Duration, fn func()) schedule.Timer {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	t := &manualTimer{s: s, at: s.now.Add(d), seq: s.seq, fn: fn}
	s.timers = append(s.timers, t)
	return t
}

// Stop отменяет таймер.
func (t *manualTimer) Stop() bool {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()

	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

// Advance двигает время на d, выполняя все таймеры с дедлайном <= now+d,
// включая таймеры, запланированные самими callback'ами внутри окна.
func (s *ManualScheduler) Advance(d time.Duration) {
	s.mu.Lock()
	target := s.now.Add(d)
	s.mu.Unlock()

	for {
		t := s.nextDue(target)
		if t == nil {
			break
		}
		t.fn()
	}

	s.mu.Lock()
	s.now = target
	s.mu.Unlock()
}

// nextDue извлекает ближайший активный таймер до target и двигает время к нему.
func (s *ManualScheduler) nextDue(target time.Time) *manualTimer {
	s.mu.Lock()
	defer s.mu.Unlock()

	active := s.timers[:0]
	for _, t := range s.timers {
		if !t.stopped && !t.fired {
			active = append(active, t)
		}
	}
	s.timers = active

	sort.Slice(s.timers, func(i, j int) bool {
		if s.timers[i].at.Equal(s.timers[j].at) {
			return s.timers[i].seq < s.timers[j].seq
		}
		return s.timers[i].at.Before(s.timers[j].at)
	})

	if len(s.timers) == 0 || s.timers[0].at.After(target) {
		return nil
	}

	t := s.timers[0]
	t.fired = true
	if t.at.After(s.now) {
		s.now = t.at
	}
	return t
}

// Pending возвращает количество активных таймеров.
func (s *ManualScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, t := range s.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}
