package subscription

import (
	"testing"
	"time"
)

func TestDueCycles(t *testing.T) {
	period := 30 * 24 * time.Hour
	due := time.Unix(1_700_000_000, 0)
	s := &Subscription{Status: StatusActive, NextDueAt: due}

	tests := []struct {
		name      string
		now       time.Time
		maxCycles uint32
		want      uint64
	}{
		{"before due", due.Add(-time.Second), 10, 0},
		{"exactly due", due, 10, 1},
		{"just under two periods", due.Add(period - time.Second), 10, 1},
		{"exactly one period late", due.Add(period), 10, 2},
		{"five periods late", due.Add(5*period + time.Hour), 10, 6},
		{"capped by max cycles", due.Add(5 * period), 3, 3},
		{"max cycles zero", due.Add(5 * period), 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.DueCycles(tt.now, period, tt.maxCycles); got != tt.want {
				t.Errorf("DueCycles = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestIsOverdue(t *testing.T) {
	due := time.Unix(1000, 0)
	active := &Subscription{Status: StatusActive, NextDueAt: due}
	if active.IsOverdue(due.Add(-time.Second)) {
		t.Error("not overdue before due date")
	}
	if !active.IsOverdue(due) {
		t.Error("overdue at due date")
	}
	canceled := &Subscription{Status: StatusCanceled, NextDueAt: due}
	if canceled.IsOverdue(due.Add(time.Hour)) {
		t.Error("canceled subscriptions are never overdue")
	}
}

func TestInactiveDefault(t *testing.T) {
	s := Inactive("alice", 7)
	if s.Status != StatusInactive || s.CyclesPaid != 0 || !s.NextDueAt.IsZero() || !s.ID.IsNil() {
		t.Errorf("unexpected default: %+v", s)
	}
	if s.Key().String() != "alice/7" {
		t.Errorf("key = %s", s.Key())
	}
}

func TestCloneDetachesTimestamps(t *testing.T) {
	at := time.Unix(10, 0)
	s := &Subscription{CanceledAt: &at}
	c := s.Clone()
	*c.CanceledAt = time.Unix(20, 0)
	if !s.CanceledAt.Equal(time.Unix(10, 0)) {
		t.Error("clone shares CanceledAt pointer")
	}
}
