package entity

import (
	"testing"
	"time"
)

func mustTime(t *testing.T, s string) time.Time {
	t.Helper()
	v, err := time.Parse(time.RFC3339, s)
	if err != nil {
		t.Fatalf("bad time literal %q: %v", s, err)
	}
	return v
}

func TestOrderCanTransitionTo(t *testing.T) {
	cases := []struct {
		from string
		to   string
		want bool
	}{
		{OrderStatusDraft, OrderStatusPlanned, true},
		{OrderStatusDraft, OrderStatusReleased, true},
		{OrderStatusReleased, OrderStatusInProgress, true},
		{OrderStatusInProgress, OrderStatusCompleted, true},
		// 只向前推进
		{OrderStatusReleased, OrderStatusDraft, false},
		{OrderStatusCompleted, OrderStatusInProgress, false},
		{OrderStatusInProgress, OrderStatusInProgress, false},
		// 取消：非终止状态均可
		{OrderStatusDraft, OrderStatusCancelled, true},
		{OrderStatusInProgress, OrderStatusCancelled, true},
		{OrderStatusCompleted, OrderStatusCancelled, false},
		{OrderStatusCancelled, OrderStatusCancelled, false},
		// 终态不再推进
		{OrderStatusCancelled, OrderStatusReleased, false},
	}
	for _, tc := range cases {
		o := &ManufacturingOrder{Status: tc.from}
		if got := o.CanTransitionTo(tc.to); got != tc.want {
			t.Errorf("%s -> %s = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestScheduleOverlapsHalfOpen(t *testing.T) {
	base := mustTime(t, "2026-09-07T09:00:00Z")
	end := mustTime(t, "2026-09-07T11:00:00Z")
	s := &ProductionSchedule{ScheduledStart: base, ScheduledEnd: end}

	if !s.Overlaps(mustTime(t, "2026-09-07T10:00:00Z"), mustTime(t, "2026-09-07T12:00:00Z")) {
		t.Fatal("expected overlap for intersecting interval")
	}
	// 半开区间：首尾相接不算重叠
	if s.Overlaps(end, mustTime(t, "2026-09-07T12:00:00Z")) {
		t.Fatal("back-to-back intervals must not overlap")
	}
	if s.Overlaps(mustTime(t, "2026-09-07T08:00:00Z"), base) {
		t.Fatal("back-to-back intervals must not overlap")
	}
}
