package services

import (
	"testing"
	"time"
)

func TestSchedulerArmsOncePerRound(t *testing.T) {
	sched := newManualScheduler()

	n := 0
	if !sched.Once("AB12CD", "buzzer", 0, time.Second, func() { n++ }) {
		t.Fatal("first arm returned false")
	}
	if sched.Once("AB12CD", "buzzer", 0, time.Second, func() { n++ }) {
		t.Fatal("second arm for the same round returned true")
	}

	sched.fireAll()
	if n != 1 {
		t.Fatalf("fired %d times, want 1", n)
	}
}

func TestSchedulerKeysRoundsIndependently(t *testing.T) {
	sched := newManualScheduler()

	fired := map[int]bool{}
	sched.Once("AB12CD", "race", 0, time.Second, func() { fired[0] = true })
	sched.Once("AB12CD", "race", 1, time.Second, func() { fired[1] = true })
	sched.Once("ZZ99XX", "race", 0, time.Second, func() { fired[2] = true })

	sched.fireAll()
	if len(fired) != 3 {
		t.Fatalf("fired rounds = %v, want all three", fired)
	}
}

func TestSchedulerReleasesKeyAfterFiring(t *testing.T) {
	sched := newManualScheduler()

	n := 0
	sched.Once("AB12CD", "choice", 0, time.Second, func() { n++ })
	sched.fireAll()

	if !sched.Once("AB12CD", "choice", 0, time.Second, func() { n++ }) {
		t.Fatal("re-arm after firing returned false")
	}
	sched.fireAll()
	if n != 2 {
		t.Fatalf("fired %d times, want 2", n)
	}
}
