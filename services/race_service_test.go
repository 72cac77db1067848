package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"spicysweet/models"
	"spicysweet/store"
)

func newRaceFixture(t *testing.T) (*RaceService, store.Store, *manualScheduler) {
	t.Helper()
	st := store.NewMemory()
	sched := newManualScheduler()
	questions := &fakeQuestions{
		race: []models.RaceQuestion{
			{ID: 20, Text: "q1", AcceptedAnswers: []string{"Jalapeño", "jalapeno"}},
			{ID: 21, Text: "q2", AcceptedAnswers: []string{"caramel"}},
		},
	}
	svc := NewRaceService(st, questions, &fakeHub{}, sched.Scheduler)
	seedRoom(t, st, models.PhaseRace)
	if err := svc.Start(context.Background(), "AB12CD"); err != nil {
		t.Fatalf("start: %v", err)
	}
	return svc, st, sched
}

func TestRaceFirstCorrectAnswerWinsTwoPoints(t *testing.T) {
	svc, st, _ := newRaceFixture(t)
	ctx := context.Background()

	if err := svc.SubmitAnswer(ctx, "AB12CD", "p1", "  JALAPENO ", time.UnixMilli(1000)); err != nil {
		t.Fatalf("submit: %v", err)
	}

	room := getRoom(t, st, "AB12CD")
	if room.State.PhaseStep != models.StepResult {
		t.Fatalf("step = %s, want result", room.State.PhaseStep)
	}
	if room.State.RoundWinner != models.TeamSpicy {
		t.Fatalf("winner = %s, want spicy", room.State.RoundWinner)
	}
	if room.State.Race.WinnerID != "p1" {
		t.Fatalf("winner id = %q, want p1", room.State.Race.WinnerID)
	}
	if got := playerScore(t, st, "AB12CD", "p1"); got != racePoints {
		t.Fatalf("p1 score = %d, want %d", got, racePoints)
	}
}

func TestRaceWrongAnswerDoesNotResolve(t *testing.T) {
	svc, st, _ := newRaceFixture(t)
	ctx := context.Background()
	addPlayer(t, st, "AB12CD", &models.Player{ID: "p3", Name: "Cal", Team: models.TeamSpicy, Online: true})

	if err := svc.SubmitAnswer(ctx, "AB12CD", "p1", "wrong", time.UnixMilli(1000)); err != nil {
		t.Fatalf("submit: %v", err)
	}
	room := getRoom(t, st, "AB12CD")
	if room.State.PhaseStep != models.StepAnswering {
		t.Fatalf("step = %s, want answering while others can still race", room.State.PhaseStep)
	}

	// The wrong entry is on record and cannot be overwritten.
	err := svc.SubmitAnswer(ctx, "AB12CD", "p1", "jalapeno", time.UnixMilli(1100))
	if !errors.Is(err, ErrAlreadyAnswered) {
		t.Fatalf("resubmit: err = %v, want ErrAlreadyAnswered", err)
	}
}

func TestRaceAllWrongForceResolves(t *testing.T) {
	svc, st, _ := newRaceFixture(t)
	ctx := context.Background()

	if err := svc.SubmitAnswer(ctx, "AB12CD", "p1", "wrong", time.UnixMilli(1000)); err != nil {
		t.Fatalf("p1 submit: %v", err)
	}
	if err := svc.SubmitAnswer(ctx, "AB12CD", "p2", "also wrong", time.UnixMilli(1050)); err != nil {
		t.Fatalf("p2 submit: %v", err)
	}

	room := getRoom(t, st, "AB12CD")
	if room.State.PhaseStep != models.StepResult {
		t.Fatalf("step = %s, want result once every live player answered", room.State.PhaseStep)
	}
	if room.State.RoundWinner != models.TeamNone {
		t.Fatalf("winner = %s, want none", room.State.RoundWinner)
	}
}

func TestRaceLateCorrectAnswerAfterResolve(t *testing.T) {
	svc, st, _ := newRaceFixture(t)
	ctx := context.Background()

	if err := svc.SubmitAnswer(ctx, "AB12CD", "p1", "jalapeno", time.UnixMilli(1000)); err != nil {
		t.Fatalf("p1 submit: %v", err)
	}
	// p2's answer carries an earlier timestamp but arrives after the round
	// resolved; the settled result stands.
	err := svc.SubmitAnswer(ctx, "AB12CD", "p2", "jalapeno", time.UnixMilli(500))
	if err == nil || !IsNoOp(err) {
		t.Fatalf("late submit: err = %v, want silent no-op", err)
	}
	if got := playerScore(t, st, "AB12CD", "p2"); got != 0 {
		t.Fatalf("p2 score = %d, want 0", got)
	}
}

func TestRaceLaterResolverDefersToEarliestCorrect(t *testing.T) {
	svc, st, _ := newRaceFixture(t)
	ctx := context.Background()

	// Both correct answers are already on record before either resolve scan
	// runs, mirroring two submissions racing through the store.
	_, err := st.UpdateRoom(ctx, "AB12CD", func(room *models.Room) error {
		room.State.Race.Answers["p1"] = &models.RaceAnswer{Text: "jalapeno", AnsweredAt: 100, Correct: true}
		room.State.Race.Answers["p2"] = &models.RaceAnswer{Text: "jalapeno", AnsweredAt: 200, Correct: true}
		return nil
	})
	if err != nil {
		t.Fatalf("seed answers: %v", err)
	}

	// The later submitter's scan arrives first and must back off quietly.
	if err := svc.resolveWinner(ctx, "AB12CD", "p2", 0); err != nil {
		t.Fatalf("p2 resolve: %v", err)
	}
	room := getRoom(t, st, "AB12CD")
	if room.State.PhaseStep != models.StepAnswering {
		t.Fatalf("step = %s, want answering after the later scan", room.State.PhaseStep)
	}
	if got := playerScore(t, st, "AB12CD", "p2"); got != 0 {
		t.Fatalf("p2 score = %d, want 0", got)
	}

	if err := svc.resolveWinner(ctx, "AB12CD", "p1", 0); err != nil {
		t.Fatalf("p1 resolve: %v", err)
	}
	room = getRoom(t, st, "AB12CD")
	if room.State.PhaseStep != models.StepResult || room.State.Race.WinnerID != "p1" {
		t.Fatalf("round = %s/%q, want result won by p1", room.State.PhaseStep, room.State.Race.WinnerID)
	}
	if room.State.RoundWinner != models.TeamSpicy {
		t.Fatalf("winner = %s, want spicy", room.State.RoundWinner)
	}
	if got := playerScore(t, st, "AB12CD", "p1"); got != racePoints {
		t.Fatalf("p1 score = %d, want %d", got, racePoints)
	}
}

func TestRaceTimeoutIdempotent(t *testing.T) {
	svc, st, _ := newRaceFixture(t)
	ctx := context.Background()

	if err := svc.Timeout(ctx, "AB12CD", 0); err != nil {
		t.Fatalf("timeout: %v", err)
	}
	room := getRoom(t, st, "AB12CD")
	if room.State.PhaseStep != models.StepResult || room.State.RoundWinner != models.TeamNone {
		t.Fatalf("state = %s/%s, want result/none", room.State.PhaseStep, room.State.RoundWinner)
	}

	err := svc.Timeout(ctx, "AB12CD", 0)
	if err == nil || !IsNoOp(err) {
		t.Fatalf("second timeout: err = %v, want silent no-op", err)
	}
}

func TestRaceScheduledAdvanceOpensNextQuestion(t *testing.T) {
	svc, st, sched := newRaceFixture(t)
	ctx := context.Background()

	if err := svc.SubmitAnswer(ctx, "AB12CD", "p2", "jalapeno", time.UnixMilli(900)); err != nil {
		t.Fatalf("submit: %v", err)
	}
	sched.fireAll()

	room := getRoom(t, st, "AB12CD")
	if room.State.CurrentQuestionIndex != 1 {
		t.Fatalf("question index = %d, want 1", room.State.CurrentQuestionIndex)
	}
	if room.State.Race.QuestionIndex != 1 || len(room.State.Race.Answers) != 0 {
		t.Fatalf("round state not reset: %+v", room.State.Race)
	}
}

func TestEarliestCorrectOrdersByTimestamp(t *testing.T) {
	rc := &models.RaceState{Answers: map[string]*models.RaceAnswer{
		"p1": {AnsweredAt: 300, Correct: true},
		"p2": {AnsweredAt: 100, Correct: true},
		"p3": {AnsweredAt: 50, Correct: false},
	}}
	if got := earliestCorrect(rc); got != "p2" {
		t.Fatalf("earliest correct = %q, want p2", got)
	}
}

func TestEarliestCorrectBreaksTiesByPlayerID(t *testing.T) {
	rc := &models.RaceState{Answers: map[string]*models.RaceAnswer{
		"zz": {AnsweredAt: 100, Correct: true},
		"aa": {AnsweredAt: 100, Correct: true},
	}}
	if got := earliestCorrect(rc); got != "aa" {
		t.Fatalf("earliest correct = %q, want aa on a timestamp tie", got)
	}
}
