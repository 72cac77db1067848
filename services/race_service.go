package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"spicysweet/models"
	"spicysweet/store"
)

const (
	raceResultDelay = 5 * time.Second
	// racePoints is the larger award for winning the global race.
	racePoints = 2
)

// RaceService runs the multi-team speed race. Every player answers the same
// free-text question; the earliest correct submission by caller timestamp
// wins, resolved by a global re-scan rather than trust in arrival order.
type RaceService struct {
	store     store.Store
	questions QuestionSource
	hub       Broadcaster
	sched     *Scheduler
}

func NewRaceService(st store.Store, questions QuestionSource, hub Broadcaster, sched *Scheduler) *RaceService {
	return &RaceService{store: st, questions: questions, hub: hub, sched: sched}
}

func (s *RaceService) Start(ctx context.Context, code string) error {
	room, err := s.store.GetRoom(ctx, code)
	if err != nil {
		return err
	}
	batch, err := s.questions.RaceBatch(ctx, room.Settings, room.SeenQuestionIDs)
	if err != nil {
		return err
	}

	_, err = s.store.UpdateRoom(ctx, code, func(room *models.Room) error {
		if room.State.Phase != models.PhaseRace {
			return ErrWrongPhase
		}
		if room.State.PhaseStep != models.StepIdle {
			return fmt.Errorf("%w: already started", ErrWrongPhase)
		}
		room.Questions.Race = batch
		for _, q := range batch {
			room.MarkSeen(q.ID)
		}
		room.State.CurrentQuestionIndex = 0
		room.State.PhaseStep = models.StepAnswering
		room.State.RoundWinner = models.TeamNone
		room.State.Race = &models.RaceState{
			QuestionIndex: 0,
			Answers:       make(map[string]*models.RaceAnswer),
		}
		return nil
	})
	if err != nil {
		return err
	}

	if s.hub != nil {
		s.hub.BroadcastToRoom(code, "race_start", map[string]any{"question_index": 0, "total": len(batch)})
	}
	return nil
}

// SubmitAnswer records the submission with its caller-supplied timestamp.
// If the answer was correct, it runs a second transaction that
// re-scans every recorded answer and awards the round to the globally
// earliest correct submitter. The re-scan is what keeps the result right
// when two correct answers race within milliseconds under network jitter.
func (s *RaceService) SubmitAnswer(ctx context.Context, code, playerID, text string, answeredAt time.Time) error {
	ts := answeredAt.UnixMilli()

	var (
		correct     bool
		allAnswered bool
	)
	committed, err := s.store.UpdateRoom(ctx, code, func(room *models.Room) error {
		correct, allAnswered = false, false

		rc := room.State.Race
		if room.State.Phase != models.PhaseRace || rc == nil {
			return ErrWrongPhase
		}
		if rc.QuestionIndex != room.State.CurrentQuestionIndex {
			return ErrStaleRound
		}
		if room.State.PhaseStep != models.StepAnswering {
			return ErrAlreadyResolved
		}

		player := room.Player(playerID)
		if player == nil || !player.Team.Valid() {
			return fmt.Errorf("%w: player has no team", ErrRejected)
		}
		// A player never overwrites their own earlier entry.
		if rc.Answers[playerID] != nil {
			return ErrAlreadyAnswered
		}
		if rc.QuestionIndex >= len(room.Questions.Race) {
			return ErrStaleRound
		}

		question := room.Questions.Race[rc.QuestionIndex]
		correct = answerMatches(question, text)
		rc.Answers[playerID] = &models.RaceAnswer{
			Text:       text,
			AnsweredAt: ts,
			Correct:    correct,
		}

		// With every real online player on record and no correct answer,
		// the round force-resolves with no winner.
		if !anyCorrect(rc) && everyRealPlayerAnswered(room, rc) {
			room.State.PhaseStep = models.StepResult
			room.State.RoundWinner = models.TeamNone
			allAnswered = true
		}
		return nil
	})
	if err != nil {
		return err
	}

	index := committed.State.CurrentQuestionIndex
	if allAnswered {
		s.announceResult(code, index, "", models.TeamNone)
		return nil
	}
	if correct {
		return s.resolveWinner(ctx, code, playerID, index)
	}
	return nil
}

// resolveWinner transitions the round to result only if the globally
// earliest correct submitter is the current submitter. Otherwise the call
// aborts quietly; the actual earliest submitter's own scan performs the
// transition.
func (s *RaceService) resolveWinner(ctx context.Context, code, playerID string, index int) error {
	var (
		won    bool
		scored string
		winner models.Team
	)
	_, err := s.store.UpdateRoom(ctx, code, func(room *models.Room) error {
		won, scored, winner = false, "", models.TeamNone

		rc := room.State.Race
		if room.State.Phase != models.PhaseRace || rc == nil || rc.QuestionIndex != index {
			return ErrStaleRound
		}
		if room.State.PhaseStep != models.StepAnswering {
			return ErrAlreadyResolved
		}

		earliest := earliestCorrect(rc)
		if earliest != playerID {
			return fmt.Errorf("%w: earlier correct answer on record", store.ErrAbort)
		}

		player := room.Player(playerID)
		if player == nil {
			return ErrStaleRound
		}
		room.State.PhaseStep = models.StepResult
		room.State.RoundWinner = player.Team
		rc.WinnerID = playerID
		won, scored, winner = true, playerID, player.Team
		return nil
	})
	if err != nil {
		if store.IsAbort(err) {
			return nil
		}
		return err
	}

	if won {
		creditPoints(ctx, s.store, s.hub, code, scored, racePoints)
		s.announceResult(code, index, scored, winner)
	}
	return nil
}

// Timeout force-resolves the round with no winner when the time budget
// elapses first. It is idempotent against the all-answered path and against
// redundant timeout callers: only the first to observe the racing state acts.
func (s *RaceService) Timeout(ctx context.Context, code string, questionIndex int) error {
	_, err := s.store.UpdateRoom(ctx, code, func(room *models.Room) error {
		rc := room.State.Race
		if room.State.Phase != models.PhaseRace || rc == nil || rc.QuestionIndex != questionIndex {
			return ErrStaleRound
		}
		if room.State.PhaseStep != models.StepAnswering {
			return ErrAlreadyResolved
		}
		room.State.PhaseStep = models.StepResult
		room.State.RoundWinner = models.TeamNone
		return nil
	})
	if err != nil {
		return err
	}

	s.announceResult(code, questionIndex, "", models.TeamNone)
	return nil
}

func (s *RaceService) NextQuestion(ctx context.Context, code string, index int) error {
	_, err := s.store.UpdateRoom(ctx, code, func(room *models.Room) error {
		if room.State.Phase != models.PhaseRace {
			return ErrWrongPhase
		}
		if room.State.PhaseStep != models.StepResult && room.State.PhaseStep != models.StepIdle {
			return ErrAlreadyResolved
		}
		if index != room.State.CurrentQuestionIndex+1 {
			return ErrStaleRound
		}
		if index >= len(room.Questions.Race) {
			return fmt.Errorf("%w: no more questions", ErrRejected)
		}

		room.State.CurrentQuestionIndex = index
		room.State.PhaseStep = models.StepAnswering
		room.State.RoundWinner = models.TeamNone
		room.State.Race = &models.RaceState{
			QuestionIndex: index,
			Answers:       make(map[string]*models.RaceAnswer),
		}
		return nil
	})
	if err != nil {
		return err
	}

	if s.hub != nil {
		s.hub.BroadcastToRoom(code, "question_start", map[string]any{"question_index": index})
	}
	return nil
}

func (s *RaceService) announceResult(code string, index int, scored string, winner models.Team) {
	log.Info().Str("room", code).Int("question", index).Str("winner_player", scored).Msg("race round resolved")
	if s.hub != nil {
		s.hub.BroadcastToRoom(code, "round_result", map[string]any{
			"question_index": index,
			"winner":         winner,
			"scored_player":  scored,
		})
	}
	if s.sched != nil {
		s.sched.Once(code, string(models.PhaseRace), index, raceResultDelay, func() {
			err := s.NextQuestion(context.Background(), code, index+1)
			if err != nil && !IsNoOp(err) {
				log.Error().Err(err).Str("room", code).Msg("scheduled race advance failed")
			}
		})
	}
}

func answerMatches(q models.RaceQuestion, text string) bool {
	text = strings.ToLower(strings.TrimSpace(text))
	for _, accepted := range q.AcceptedAnswers {
		if text == strings.ToLower(strings.TrimSpace(accepted)) {
			return true
		}
	}
	return false
}

func anyCorrect(rc *models.RaceState) bool {
	for _, a := range rc.Answers {
		if a.Correct {
			return true
		}
	}
	return false
}

func everyRealPlayerAnswered(room *models.Room, rc *models.RaceState) bool {
	for id, p := range room.Players {
		if p.Online && p.IsReal() && p.Team.Valid() {
			if rc.Answers[id] == nil {
				return false
			}
		}
	}
	return true
}

// earliestCorrect returns the player id of the earliest correct submission,
// breaking exact-timestamp ties by player id so the scan is deterministic on
// every replica.
func earliestCorrect(rc *models.RaceState) string {
	best := ""
	var bestAt int64
	for id, a := range rc.Answers {
		if !a.Correct {
			continue
		}
		if best == "" || a.AnsweredAt < bestAt || (a.AnsweredAt == bestAt && id < best) {
			best = id
			bestAt = a.AnsweredAt
		}
	}
	return best
}
