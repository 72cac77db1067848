package services

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/rs/zerolog/log"

	"spicysweet/models"
	"spicysweet/store"
)

// buzzerResultDelay is how long the resolved round stays on screen before
// the next question is armed.
const buzzerResultDelay = 5 * time.Second

// BuzzerService runs the single-buzzer race with blocking and rebound.
type BuzzerService struct {
	store     store.Store
	questions QuestionSource
	hub       Broadcaster
	sched     *Scheduler
}

func NewBuzzerService(st store.Store, questions QuestionSource, hub Broadcaster, sched *Scheduler) *BuzzerService {
	return &BuzzerService{store: st, questions: questions, hub: hub, sched: sched}
}

// Start draws the question batch and opens the first round. It only acts on
// a buzzer phase still sitting in idle, so duplicate calls are no-ops.
func (s *BuzzerService) Start(ctx context.Context, code string) error {
	room, err := s.store.GetRoom(ctx, code)
	if err != nil {
		return err
	}
	batch, err := s.questions.BuzzerBatch(ctx, room.Settings, room.SeenQuestionIDs)
	if err != nil {
		return err
	}

	_, err = s.store.UpdateRoom(ctx, code, func(room *models.Room) error {
		if room.State.Phase != models.PhaseBuzzer {
			return ErrWrongPhase
		}
		if room.State.PhaseStep != models.StepIdle {
			return fmt.Errorf("%w: already started", ErrWrongPhase)
		}
		room.Questions.Buzzer = batch
		for _, q := range batch {
			room.MarkSeen(q.ID)
		}
		room.State.CurrentQuestionIndex = 0
		room.State.PhaseStep = models.StepAnswering
		room.State.RoundWinner = models.TeamNone
		room.State.Buzzer = &models.BuzzerState{
			QuestionIndex: 0,
			Answers:       make(map[string]int),
		}
		return nil
	})
	if err != nil {
		return err
	}

	if s.hub != nil {
		s.hub.BroadcastToRoom(code, "buzzer_start", map[string]any{"question_index": 0, "total": len(batch)})
	}
	return nil
}

// SubmitAnswer handles one buzz. Correct answers resolve the round and
// credit the submitter's team; wrong answers are recorded as tried, may
// rebound blocking to the answering team, and exhaust the round once only
// one untried option remains.
func (s *BuzzerService) SubmitAnswer(ctx context.Context, code, playerID string, optionIndex int) error {
	var (
		scored   string
		winner   models.Team
		resolved bool
	)

	committed, err := s.store.UpdateRoom(ctx, code, func(room *models.Room) error {
		scored, winner, resolved = "", models.TeamNone, false

		bz := room.State.Buzzer
		if room.State.Phase != models.PhaseBuzzer || bz == nil {
			return ErrWrongPhase
		}
		if bz.QuestionIndex != room.State.CurrentQuestionIndex {
			return ErrStaleRound
		}
		if room.State.PhaseStep != models.StepAnswering {
			return ErrAlreadyResolved
		}

		player := room.Player(playerID)
		if player == nil || !player.Team.Valid() {
			return fmt.Errorf("%w: player has no team", ErrRejected)
		}
		if bz.QuestionIndex >= len(room.Questions.Buzzer) {
			return ErrStaleRound
		}
		question := room.Questions.Buzzer[bz.QuestionIndex]
		if optionIndex < 0 || optionIndex >= len(question.Options) {
			return fmt.Errorf("%w: option out of range", ErrRejected)
		}
		if bz.BlockedTeam == player.Team {
			return fmt.Errorf("%w: team is blocked", ErrRejected)
		}
		if _, ok := bz.Answers[playerID]; ok {
			return ErrAlreadyAnswered
		}
		if slices.Contains(bz.TriedWrongOptions, optionIndex) {
			return fmt.Errorf("%w: option already eliminated", ErrRejected)
		}

		bz.Answers[playerID] = optionIndex

		if optionIndex == question.CorrectIndex {
			room.State.PhaseStep = models.StepResult
			room.State.RoundWinner = player.Team
			bz.ScoredPlayer = playerID
			scored = playerID
			winner = player.Team
			resolved = true
			return nil
		}

		bz.TriedWrongOptions = append(bz.TriedWrongOptions, optionIndex)

		// With all but one option eliminated the remainder is deducible, so
		// the round ends with no point awarded to anyone.
		if len(bz.TriedWrongOptions) >= len(question.Options)-1 {
			room.State.PhaseStep = models.StepResult
			room.State.RoundWinner = models.TeamNone
			resolved = true
			return nil
		}

		// Blocking is suspended entirely when only one team has real online
		// players; a practicing team just keeps trying a shrinking pool.
		if room.SoloTeam() {
			return nil
		}

		opponent := player.Team.Opponent()
		if bz.BlockedTeam == opponent {
			// Rebound: the question reopens for the previously blocked team
			// with a clean slate.
			bz.BlockedTeam = player.Team
			bz.Answers = make(map[string]int)
		} else {
			bz.BlockedTeam = player.Team
		}
		return nil
	})
	if err != nil {
		return err
	}

	if scored != "" {
		creditPoints(ctx, s.store, s.hub, code, scored, 1)
	}
	if resolved {
		index := committed.State.CurrentQuestionIndex
		log.Info().Str("room", code).Int("question", index).Str("winner", string(winner)).Msg("buzzer round resolved")
		if s.hub != nil {
			s.hub.BroadcastToRoom(code, "round_result", map[string]any{
				"question_index": index,
				"winner":         winner,
				"scored_player":  scored,
			})
		}
		s.scheduleNext(code, index)
	}
	return nil
}

func (s *BuzzerService) scheduleNext(code string, index int) {
	if s.sched == nil {
		return
	}
	s.sched.Once(code, string(models.PhaseBuzzer), index, buzzerResultDelay, func() {
		err := s.StartNextQuestion(context.Background(), code, index+1)
		if err != nil && !IsNoOp(err) {
			log.Error().Err(err).Str("room", code).Msg("scheduled buzzer advance failed")
		}
	})
}

// StartNextQuestion opens round index. It only accepts the index exactly one
// past the current one while the round is resolved (or the phase idle), so
// redundant advance calls from racing observers collapse to one transition.
func (s *BuzzerService) StartNextQuestion(ctx context.Context, code string, index int) error {
	_, err := s.store.UpdateRoom(ctx, code, func(room *models.Room) error {
		if room.State.Phase != models.PhaseBuzzer {
			return ErrWrongPhase
		}
		if room.State.PhaseStep != models.StepResult && room.State.PhaseStep != models.StepIdle {
			return ErrAlreadyResolved
		}
		if index != room.State.CurrentQuestionIndex+1 {
			return ErrStaleRound
		}
		if index >= len(room.Questions.Buzzer) {
			return fmt.Errorf("%w: no more questions", ErrRejected)
		}

		room.State.CurrentQuestionIndex = index
		room.State.PhaseStep = models.StepAnswering
		room.State.RoundWinner = models.TeamNone
		room.State.Buzzer = &models.BuzzerState{
			QuestionIndex: index,
			Answers:       make(map[string]int),
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
