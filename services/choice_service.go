package services

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"spicysweet/models"
	"spicysweet/store"
)

// Valid answers for a choice item. "both" means the statement holds for the
// spicy and the sweet side alike.
const (
	ChoiceSpicy = "spicy"
	ChoiceSweet = "sweet"
	ChoiceBoth  = "both"
)

const (
	choiceResultDelay = 5 * time.Second
	// funFactDelay gives players time to read the supplementary fact before
	// the next item appears.
	funFactDelay = 9 * time.Second
)

// ChoiceService runs the simultaneous two-team binary choice.
type ChoiceService struct {
	store     store.Store
	questions QuestionSource
	hub       Broadcaster
	sched     *Scheduler
}

func NewChoiceService(st store.Store, questions QuestionSource, hub Broadcaster, sched *Scheduler) *ChoiceService {
	return &ChoiceService{store: st, questions: questions, hub: hub, sched: sched}
}

func (s *ChoiceService) Start(ctx context.Context, code string) error {
	room, err := s.store.GetRoom(ctx, code)
	if err != nil {
		return err
	}
	batch, err := s.questions.ChoiceBatch(ctx, room.Settings, room.SeenQuestionIDs)
	if err != nil {
		return err
	}

	_, err = s.store.UpdateRoom(ctx, code, func(room *models.Room) error {
		if room.State.Phase != models.PhaseChoice {
			return ErrWrongPhase
		}
		if room.State.PhaseStep != models.StepIdle {
			return fmt.Errorf("%w: already started", ErrWrongPhase)
		}
		room.Questions.Choice = batch
		for _, item := range batch {
			room.MarkSeen(item.ID)
		}
		room.State.CurrentQuestionIndex = 0
		room.State.PhaseStep = models.StepAnswering
		room.State.RoundWinner = models.TeamNone
		room.State.Choice = &models.ChoiceState{
			ItemIndex: 0,
			Answers:   make(map[models.Team]*models.TeamChoice),
		}
		return nil
	})
	if err != nil {
		return err
	}

	if s.hub != nil {
		s.hub.BroadcastToRoom(code, "choice_start", map[string]any{"item_index": 0, "total": len(batch)})
	}
	return nil
}

// SubmitTeamAnswer records the first submission from the player's team for
// the current item; later submissions from teammates are no-ops. The round
// resolves once both teams answered, or immediately when the opposing team
// has no real online players left.
func (s *ChoiceService) SubmitTeamAnswer(ctx context.Context, code, playerID, choice string) error {
	if choice != ChoiceSpicy && choice != ChoiceSweet && choice != ChoiceBoth {
		return fmt.Errorf("%w: invalid choice", ErrRejected)
	}

	var outcome choiceOutcome
	committed, err := s.store.UpdateRoom(ctx, code, func(room *models.Room) error {
		outcome = choiceOutcome{}

		ch := room.State.Choice
		if room.State.Phase != models.PhaseChoice || ch == nil {
			return ErrWrongPhase
		}
		if ch.ItemIndex != room.State.CurrentQuestionIndex {
			return ErrStaleRound
		}
		if room.State.PhaseStep != models.StepAnswering {
			return ErrAlreadyResolved
		}

		player := room.Player(playerID)
		if player == nil || !player.Team.Valid() {
			return fmt.Errorf("%w: player has no team", ErrRejected)
		}
		if ch.Answers[player.Team] != nil {
			return ErrAlreadyAnswered
		}
		if ch.ItemIndex >= len(room.Questions.Choice) {
			return ErrStaleRound
		}

		ch.Answers[player.Team] = &models.TeamChoice{Choice: choice, PlayerID: playerID}

		opponent := player.Team.Opponent()
		bothAnswered := ch.Answers[models.TeamSpicy] != nil && ch.Answers[models.TeamSweet] != nil
		if bothAnswered || room.RealOnlineCount(opponent) == 0 {
			outcome = resolveChoice(room, ch)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.afterCommit(ctx, code, committed, outcome)
	return nil
}

// EndRound is the cooperative timeout fallback: whichever client observes
// the time budget elapse calls it, and it evaluates the partial answers with
// missing ones treated as incorrect. A late call after a normal resolution
// aborts on the step guard.
func (s *ChoiceService) EndRound(ctx context.Context, code string, itemIndex int) error {
	var outcome choiceOutcome
	committed, err := s.store.UpdateRoom(ctx, code, func(room *models.Room) error {
		outcome = choiceOutcome{}

		ch := room.State.Choice
		if room.State.Phase != models.PhaseChoice || ch == nil {
			return ErrWrongPhase
		}
		if ch.ItemIndex != itemIndex || room.State.CurrentQuestionIndex != itemIndex {
			return ErrStaleRound
		}
		if room.State.PhaseStep != models.StepAnswering {
			return ErrAlreadyResolved
		}
		if ch.ItemIndex >= len(room.Questions.Choice) {
			return ErrStaleRound
		}

		outcome = resolveChoice(room, ch)
		return nil
	})
	if err != nil {
		return err
	}

	s.afterCommit(ctx, code, committed, outcome)
	return nil
}

// NextItem advances to the given item, accepting only the index one past the
// resolved one.
func (s *ChoiceService) NextItem(ctx context.Context, code string, index int) error {
	_, err := s.store.UpdateRoom(ctx, code, func(room *models.Room) error {
		if room.State.Phase != models.PhaseChoice {
			return ErrWrongPhase
		}
		if room.State.PhaseStep != models.StepResult && room.State.PhaseStep != models.StepIdle {
			return ErrAlreadyResolved
		}
		if index != room.State.CurrentQuestionIndex+1 {
			return ErrStaleRound
		}
		if index >= len(room.Questions.Choice) {
			return fmt.Errorf("%w: no more items", ErrRejected)
		}

		room.State.CurrentQuestionIndex = index
		room.State.PhaseStep = models.StepAnswering
		room.State.RoundWinner = models.TeamNone
		room.State.Choice = &models.ChoiceState{
			ItemIndex: index,
			Answers:   make(map[models.Team]*models.TeamChoice),
		}
		return nil
	})
	if err != nil {
		return err
	}

	if s.hub != nil {
		s.hub.BroadcastToRoom(code, "item_start", map[string]any{"item_index": index})
	}
	return nil
}

type choiceOutcome struct {
	resolved bool
	winners  []models.Team
	scored   []string
	funFact  bool
}

// resolveChoice applies the outcome matrix to whatever answers exist.
// Exactly one correct team wins alone; both correct means both answering
// players score independently; both wrong (or absent) means no winner.
func resolveChoice(room *models.Room, ch *models.ChoiceState) choiceOutcome {
	item := room.Questions.Choice[ch.ItemIndex]
	out := choiceOutcome{resolved: true, funFact: item.FunFact != ""}

	for _, team := range []models.Team{models.TeamSpicy, models.TeamSweet} {
		answer := ch.Answers[team]
		if answer != nil && answer.Choice == item.Answer {
			out.winners = append(out.winners, team)
			out.scored = append(out.scored, answer.PlayerID)
		}
	}

	ch.Winners = out.winners
	ch.ScoredPlayers = out.scored
	room.State.PhaseStep = models.StepResult
	if len(out.winners) == 1 {
		room.State.RoundWinner = out.winners[0]
	} else {
		room.State.RoundWinner = models.TeamNone
	}
	return out
}

func (s *ChoiceService) afterCommit(ctx context.Context, code string, committed *models.Room, outcome choiceOutcome) {
	if !outcome.resolved {
		return
	}
	for _, playerID := range outcome.scored {
		creditPoints(ctx, s.store, s.hub, code, playerID, 1)
	}

	index := committed.State.CurrentQuestionIndex
	log.Info().Str("room", code).Int("item", index).Interface("winners", outcome.winners).Msg("choice round resolved")
	if s.hub != nil {
		s.hub.BroadcastToRoom(code, "round_result", map[string]any{
			"item_index":     index,
			"winners":        outcome.winners,
			"scored_players": outcome.scored,
		})
	}

	if s.sched != nil {
		delay := choiceResultDelay
		if outcome.funFact {
			delay = funFactDelay
		}
		s.sched.Once(code, string(models.PhaseChoice), index, delay, func() {
			err := s.NextItem(context.Background(), code, index+1)
			if err != nil && !IsNoOp(err) {
				log.Error().Err(err).Str("room", code).Msg("scheduled choice advance failed")
			}
		})
	}
}
