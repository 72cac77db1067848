package services

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"spicysweet/models"
	"spicysweet/store"
)

// MemoryService runs the representative-selection memory duel.
type MemoryService struct {
	store     store.Store
	questions QuestionSource
	hub       Broadcaster
}

func NewMemoryService(st store.Store, questions QuestionSource, hub Broadcaster) *MemoryService {
	return &MemoryService{store: st, questions: questions, hub: hub}
}

// Start opens representative selection. A team whose live roster is a single
// real online player is auto-assigned as its own representative and skips
// its vote; if both teams resolve that way, selection is skipped altogether
// and the duel jumps straight to memorizing. startedAt is captured by the
// caller so the update function stays pure.
func (s *MemoryService) Start(ctx context.Context, code string, startedAt time.Time) error {
	room, err := s.store.GetRoom(ctx, code)
	if err != nil {
		return err
	}
	batch, err := s.questions.MemoryBatch(ctx, room.Settings, room.SeenQuestionIDs)
	if err != nil {
		return err
	}

	var step models.PhaseStep
	_, err = s.store.UpdateRoom(ctx, code, func(room *models.Room) error {
		if room.State.Phase != models.PhaseMemory {
			return ErrWrongPhase
		}
		if room.State.PhaseStep != models.StepIdle {
			return fmt.Errorf("%w: already started", ErrWrongPhase)
		}

		room.Questions.Memory = batch
		for _, item := range batch {
			room.MarkSeen(item.ID)
		}

		ms := &models.MemoryState{
			Votes:           make(map[models.Team]map[string]string),
			VoteOrder:       make(map[models.Team][]string),
			Representatives: make(map[models.Team]string),
			RecallAnswers:   make(map[models.Team][]string),
			RecallCursor:    make(map[models.Team]int),
			Scores:          make(map[models.Team]int),
		}
		for _, team := range []models.Team{models.TeamSpicy, models.TeamSweet} {
			if live := room.RealOnlinePlayers(team); len(live) == 1 {
				ms.Representatives[team] = live[0].ID
			}
		}

		room.State.Memory = ms
		room.State.RoundWinner = models.TeamNone
		if len(ms.Representatives) == 2 {
			room.State.PhaseStep = models.StepMemorizing
			ms.MemorizeStarted = startedAt.UnixMilli()
		} else {
			room.State.PhaseStep = models.StepSelecting
		}
		step = room.State.PhaseStep
		return nil
	})
	if err != nil {
		return err
	}

	if s.hub != nil {
		s.hub.BroadcastToRoom(code, "memory_start", map[string]any{"step": step})
	}
	return nil
}

// SubmitVote records one teammate's vote for a representative. When every
// real online teammate has voted, the majority candidate wins, with ties
// broken in favor of the candidate whose first vote arrived earliest. Both
// representative slots filled promotes the duel to memorizing.
func (s *MemoryService) SubmitVote(ctx context.Context, code, playerID, candidateID string, at time.Time) error {
	var memorizing bool
	_, err := s.store.UpdateRoom(ctx, code, func(room *models.Room) error {
		memorizing = false

		ms := room.State.Memory
		if room.State.Phase != models.PhaseMemory || ms == nil {
			return ErrWrongPhase
		}
		if room.State.PhaseStep != models.StepSelecting {
			return ErrAlreadyResolved
		}

		voter := room.Player(playerID)
		if voter == nil || !voter.Team.Valid() {
			return fmt.Errorf("%w: player has no team", ErrRejected)
		}
		team := voter.Team
		if ms.Representatives[team] != "" {
			return ErrAlreadyResolved
		}
		candidate := room.Player(candidateID)
		if candidate == nil || candidate.Team != team {
			return fmt.Errorf("%w: candidate not on team", ErrRejected)
		}
		if ms.Votes[team] == nil {
			ms.Votes[team] = make(map[string]string)
		}
		if _, voted := ms.Votes[team][playerID]; voted {
			return ErrAlreadyAnswered
		}

		ms.Votes[team][playerID] = candidateID
		if !slices.Contains(ms.VoteOrder[team], candidateID) {
			ms.VoteOrder[team] = append(ms.VoteOrder[team], candidateID)
		}

		if len(ms.Votes[team]) >= room.RealOnlineCount(team) {
			ms.Representatives[team] = tallyVotes(ms.Votes[team], ms.VoteOrder[team])
		}

		if len(ms.Representatives) == 2 {
			allFilled := true
			for _, rep := range ms.Representatives {
				if rep == "" {
					allFilled = false
				}
			}
			if allFilled {
				room.State.PhaseStep = models.StepMemorizing
				ms.MemorizeStarted = at.UnixMilli()
				memorizing = true
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	if s.hub != nil {
		s.hub.BroadcastToRoom(code, "vote_recorded", map[string]any{"player_id": playerID})
		if memorizing {
			s.hub.BroadcastToRoom(code, "memorize_start", nil)
		}
	}
	return nil
}

// tallyVotes picks the majority candidate; ties go to the candidate whose
// first vote was reported earliest.
func tallyVotes(votes map[string]string, order []string) string {
	counts := make(map[string]int)
	for _, candidate := range votes {
		counts[candidate]++
	}
	best, bestCount := "", 0
	for _, candidate := range order {
		if counts[candidate] > bestCount {
			best, bestCount = candidate, counts[candidate]
		}
	}
	return best
}

// StartAnswering moves memorizing to the sequential recall round, resetting
// the per-team answer arrays and cursors.
func (s *MemoryService) StartAnswering(ctx context.Context, code string) error {
	_, err := s.store.UpdateRoom(ctx, code, func(room *models.Room) error {
		ms := room.State.Memory
		if room.State.Phase != models.PhaseMemory || ms == nil {
			return ErrWrongPhase
		}
		if room.State.PhaseStep != models.StepMemorizing {
			return ErrAlreadyResolved
		}

		room.State.PhaseStep = models.StepAnswering
		ms.RecallAnswers = map[models.Team][]string{
			models.TeamSpicy: {},
			models.TeamSweet: {},
		}
		ms.RecallCursor = map[models.Team]int{
			models.TeamSpicy: 0,
			models.TeamSweet: 0,
		}
		ms.Scores = map[models.Team]int{
			models.TeamSpicy: 0,
			models.TeamSweet: 0,
		}
		return nil
	})
	if err != nil {
		return err
	}

	if s.hub != nil {
		s.hub.BroadcastToRoom(code, "recall_start", nil)
	}
	return nil
}

// SubmitRecall takes the representative's next recalled item, compares it
// against the memorized sequence at the team's cursor and advances. Both
// cursors exhausted settles the duel.
func (s *MemoryService) SubmitRecall(ctx context.Context, code, playerID, answer string) (bool, error) {
	var (
		correct bool
		done    bool
		winner  models.Team
	)
	_, err := s.store.UpdateRoom(ctx, code, func(room *models.Room) error {
		correct, done, winner = false, false, models.TeamNone

		ms := room.State.Memory
		if room.State.Phase != models.PhaseMemory || ms == nil {
			return ErrWrongPhase
		}
		if room.State.PhaseStep != models.StepAnswering {
			return ErrAlreadyResolved
		}

		player := room.Player(playerID)
		if player == nil || !player.Team.Valid() {
			return fmt.Errorf("%w: player has no team", ErrRejected)
		}
		team := player.Team
		if ms.Representatives[team] != playerID {
			return fmt.Errorf("%w: only the representative answers", ErrRejected)
		}

		cursor := ms.RecallCursor[team]
		if cursor >= len(room.Questions.Memory) {
			return fmt.Errorf("%w: sequence finished", ErrRejected)
		}

		expected := room.Questions.Memory[cursor].Text
		correct = normalizeAnswer(answer) == normalizeAnswer(expected)
		ms.RecallAnswers[team] = append(ms.RecallAnswers[team], answer)
		ms.RecallCursor[team] = cursor + 1
		if correct {
			ms.Scores[team]++
		}

		total := len(room.Questions.Memory)
		if ms.RecallCursor[models.TeamSpicy] >= total && ms.RecallCursor[models.TeamSweet] >= total {
			room.State.PhaseStep = models.StepResult
			switch {
			case ms.Scores[models.TeamSpicy] > ms.Scores[models.TeamSweet]:
				winner = models.TeamSpicy
			case ms.Scores[models.TeamSweet] > ms.Scores[models.TeamSpicy]:
				winner = models.TeamSweet
			}
			room.State.RoundWinner = winner
			done = true
		}
		return nil
	})
	if err != nil {
		return false, err
	}

	if correct {
		creditPoints(ctx, s.store, s.hub, code, playerID, 1)
	}
	if done {
		log.Info().Str("room", code).Str("winner", string(winner)).Msg("memory duel resolved")
		if s.hub != nil {
			s.hub.BroadcastToRoom(code, "round_result", map[string]any{"winner": winner})
		}
	}
	return correct, nil
}

func normalizeAnswer(text string) string {
	return strings.ToLower(strings.TrimSpace(text))
}
