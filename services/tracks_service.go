package services

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"spicysweet/models"
	"spicysweet/store"
)

// TracksService runs the parallel-tracks phase: teams claim a topic each,
// then climb their own five-step ladder judged by an external capability.
// The two trackers never block each other.
type TracksService struct {
	store     store.Store
	questions QuestionSource
	judge     Judge
	hub       Broadcaster
}

func NewTracksService(st store.Store, questions QuestionSource, judge Judge, hub Broadcaster) *TracksService {
	return &TracksService{store: st, questions: questions, judge: judge, hub: hub}
}

// Start draws the topics and opens selection. Turn order is computed once
// from the aggregate team scores: the trailing team chooses first, ties go
// to spicy.
func (s *TracksService) Start(ctx context.Context, code string) error {
	room, err := s.store.GetRoom(ctx, code)
	if err != nil {
		return err
	}
	topics, err := s.questions.TrackTopics(ctx, room.Settings, room.SeenQuestionIDs)
	if err != nil {
		return err
	}

	_, err = s.store.UpdateRoom(ctx, code, func(room *models.Room) error {
		if room.State.Phase != models.PhaseTracks {
			return ErrWrongPhase
		}
		if room.State.PhaseStep != models.StepIdle {
			return fmt.Errorf("%w: already started", ErrWrongPhase)
		}

		first, second := models.TeamSpicy, models.TeamSweet
		if room.TeamScore(models.TeamSweet) < room.TeamScore(models.TeamSpicy) {
			first, second = models.TeamSweet, models.TeamSpicy
		}

		room.Questions.Topics = topics
		room.State.PhaseStep = models.StepSelecting
		room.State.RoundWinner = models.TeamNone
		room.State.Tracks = &models.TracksState{
			PickOrder: []models.Team{first, second},
			Claimed:   make(map[string]models.Team),
			Teams:     make(map[models.Team]*models.TrackProgress),
		}
		return nil
	})
	if err != nil {
		return err
	}

	if s.hub != nil {
		s.hub.BroadcastToRoom(code, "tracks_start", map[string]any{"topics": topics})
	}
	return nil
}

// PickTopic claims a topic for the player's team. Picking out of turn or
// picking a claimed topic is rejected. Once both teams picked, play opens
// with an independent tracker per team.
func (s *TracksService) PickTopic(ctx context.Context, code, playerID, topicID string) error {
	var selectionDone bool
	_, err := s.store.UpdateRoom(ctx, code, func(room *models.Room) error {
		selectionDone = false

		tr := room.State.Tracks
		if room.State.Phase != models.PhaseTracks || tr == nil {
			return ErrWrongPhase
		}
		if room.State.PhaseStep != models.StepSelecting {
			return ErrAlreadyResolved
		}

		player := room.Player(playerID)
		if player == nil || !player.Team.Valid() {
			return fmt.Errorf("%w: player has no team", ErrRejected)
		}
		if tr.PickTurn >= len(tr.PickOrder) || tr.PickOrder[tr.PickTurn] != player.Team {
			return ErrNotYourTurn
		}
		if _, claimed := tr.Claimed[topicID]; claimed {
			return fmt.Errorf("%w: topic already claimed", ErrRejected)
		}
		if findTopic(room, topicID) == nil {
			return fmt.Errorf("%w: unknown topic", ErrRejected)
		}

		tr.Claimed[topicID] = player.Team
		tr.Teams[player.Team] = &models.TrackProgress{
			TopicID:  topicID,
			Answered: make(map[int]string),
		}
		tr.PickTurn++

		if tr.PickTurn == len(tr.PickOrder) {
			room.State.PhaseStep = models.StepAnswering
			selectionDone = true
		}
		return nil
	})
	if err != nil {
		return err
	}

	if s.hub != nil {
		s.hub.BroadcastToRoom(code, "topic_claimed", map[string]any{"topic_id": topicID, "player_id": playerID})
		if selectionDone {
			s.hub.BroadcastToRoom(code, "tracks_play", nil)
		}
	}
	return nil
}

// SubmitAnswer sends the text to the judge and, on a positive verdict,
// advances the team's tracker. The step captured before the judge call
// guards the transaction: a verdict arriving after the step already moved
// is stale and discarded. Judge failures leave the round untouched so a
// retry is safe.
func (s *TracksService) SubmitAnswer(ctx context.Context, code, playerID, text string) (bool, error) {
	room, err := s.store.GetRoom(ctx, code)
	if err != nil {
		return false, err
	}
	tr := room.State.Tracks
	if room.State.Phase != models.PhaseTracks || tr == nil || room.State.PhaseStep != models.StepAnswering {
		return false, ErrWrongPhase
	}
	player := room.Player(playerID)
	if player == nil || !player.Team.Valid() {
		return false, fmt.Errorf("%w: player has no team", ErrRejected)
	}
	progress := tr.Teams[player.Team]
	if progress == nil || progress.Finished {
		return false, fmt.Errorf("%w: track finished", ErrRejected)
	}
	topicID, step := progress.TopicID, progress.Step

	correct, err := s.judge.JudgeAnswer(ctx, topicID, step, text)
	if err != nil {
		return false, err
	}
	if !correct {
		return false, nil
	}

	team := player.Team
	if err := s.advanceStep(ctx, code, team, step, playerID, true); err != nil {
		return false, err
	}
	return true, nil
}

// Skip advances the team's step without crediting a point, used on timeout
// or an explicit pass.
func (s *TracksService) Skip(ctx context.Context, code string, team models.Team) error {
	if !team.Valid() {
		return fmt.Errorf("%w: invalid team", ErrRejected)
	}
	room, err := s.store.GetRoom(ctx, code)
	if err != nil {
		return err
	}
	tr := room.State.Tracks
	if room.State.Phase != models.PhaseTracks || tr == nil || tr.Teams[team] == nil {
		return ErrWrongPhase
	}
	return s.advanceStep(ctx, code, team, tr.Teams[team].Step, "", false)
}

// advanceStep moves a team's tracker from expectedStep to the next one.
// Re-validating expectedStep inside the transaction is the stale-judgment
// protection: only the first advance for a given step commits.
func (s *TracksService) advanceStep(ctx context.Context, code string, team models.Team, expectedStep int, playerID string, credit bool) error {
	var (
		finished      bool
		phaseFinished bool
		newStep       int
	)

	_, err := s.store.UpdateRoom(ctx, code, func(room *models.Room) error {
		finished, phaseFinished = false, false

		tr := room.State.Tracks
		if room.State.Phase != models.PhaseTracks || tr == nil {
			return ErrWrongPhase
		}
		if room.State.PhaseStep != models.StepAnswering {
			return ErrAlreadyResolved
		}
		progress := tr.Teams[team]
		if progress == nil || progress.Finished {
			return fmt.Errorf("%w: track finished", ErrRejected)
		}
		if progress.Step != expectedStep {
			return ErrStaleRound
		}
		topic := findTopic(room, progress.TopicID)
		if topic == nil {
			return ErrStaleRound
		}

		if credit {
			progress.Answered[progress.Step] = playerID
			progress.Score++
		}
		progress.Step++
		newStep = progress.Step
		if progress.Step >= len(topic.Steps) {
			progress.Finished = true
			finished = true
		}

		if allTracksFinished(tr) {
			room.State.PhaseStep = models.StepResult
			phaseFinished = true
		}
		return nil
	})
	if err != nil {
		return err
	}

	if credit {
		creditPoints(ctx, s.store, s.hub, code, playerID, 1)
	}
	if s.hub != nil {
		s.hub.BroadcastToRoom(code, "track_progress", map[string]any{
			"team":     team,
			"step":     newStep,
			"finished": finished,
		})
		if phaseFinished {
			s.hub.BroadcastToRoom(code, "tracks_finished", nil)
		}
	}
	if phaseFinished {
		log.Info().Str("room", code).Msg("tracks phase finished")
	}
	return nil
}

func allTracksFinished(tr *models.TracksState) bool {
	if len(tr.Teams) < 2 {
		return false
	}
	for _, p := range tr.Teams {
		if !p.Finished {
			return false
		}
	}
	return true
}

func findTopic(room *models.Room, topicID string) *models.TrackTopic {
	for i := range room.Questions.Topics {
		if room.Questions.Topics[i].ID == topicID {
			return &room.Questions.Topics[i]
		}
	}
	return nil
}
