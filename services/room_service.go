package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"spicysweet/models"
	"spicysweet/store"
)

// phaseOrder is the fixed progression of a game.
var phaseOrder = []models.GamePhase{
	models.PhaseLobby,
	models.PhaseBuzzer,
	models.PhaseChoice,
	models.PhaseTracks,
	models.PhaseRace,
	models.PhaseMemory,
	models.PhaseFinal,
}

// RoomService owns room lifecycle: creation, join/leave, presence, teams,
// readiness gating, settings and phase progression. It feeds the Room
// aggregate but contains no phase logic.
type RoomService struct {
	store store.Store
	db    *gorm.DB
	hub   Broadcaster

	now     func() time.Time
	newID   func() string
	newCode func() string
}

func NewRoomService(st store.Store, db *gorm.DB, hub Broadcaster) *RoomService {
	return &RoomService{
		store:   st,
		db:      db,
		hub:     hub,
		now:     time.Now,
		newID:   func() string { return uuid.NewString() },
		newCode: generateRoomCode,
	}
}

// generateRoomCode returns a short uppercase code. Codes are always handled
// in their uppercase-normalized form.
func generateRoomCode() string {
	bytes := make([]byte, 3)
	if _, err := rand.Read(bytes); err != nil {
		// The platform entropy source is unusable; nothing sensible to serve.
		panic(err)
	}
	return strings.ToUpper(hex.EncodeToString(bytes))
}

func (s *RoomService) Create(ctx context.Context, hostName, avatar string) (*models.Room, error) {
	if strings.TrimSpace(hostName) == "" {
		return nil, fmt.Errorf("%w: host name required", ErrRejected)
	}

	hostID := s.newID()
	room := &models.Room{
		Code:   s.newCode(),
		HostID: hostID,
		Players: map[string]*models.Player{
			hostID: {
				ID:       hostID,
				Name:     strings.TrimSpace(hostName),
				Avatar:   avatar,
				Online:   true,
				JoinedAt: s.now(),
			},
		},
		State: models.State{
			Phase:                models.PhaseLobby,
			PhaseStep:            models.StepIdle,
			CurrentQuestionIndex: -1,
		},
		Settings:  models.Settings{Difficulty: "medium", Language: "en"},
		CreatedAt: s.now(),
	}

	if err := s.store.PutRoom(ctx, room); err != nil {
		return nil, err
	}
	log.Info().Str("room", room.Code).Str("host", hostID).Msg("room created")
	return room, nil
}

func (s *RoomService) Join(ctx context.Context, code, name, avatar string) (*models.Player, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: player name required", ErrRejected)
	}

	player := &models.Player{
		ID:       s.newID(),
		Name:     name,
		Avatar:   avatar,
		Online:   true,
		JoinedAt: s.now(),
	}

	_, err := s.store.UpdateRoom(ctx, code, func(room *models.Room) error {
		if room.State.Phase != models.PhaseLobby {
			return fmt.Errorf("%w: game already started", ErrRejected)
		}
		for _, p := range room.Players {
			if strings.EqualFold(p.Name, name) {
				return fmt.Errorf("%w: name already taken", ErrRejected)
			}
		}
		room.Players[player.ID] = player
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.hub != nil {
		s.hub.BroadcastToRoom(code, "player_joined", player)
	}
	return player, nil
}

// Rejoin restores a previously created player id after a reconnect.
func (s *RoomService) Rejoin(ctx context.Context, code, playerID string) (*models.Player, error) {
	var player *models.Player
	_, err := s.store.UpdateRoom(ctx, code, func(room *models.Room) error {
		p := room.Player(playerID)
		if p == nil {
			return fmt.Errorf("%w: unknown player", ErrRejected)
		}
		p.Online = true
		player = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	if s.hub != nil {
		s.hub.BroadcastToRoom(code, "player_online", map[string]any{"player_id": playerID})
	}
	return player, nil
}

// Leave removes a player for good. Empty rooms are deleted; a departing
// host hands the room to the longest-connected remaining real player.
func (s *RoomService) Leave(ctx context.Context, code, playerID string) error {
	var empty bool
	_, err := s.store.UpdateRoom(ctx, code, func(room *models.Room) error {
		if room.Player(playerID) == nil {
			return fmt.Errorf("%w: unknown player", ErrRejected)
		}
		delete(room.Players, playerID)
		if room.HostID == playerID {
			room.HostID = ""
			var oldest *models.Player
			for _, p := range room.Players {
				if !p.IsReal() {
					continue
				}
				if oldest == nil || p.JoinedAt.Before(oldest.JoinedAt) {
					oldest = p
				}
			}
			if oldest != nil {
				room.HostID = oldest.ID
			}
		}
		empty = len(room.Players) == 0 || room.HostID == ""
		return nil
	})
	if err != nil {
		return err
	}

	if empty {
		if err := s.store.DeleteRoom(ctx, code); err != nil {
			log.Warn().Err(err).Str("room", code).Msg("failed to delete empty room")
		}
		return nil
	}
	if s.hub != nil {
		s.hub.BroadcastToRoom(code, "player_left", map[string]any{"player_id": playerID})
	}
	return nil
}

// SetOnline flips a player's presence flag. Disconnects never delete the
// player, so reconnection with the same id keeps score and team.
func (s *RoomService) SetOnline(ctx context.Context, code, playerID string, online bool) error {
	_, err := s.store.UpdateRoom(ctx, code, func(room *models.Room) error {
		p := room.Player(playerID)
		if p == nil {
			return fmt.Errorf("%w: unknown player", ErrRejected)
		}
		p.Online = online
		return nil
	})
	if err != nil {
		return err
	}
	if s.hub != nil {
		event := "player_online"
		if !online {
			event = "player_offline"
		}
		s.hub.BroadcastToRoom(code, event, map[string]any{"player_id": playerID})
	}
	return nil
}

func (s *RoomService) SetTeam(ctx context.Context, code, playerID string, team models.Team) error {
	if !team.Valid() {
		return fmt.Errorf("%w: invalid team", ErrRejected)
	}
	_, err := s.store.UpdateRoom(ctx, code, func(room *models.Room) error {
		p := room.Player(playerID)
		if p == nil {
			return fmt.Errorf("%w: unknown player", ErrRejected)
		}
		p.Team = team
		return nil
	})
	if err == nil && s.hub != nil {
		s.hub.BroadcastToRoom(code, "team_update", map[string]any{"player_id": playerID, "team": team})
	}
	return err
}

func (s *RoomService) SetReady(ctx context.Context, code, playerID string, ready bool) error {
	_, err := s.store.UpdateRoom(ctx, code, func(room *models.Room) error {
		p := room.Player(playerID)
		if p == nil {
			return fmt.Errorf("%w: unknown player", ErrRejected)
		}
		p.Ready = ready
		return nil
	})
	if err == nil && s.hub != nil {
		s.hub.BroadcastToRoom(code, "ready_update", map[string]any{"player_id": playerID, "ready": ready})
	}
	return err
}

// Configure updates host-controlled settings while still in the lobby.
func (s *RoomService) Configure(ctx context.Context, code, hostID string, settings models.Settings) error {
	_, err := s.store.UpdateRoom(ctx, code, func(room *models.Room) error {
		if room.HostID != hostID {
			return fmt.Errorf("%w: host only", ErrRejected)
		}
		if room.State.Phase != models.PhaseLobby {
			return fmt.Errorf("%w: game already started", ErrRejected)
		}
		if settings.Difficulty != "" {
			room.Settings.Difficulty = settings.Difficulty
		}
		if settings.Language != "" {
			room.Settings.Language = settings.Language
		}
		return nil
	})
	return err
}

// AddMockPlayer seeds a synthetic teammate. Mock players never count toward
// the real-player checks that decide round completion.
func (s *RoomService) AddMockPlayer(ctx context.Context, code, hostID, name string, team models.Team) (*models.Player, error) {
	mock := &models.Player{
		ID:       s.newID(),
		Name:     name,
		Team:     team,
		Online:   true,
		Ready:    true,
		IsMock:   true,
		JoinedAt: s.now(),
	}
	_, err := s.store.UpdateRoom(ctx, code, func(room *models.Room) error {
		if room.HostID != hostID {
			return fmt.Errorf("%w: host only", ErrRejected)
		}
		room.Players[mock.ID] = mock
		return nil
	})
	if err != nil {
		return nil, err
	}
	return mock, nil
}

// AdvancePhase moves the room to the next phase in order. From the lobby it
// enforces the readiness gate. The returned phase tells the caller which
// engine's Start to invoke; at the final phase the score snapshot is
// persisted.
func (s *RoomService) AdvancePhase(ctx context.Context, code, hostID string) (models.GamePhase, error) {
	var next models.GamePhase
	room, err := s.store.UpdateRoom(ctx, code, func(room *models.Room) error {
		if room.HostID != hostID {
			return fmt.Errorf("%w: host only", ErrRejected)
		}

		idx := phaseIndex(room.State.Phase)
		if idx < 0 || idx >= len(phaseOrder)-1 {
			return fmt.Errorf("%w: no next phase", ErrWrongPhase)
		}
		if room.State.Phase == models.PhaseLobby {
			if err := readinessGate(room); err != nil {
				return err
			}
		}

		next = phaseOrder[idx+1]
		room.State = models.State{
			Phase:                next,
			PhaseStep:            models.StepIdle,
			CurrentQuestionIndex: -1,
		}
		return nil
	})
	if err != nil {
		return "", err
	}

	if next == models.PhaseFinal {
		s.snapshotResult(ctx, room)
	}
	if s.hub != nil {
		s.hub.BroadcastToRoom(code, "phase_changed", map[string]any{"phase": next})
	}
	log.Info().Str("room", code).Str("phase", string(next)).Msg("phase advanced")
	return next, nil
}

func readinessGate(room *models.Room) error {
	spicy, sweet := 0, 0
	for _, p := range room.Players {
		if p.IsReal() && p.Online && !p.Ready {
			return fmt.Errorf("%w: not all players ready", ErrRejected)
		}
		switch p.Team {
		case models.TeamSpicy:
			spicy++
		case models.TeamSweet:
			sweet++
		default:
			return fmt.Errorf("%w: player %s has no team", ErrRejected, p.ID)
		}
	}
	if spicy == 0 || sweet == 0 {
		return fmt.Errorf("%w: both teams need players", ErrRejected)
	}
	return nil
}

// snapshotResult persists the final team scores. Nothing beyond this row
// survives the room's expiry.
func (s *RoomService) snapshotResult(ctx context.Context, room *models.Room) {
	if s.db == nil {
		return
	}
	scores := TeamScores(room)
	winner := ""
	switch {
	case scores[models.TeamSpicy] > scores[models.TeamSweet]:
		winner = string(models.TeamSpicy)
	case scores[models.TeamSweet] > scores[models.TeamSpicy]:
		winner = string(models.TeamSweet)
	}

	result := models.GameResult{
		RoomCode:    room.Code,
		SpicyScore:  scores[models.TeamSpicy],
		SweetScore:  scores[models.TeamSweet],
		WinningTeam: winner,
		PlayerCount: len(room.Players),
		FinishedAt:  s.now(),
	}
	if err := s.db.WithContext(ctx).Create(&result).Error; err != nil {
		log.Error().Err(err).Str("room", room.Code).Msg("failed to persist game result")
	}
}

func phaseIndex(phase models.GamePhase) int {
	for i, p := range phaseOrder {
		if p == phase {
			return i
		}
	}
	return -1
}

// GetRoom is the point-read used by handlers and the hub's state sync.
func (s *RoomService) GetRoom(ctx context.Context, code string) (*models.Room, error) {
	return s.store.GetRoom(ctx, code)
}
