package services

import (
	"context"

	"github.com/rs/zerolog/log"

	"spicysweet/models"
	"spicysweet/store"
)

// Broadcaster pushes server events to every client in a room. The websocket
// hub implements it; tests pass a fake or nil.
type Broadcaster interface {
	BroadcastToRoom(code, messageType string, payload any)
}

// creditPoints awards points to a player after a winning transition has
// committed. It is the only code path that touches scores, and it uses the
// store's atomic increment so back-to-back awards never lose updates.
func creditPoints(ctx context.Context, st store.Store, hub Broadcaster, code, playerID string, points int) {
	total, err := st.IncrScore(ctx, code, playerID, points)
	if err != nil {
		log.Error().Err(err).Str("room", code).Str("player", playerID).Msg("failed to credit points")
		return
	}
	log.Info().Str("room", code).Str("player", playerID).Int("points", points).Int("total", total).Msg("points credited")
	if hub != nil {
		hub.BroadcastToRoom(code, "score_update", map[string]any{
			"player_id": playerID,
			"points":    points,
			"total":     total,
		})
	}
}

// TeamScores aggregates player scores per team.
func TeamScores(room *models.Room) map[models.Team]int {
	return map[models.Team]int{
		models.TeamSpicy: room.TeamScore(models.TeamSpicy),
		models.TeamSweet: room.TeamScore(models.TeamSweet),
	}
}
