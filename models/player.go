package models

import "time"

// Player lives inside the Room aggregate and is stored with it in Redis.
// The ID is stable across reconnects; disconnects only flip Online, they
// never delete the player.
type Player struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Avatar   string    `json:"avatar"`
	Team     Team      `json:"team"`
	Score    int       `json:"score"`
	Online   bool      `json:"online"`
	Ready    bool      `json:"ready"`
	IsMock   bool      `json:"is_mock"`
	JoinedAt time.Time `json:"joined_at"`
}

// IsReal reports whether the player counts toward round-completion checks.
// Mock players are synthetic and excluded everywhere a "real player" count
// decides whether the other team can still respond.
func (p *Player) IsReal() bool {
	return p != nil && !p.IsMock
}
