package models

import (
	"strings"
	"time"
)

// Room is the aggregate root: one game session identified by a short code.
// It owns all nested entities; nothing inside it is shared by reference
// across rooms, and every mutation goes through the store transaction.
type Room struct {
	Code      string             `json:"code"`
	HostID    string             `json:"host_id"`
	Players   map[string]*Player `json:"players"`
	State     State              `json:"state"`
	Settings  Settings           `json:"settings"`
	Questions QuestionPack       `json:"questions"`
	// SeenQuestionIDs feeds the question bank's "already seen" filter so a
	// room never replays a question across phases.
	SeenQuestionIDs []uint    `json:"seen_question_ids"`
	CreatedAt       time.Time `json:"created_at"`
}

// Settings is the host-configurable part of the room.
type Settings struct {
	Difficulty string `json:"difficulty"`
	Language   string `json:"language"`
}

// NormalizeCode uppercases a room code. Codes are uppercase-normalized on
// every access; the stored partition key is always the normalized form.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Player returns the player or nil.
func (r *Room) Player(id string) *Player {
	if r == nil {
		return nil
	}
	return r.Players[id]
}

// TeamScore sums the scores of all players on a team.
func (r *Room) TeamScore(team Team) int {
	total := 0
	for _, p := range r.Players {
		if p.Team == team {
			total += p.Score
		}
	}
	return total
}

// RealOnlineCount counts connected non-mock players on a team. This is the
// "can the other side still respond" signal behind every solo-mode shortcut.
func (r *Room) RealOnlineCount(team Team) int {
	n := 0
	for _, p := range r.Players {
		if p.Team == team && p.Online && p.IsReal() {
			n++
		}
	}
	return n
}

// RealOnlinePlayers lists connected non-mock players on a team.
func (r *Room) RealOnlinePlayers(team Team) []*Player {
	var out []*Player
	for _, p := range r.Players {
		if p.Team == team && p.Online && p.IsReal() {
			out = append(out, p)
		}
	}
	return out
}

// SoloTeam reports whether at most one team has real online players, which
// suspends blocking rules so a lone practicing team is never locked out.
func (r *Room) SoloTeam() bool {
	return r.RealOnlineCount(TeamSpicy) == 0 || r.RealOnlineCount(TeamSweet) == 0
}

// MarkSeen appends question ids to the room's seen set, skipping duplicates.
func (r *Room) MarkSeen(ids ...uint) {
	seen := make(map[uint]bool, len(r.SeenQuestionIDs))
	for _, id := range r.SeenQuestionIDs {
		seen[id] = true
	}
	for _, id := range ids {
		if !seen[id] {
			r.SeenQuestionIDs = append(r.SeenQuestionIDs, id)
			seen[id] = true
		}
	}
}
