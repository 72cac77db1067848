package models

// Team is one of the two fixed squads every player is partitioned into.
type Team string

const (
	TeamSpicy Team = "spicy"
	TeamSweet Team = "sweet"
	// TeamNone is only ever a placeholder on malformed or unassigned data.
	TeamNone Team = ""
)

func (t Team) Valid() bool {
	return t == TeamSpicy || t == TeamSweet
}

// Opponent returns the other team, or TeamNone for malformed input.
func (t Team) Opponent() Team {
	switch t {
	case TeamSpicy:
		return TeamSweet
	case TeamSweet:
		return TeamSpicy
	}
	return TeamNone
}
