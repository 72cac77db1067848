package models

import (
	"time"

	"gorm.io/gorm"
)

// GameResult is the final score snapshot persisted once when a room reaches
// the final phase. Nothing beyond this snapshot is kept after the room's
// Redis document expires.
type GameResult struct {
	ID          uint           `json:"id" gorm:"primaryKey"`
	RoomCode    string         `json:"room_code" gorm:"not null;index"`
	SpicyScore  int            `json:"spicy_score" gorm:"not null"`
	SweetScore  int            `json:"sweet_score" gorm:"not null"`
	WinningTeam string         `json:"winning_team"`
	PlayerCount int            `json:"player_count" gorm:"not null"`
	FinishedAt  time.Time      `json:"finished_at"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `json:"-" gorm:"index"`
}
