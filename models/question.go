package models

import (
	"time"

	"gorm.io/gorm"
)

// Question is a row in the question bank. Phase tags which mini-game the
// question belongs to; the phase decides which columns are meaningful:
// buzzer questions carry Options, choice items carry Answer and FunFact,
// track steps carry Topic/StepIndex, race questions carry Answer, memory
// items only need Text.
type Question struct {
	ID         uint           `json:"id" gorm:"primaryKey"`
	Phase      string         `json:"phase" gorm:"not null;index"`
	Text       string         `json:"text" gorm:"not null"`
	Answer     string         `json:"answer"`
	FunFact    string         `json:"fun_fact"`
	Topic      string         `json:"topic" gorm:"index"`
	StepIndex  int            `json:"step_index"`
	Difficulty string         `json:"difficulty" gorm:"not null;default:'medium';index"`
	Language   string         `json:"language" gorm:"not null;default:'en';index"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
	DeletedAt  gorm.DeletedAt `json:"-" gorm:"index"`

	// Relationships
	Options []Option `json:"options,omitempty" gorm:"foreignKey:QuestionID"`
}
