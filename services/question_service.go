package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"gorm.io/gorm"

	"spicysweet/models"
)

// Batch sizes per phase. The tracks phase draws whole topics; each topic is
// a fixed ladder of trackStepCount steps.
const (
	buzzerBatchSize = 10
	choiceBatchSize = 12
	raceBatchSize   = 10
	memoryBatchSize = 8
	trackTopicCount = 3
	trackStepCount  = 5
)

var ErrBankEmpty = errors.New("question bank exhausted")

// QuestionSource hands phases ready-to-play batches, excluding questions the
// room has already seen. Phase engines only consume the returned shapes.
type QuestionSource interface {
	BuzzerBatch(ctx context.Context, s models.Settings, seen []uint) ([]models.BuzzerQuestion, error)
	ChoiceBatch(ctx context.Context, s models.Settings, seen []uint) ([]models.ChoiceItem, error)
	TrackTopics(ctx context.Context, s models.Settings, seen []uint) ([]models.TrackTopic, error)
	RaceBatch(ctx context.Context, s models.Settings, seen []uint) ([]models.RaceQuestion, error)
	MemoryBatch(ctx context.Context, s models.Settings, seen []uint) ([]models.MemoryItem, error)
}

// QuestionService is the Postgres-backed question bank.
type QuestionService struct {
	db *gorm.DB
}

func NewQuestionService(db *gorm.DB) *QuestionService {
	return &QuestionService{db: db}
}

func (s *QuestionService) query(set models.Settings, phase string, seen []uint) *gorm.DB {
	q := s.db.Where("phase = ?", phase)
	if set.Difficulty != "" {
		q = q.Where("difficulty = ?", set.Difficulty)
	}
	if set.Language != "" {
		q = q.Where("language = ?", set.Language)
	}
	if len(seen) > 0 {
		q = q.Where("id NOT IN ?", seen)
	}
	return q
}

func (s *QuestionService) BuzzerBatch(ctx context.Context, set models.Settings, seen []uint) ([]models.BuzzerQuestion, error) {
	var rows []models.Question
	err := s.query(set, string(models.PhaseBuzzer), seen).
		Preload("Options", func(db *gorm.DB) *gorm.DB { return db.Order("options.\"order\" ASC") }).
		Order("RANDOM()").Limit(buzzerBatchSize).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("buzzer batch: %w", err)
	}
	if len(rows) == 0 {
		return nil, ErrBankEmpty
	}

	batch := make([]models.BuzzerQuestion, 0, len(rows))
	for _, row := range rows {
		q := models.BuzzerQuestion{ID: row.ID, Text: row.Text, CorrectIndex: -1}
		for i, opt := range row.Options {
			q.Options = append(q.Options, opt.Text)
			if opt.IsCorrect {
				q.CorrectIndex = i
			}
		}
		if q.CorrectIndex < 0 || len(q.Options) < 2 {
			continue
		}
		batch = append(batch, q)
	}
	if len(batch) == 0 {
		return nil, ErrBankEmpty
	}
	return batch, nil
}

func (s *QuestionService) ChoiceBatch(ctx context.Context, set models.Settings, seen []uint) ([]models.ChoiceItem, error) {
	var rows []models.Question
	err := s.query(set, string(models.PhaseChoice), seen).
		Order("RANDOM()").Limit(choiceBatchSize).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("choice batch: %w", err)
	}
	if len(rows) == 0 {
		return nil, ErrBankEmpty
	}

	batch := make([]models.ChoiceItem, 0, len(rows))
	for _, row := range rows {
		batch = append(batch, models.ChoiceItem{
			ID:      row.ID,
			Text:    row.Text,
			Answer:  strings.ToLower(row.Answer),
			FunFact: row.FunFact,
		})
	}
	return batch, nil
}

func (s *QuestionService) TrackTopics(ctx context.Context, set models.Settings, seen []uint) ([]models.TrackTopic, error) {
	var rows []models.Question
	err := s.query(set, string(models.PhaseTracks), seen).
		Order("topic, step_index").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("track topics: %w", err)
	}

	byTopic := make(map[string][]models.Question)
	for _, row := range rows {
		byTopic[row.Topic] = append(byTopic[row.Topic], row)
	}

	var names []string
	for name, steps := range byTopic {
		if len(steps) >= trackStepCount {
			names = append(names, name)
		}
	}
	if len(names) < 2 {
		return nil, ErrBankEmpty
	}
	sort.Strings(names)
	if len(names) > trackTopicCount {
		names = names[:trackTopicCount]
	}

	topics := make([]models.TrackTopic, 0, len(names))
	for _, name := range names {
		topic := models.TrackTopic{ID: name, Title: name}
		for _, row := range byTopic[name][:trackStepCount] {
			topic.Steps = append(topic.Steps, row.Text)
		}
		topics = append(topics, topic)
	}
	return topics, nil
}

func (s *QuestionService) RaceBatch(ctx context.Context, set models.Settings, seen []uint) ([]models.RaceQuestion, error) {
	var rows []models.Question
	err := s.query(set, string(models.PhaseRace), seen).
		Order("RANDOM()").Limit(raceBatchSize).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("race batch: %w", err)
	}
	if len(rows) == 0 {
		return nil, ErrBankEmpty
	}

	batch := make([]models.RaceQuestion, 0, len(rows))
	for _, row := range rows {
		accepted := strings.Split(row.Answer, "|")
		for i := range accepted {
			accepted[i] = strings.TrimSpace(accepted[i])
		}
		batch = append(batch, models.RaceQuestion{
			ID:              row.ID,
			Text:            row.Text,
			AcceptedAnswers: accepted,
		})
	}
	return batch, nil
}

func (s *QuestionService) MemoryBatch(ctx context.Context, set models.Settings, seen []uint) ([]models.MemoryItem, error) {
	var rows []models.Question
	err := s.query(set, string(models.PhaseMemory), seen).
		Order("RANDOM()").Limit(memoryBatchSize).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("memory batch: %w", err)
	}
	if len(rows) == 0 {
		return nil, ErrBankEmpty
	}

	batch := make([]models.MemoryItem, 0, len(rows))
	for _, row := range rows {
		batch = append(batch, models.MemoryItem{ID: row.ID, Text: row.Text})
	}
	return batch, nil
}
