package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"spicysweet/models"
	"spicysweet/store"
)

// fakeQuestions returns fixed batches regardless of settings.
type fakeQuestions struct {
	buzzer []models.BuzzerQuestion
	choice []models.ChoiceItem
	topics []models.TrackTopic
	race   []models.RaceQuestion
	memory []models.MemoryItem
}

func (f *fakeQuestions) BuzzerBatch(context.Context, models.Settings, []uint) ([]models.BuzzerQuestion, error) {
	return f.buzzer, nil
}

func (f *fakeQuestions) ChoiceBatch(context.Context, models.Settings, []uint) ([]models.ChoiceItem, error) {
	return f.choice, nil
}

func (f *fakeQuestions) TrackTopics(context.Context, models.Settings, []uint) ([]models.TrackTopic, error) {
	return f.topics, nil
}

func (f *fakeQuestions) RaceBatch(context.Context, models.Settings, []uint) ([]models.RaceQuestion, error) {
	return f.race, nil
}

func (f *fakeQuestions) MemoryBatch(context.Context, models.Settings, []uint) ([]models.MemoryItem, error) {
	return f.memory, nil
}

// fakeHub records broadcasts so tests can assert on announced events.
type fakeHub struct {
	mu     sync.Mutex
	events []string
}

func (h *fakeHub) BroadcastToRoom(code, messageType string, payload any) {
	h.mu.Lock()
	h.events = append(h.events, messageType)
	h.mu.Unlock()
}

func (h *fakeHub) saw(messageType string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, e := range h.events {
		if e == messageType {
			return true
		}
	}
	return false
}

// fakeJudge runs a scripted verdict function.
type fakeJudge struct {
	fn func(ctx context.Context, topic string, step int, answer string) (bool, error)
}

func (j *fakeJudge) JudgeAnswer(ctx context.Context, topic string, step int, answer string) (bool, error) {
	return j.fn(ctx, topic, step, answer)
}

// manualScheduler captures armed callbacks instead of starting timers. Tests
// fire them explicitly.
type manualScheduler struct {
	*Scheduler
	mu     sync.Mutex
	fns    []func()
	delays []time.Duration
}

func newManualScheduler() *manualScheduler {
	m := &manualScheduler{Scheduler: NewScheduler()}
	m.Scheduler.afterFunc = func(d time.Duration, fn func()) *time.Timer {
		m.mu.Lock()
		m.fns = append(m.fns, fn)
		m.delays = append(m.delays, d)
		m.mu.Unlock()
		return nil
	}
	return m
}

func (m *manualScheduler) fireAll() {
	m.mu.Lock()
	fns := m.fns
	m.fns = nil
	m.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

func (m *manualScheduler) armed() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.fns)
}

// seedRoom puts a room in the given phase with two teamed-up players:
// p1 on spicy (host) and p2 on sweet.
func seedRoom(t *testing.T, st store.Store, phase models.GamePhase) *models.Room {
	t.Helper()
	room := &models.Room{
		Code:   "AB12CD",
		HostID: "p1",
		Players: map[string]*models.Player{
			"p1": {ID: "p1", Name: "Ana", Team: models.TeamSpicy, Online: true, Ready: true, JoinedAt: time.Unix(100, 0)},
			"p2": {ID: "p2", Name: "Ben", Team: models.TeamSweet, Online: true, Ready: true, JoinedAt: time.Unix(200, 0)},
		},
		State: models.State{
			Phase:                phase,
			PhaseStep:            models.StepIdle,
			CurrentQuestionIndex: -1,
		},
		Settings:  models.Settings{Difficulty: "medium", Language: "en"},
		CreatedAt: time.Unix(50, 0),
	}
	if err := st.PutRoom(context.Background(), room); err != nil {
		t.Fatalf("seed room: %v", err)
	}
	return room
}

func addPlayer(t *testing.T, st store.Store, code string, p *models.Player) {
	t.Helper()
	_, err := st.UpdateRoom(context.Background(), code, func(room *models.Room) error {
		room.Players[p.ID] = p
		return nil
	})
	if err != nil {
		t.Fatalf("add player %s: %v", p.ID, err)
	}
}

func getRoom(t *testing.T, st store.Store, code string) *models.Room {
	t.Helper()
	room, err := st.GetRoom(context.Background(), code)
	if err != nil {
		t.Fatalf("get room: %v", err)
	}
	return room
}

func playerScore(t *testing.T, st store.Store, code, playerID string) int {
	t.Helper()
	room := getRoom(t, st, code)
	p := room.Player(playerID)
	if p == nil {
		t.Fatalf("player %s not in room", playerID)
	}
	return p.Score
}
