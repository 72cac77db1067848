package store

import (
	"context"
	"encoding/json"
	"sync"

	"spicysweet/models"
)

// Memory is an in-process Store with the same transactional semantics as the
// Redis one. It backs every service test and lets the server run without
// Redis in dev mode. Rooms are kept as JSON so update functions always work
// on a private copy, exactly like a re-read from Redis.
type Memory struct {
	mu     sync.Mutex
	rooms  map[string][]byte
	scores map[string]map[string]int
	subs   map[string][]chan Event
}

func NewMemory() *Memory {
	return &Memory{
		rooms:  make(map[string][]byte),
		scores: make(map[string]map[string]int),
		subs:   make(map[string][]chan Event),
	}
}

func (s *Memory) GetRoom(ctx context.Context, code string) (*models.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getLocked(code)
}

func (s *Memory) getLocked(code string) (*models.Room, error) {
	code = models.NormalizeCode(code)
	data, ok := s.rooms[code]
	if !ok {
		return nil, ErrNotFound
	}
	room, err := decodeRoom(data)
	if err != nil {
		return nil, err
	}
	for id, score := range s.scores[code] {
		if p, ok := room.Players[id]; ok {
			p.Score = score
		}
	}
	return room, nil
}

func (s *Memory) PutRoom(ctx context.Context, room *models.Room) error {
	room.Code = models.NormalizeCode(room.Code)
	data, err := json.Marshal(room)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.rooms[room.Code] = data
	scores := make(map[string]int, len(room.Players))
	for id, p := range room.Players {
		scores[id] = p.Score
	}
	s.scores[room.Code] = scores
	s.mu.Unlock()

	s.publish(room.Code, Event{Type: "room_updated", Room: room})
	return nil
}

func (s *Memory) UpdateRoom(ctx context.Context, code string, fn UpdateFunc) (*models.Room, error) {
	code = models.NormalizeCode(code)

	s.mu.Lock()
	room, err := s.getLocked(code)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	if err := fn(room); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	data, err := json.Marshal(room)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	s.rooms[code] = data
	s.mu.Unlock()

	s.publish(code, Event{Type: "room_updated", Room: room})
	return room, nil
}

func (s *Memory) IncrScore(ctx context.Context, code, playerID string, delta int) (int, error) {
	code = models.NormalizeCode(code)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.scores[code] == nil {
		s.scores[code] = make(map[string]int)
	}
	s.scores[code][playerID] += delta
	return s.scores[code][playerID], nil
}

func (s *Memory) DeleteRoom(ctx context.Context, code string) error {
	code = models.NormalizeCode(code)
	s.mu.Lock()
	delete(s.rooms, code)
	delete(s.scores, code)
	s.mu.Unlock()
	s.publish(code, Event{Type: "room_deleted"})
	return nil
}

func (s *Memory) Subscribe(ctx context.Context, code string) (<-chan Event, func(), error) {
	code = models.NormalizeCode(code)
	ch := make(chan Event, 16)

	s.mu.Lock()
	s.subs[code] = append(s.subs[code], ch)
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		subs := s.subs[code]
		for i, c := range subs {
			if c == ch {
				s.subs[code] = append(subs[:i], subs[i+1:]...)
				close(ch)
				return
			}
		}
	}
	return ch, cancel, nil
}

func (s *Memory) publish(code string, ev Event) {
	s.mu.Lock()
	subs := append([]chan Event(nil), s.subs[code]...)
	s.mu.Unlock()
	for _, ch := range subs {
		select {
		case ch <- ev:
		default:
			// Slow subscriber; drop rather than stall a commit.
		}
	}
}
