package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"spicysweet/models"
)

const (
	// roomTTL keeps abandoned rooms from lingering forever.
	roomTTL = 2 * time.Hour
	// maxTxRetries bounds the optimistic retry loop. Under contention
	// roughly half of all invocations are expected to abort or retry, so
	// the budget is generous.
	maxTxRetries = 16
)

// Redis implements Store on top of a Redis instance. The room aggregate is
// one JSON document per code; WATCH/MULTI/EXEC provides the conditional
// read-modify-write; player scores live in a sibling hash so crediting is a
// plain HINCRBY; committed changes are published on a per-room channel.
type Redis struct {
	client *redis.Client
}

func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client}
}

func roomKey(code string) string   { return "room:" + models.NormalizeCode(code) }
func scoresKey(code string) string { return roomKey(code) + ":scores" }
func eventsKey(code string) string { return roomKey(code) + ":events" }

func (s *Redis) GetRoom(ctx context.Context, code string) (*models.Room, error) {
	data, err := s.client.Get(ctx, roomKey(code)).Result()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get room: %w", err)
	}

	room, err := decodeRoom([]byte(data))
	if err != nil {
		return nil, err
	}

	scores, err := s.client.HGetAll(ctx, scoresKey(code)).Result()
	if err != nil {
		return nil, fmt.Errorf("get scores: %w", err)
	}
	mergeScores(room, scores)
	return room, nil
}

func (s *Redis) PutRoom(ctx context.Context, room *models.Room) error {
	room.Code = models.NormalizeCode(room.Code)
	data, err := json.Marshal(room)
	if err != nil {
		return fmt.Errorf("marshal room: %w", err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, roomKey(room.Code), data, roomTTL)
		for id, p := range room.Players {
			pipe.HSet(ctx, scoresKey(room.Code), id, p.Score)
		}
		pipe.Expire(ctx, scoresKey(room.Code), roomTTL)
		return nil
	})
	if err != nil {
		return fmt.Errorf("put room: %w", err)
	}

	s.publish(ctx, room.Code, Event{Type: "room_updated", Room: room})
	return nil
}

func (s *Redis) UpdateRoom(ctx context.Context, code string, fn UpdateFunc) (*models.Room, error) {
	key := roomKey(code)
	var committed *models.Room

	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Result()
		if err == redis.Nil {
			return ErrNotFound
		}
		if err != nil {
			return err
		}

		room, err := decodeRoom([]byte(data))
		if err != nil {
			return err
		}

		// Score overlay is read unconditionally: the hash only ever moves
		// forward via HINCRBY and is not part of the winner decision state,
		// so watching it would just manufacture conflicts.
		scores, err := tx.HGetAll(ctx, scoresKey(code)).Result()
		if err != nil {
			return err
		}
		mergeScores(room, scores)

		if err := fn(room); err != nil {
			return err
		}

		buf, err := json.Marshal(room)
		if err != nil {
			return fmt.Errorf("marshal room: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, buf, roomTTL)
			return nil
		})
		if err != nil {
			return err
		}
		committed = room
		return nil
	}

	for i := 0; i < maxTxRetries; i++ {
		err := s.client.Watch(ctx, txf, key)
		if err == nil {
			s.publish(ctx, code, Event{Type: "room_updated", Room: committed})
			return committed, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return nil, err
	}
	return nil, ErrConflict
}

func (s *Redis) IncrScore(ctx context.Context, code, playerID string, delta int) (int, error) {
	total, err := s.client.HIncrBy(ctx, scoresKey(code), playerID, int64(delta)).Result()
	if err != nil {
		return 0, fmt.Errorf("incr score: %w", err)
	}
	return int(total), nil
}

func (s *Redis) DeleteRoom(ctx context.Context, code string) error {
	if err := s.client.Del(ctx, roomKey(code), scoresKey(code)).Err(); err != nil {
		return fmt.Errorf("delete room: %w", err)
	}
	s.publish(ctx, code, Event{Type: "room_deleted"})
	return nil
}

func (s *Redis) Subscribe(ctx context.Context, code string) (<-chan Event, func(), error) {
	sub := s.client.Subscribe(ctx, eventsKey(code))
	if _, err := sub.Receive(ctx); err != nil {
		return nil, nil, fmt.Errorf("subscribe: %w", err)
	}

	out := make(chan Event, 16)
	go func() {
		defer close(out)
		for msg := range sub.Channel() {
			var ev Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				log.Warn().Err(err).Str("room", code).Msg("dropping malformed room event")
				continue
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()

	cancel := func() { _ = sub.Close() }
	return out, cancel, nil
}

func (s *Redis) publish(ctx context.Context, code string, ev Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		log.Error().Err(err).Str("room", code).Msg("marshal room event")
		return
	}
	if err := s.client.Publish(ctx, eventsKey(code), payload).Err(); err != nil {
		log.Warn().Err(err).Str("room", code).Msg("publish room event")
	}
}

func decodeRoom(data []byte) (*models.Room, error) {
	var room models.Room
	if err := json.Unmarshal(data, &room); err != nil {
		return nil, fmt.Errorf("unmarshal room: %w", err)
	}
	if room.Players == nil {
		room.Players = make(map[string]*models.Player)
	}
	return &room, nil
}

func mergeScores(room *models.Room, scores map[string]string) {
	for id, raw := range scores {
		p, ok := room.Players[id]
		if !ok {
			continue
		}
		if n, err := strconv.Atoi(raw); err == nil {
			p.Score = n
		}
	}
}
