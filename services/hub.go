package services

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"spicysweet/models"
	"spicysweet/store"
)

// Presence is how the hub reports connect/disconnect to the room aggregate.
// Disconnects only mark players offline; reconnection with the same id is
// always possible.
type Presence interface {
	SetOnline(ctx context.Context, code, playerID string, online bool) error
}

// Hub owns every websocket client, fans server events out per room, and
// relays the store's change stream so clients see committed state no matter
// which process committed it.
type Hub struct {
	store    store.Store
	presence Presence

	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	mutex      sync.RWMutex

	// watchers tracks the one store subscription per room with local
	// clients attached.
	watchers map[string]*roomWatcher
}

type roomWatcher struct {
	cancel  func()
	clients int
}

type Client struct {
	hub      *Hub
	id       string
	socket   *websocket.Conn
	send     chan []byte
	roomCode string
	playerID string
}

type Message struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

func NewHub(st store.Store) *Hub {
	return &Hub{
		store:      st,
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		watchers:   make(map[string]*roomWatcher),
	}
}

// SetPresence wires the room service in after construction; the room
// service broadcasts through the hub, so the two reference each other
// through interfaces.
func (h *Hub) SetPresence(p Presence) {
	h.presence = p
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mutex.Lock()
			h.clients[client] = true
			h.mutex.Unlock()
			h.watchRoom(client.roomCode)
			log.Info().Str("room", client.roomCode).Str("player", client.playerID).Msg("client registered")
			if h.presence != nil {
				if err := h.presence.SetOnline(context.Background(), client.roomCode, client.playerID, true); err != nil && !IsNoOp(err) {
					log.Warn().Err(err).Str("player", client.playerID).Msg("failed to mark player online")
				}
			}

		case client := <-h.unregister:
			h.mutex.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mutex.Unlock()
			h.unwatchRoom(client.roomCode)
			log.Info().Str("room", client.roomCode).Str("player", client.playerID).Msg("client unregistered")
			if h.presence != nil {
				if err := h.presence.SetOnline(context.Background(), client.roomCode, client.playerID, false); err != nil && !IsNoOp(err) {
					log.Warn().Err(err).Str("player", client.playerID).Msg("failed to mark player offline")
				}
			}
		}
	}
}

// watchRoom starts the store subscription for a room when its first local
// client attaches, relaying committed room documents to everyone here.
func (h *Hub) watchRoom(code string) {
	code = models.NormalizeCode(code)

	h.mutex.Lock()
	if w, ok := h.watchers[code]; ok {
		w.clients++
		h.mutex.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	h.watchers[code] = &roomWatcher{cancel: cancel, clients: 1}
	h.mutex.Unlock()

	events, stop, err := h.store.Subscribe(ctx, code)
	if err != nil {
		log.Warn().Err(err).Str("room", code).Msg("room subscription failed")
		cancel()
		return
	}

	go func() {
		defer stop()
		for ev := range events {
			if ev.Room != nil {
				h.BroadcastToRoom(code, "room_state", ev.Room)
			}
		}
	}()
}

func (h *Hub) unwatchRoom(code string) {
	code = models.NormalizeCode(code)
	h.mutex.Lock()
	defer h.mutex.Unlock()
	w, ok := h.watchers[code]
	if !ok {
		return
	}
	w.clients--
	if w.clients <= 0 {
		w.cancel()
		delete(h.watchers, code)
	}
}

func (h *Hub) BroadcastToRoom(code, messageType string, payload any) {
	code = models.NormalizeCode(code)
	data, err := json.Marshal(Message{Type: messageType, Payload: payload})
	if err != nil {
		log.Error().Err(err).Str("type", messageType).Msg("failed to marshal broadcast")
		return
	}

	h.mutex.Lock()
	defer h.mutex.Unlock()
	for client := range h.clients {
		if client.roomCode != code {
			continue
		}
		select {
		case client.send <- data:
		default:
			close(client.send)
			delete(h.clients, client)
		}
	}
}

// IsPlayerConnected reports live presence for a player in this process. The
// authoritative online flag lives on the aggregate.
func (h *Hub) IsPlayerConnected(code, playerID string) bool {
	code = models.NormalizeCode(code)
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	for client := range h.clients {
		if client.roomCode == code && client.playerID == playerID {
			return true
		}
	}
	return false
}

func (h *Hub) RegisterClient(conn *websocket.Conn, code, playerID string) *Client {
	client := &Client{
		hub:      h,
		id:       uuid.NewString(),
		socket:   conn,
		send:     make(chan []byte, 256),
		roomCode: models.NormalizeCode(code),
		playerID: playerID,
	}

	h.register <- client

	go client.writePump()
	go client.readPump()

	return client
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.socket.Close()
	}()

	for {
		_, raw, err := c.socket.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Warn().Err(err).Str("player", c.playerID).Msg("websocket read error")
			}
			break
		}

		var msg Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			log.Warn().Err(err).Str("player", c.playerID).Msg("malformed client message")
			continue
		}
		c.handleMessage(msg)
	}
}

func (c *Client) writePump() {
	defer c.socket.Close()

	for message := range c.send {
		if err := c.socket.WriteMessage(websocket.TextMessage, message); err != nil {
			return
		}
	}
	c.socket.WriteMessage(websocket.CloseMessage, []byte{})
}

func (c *Client) handleMessage(msg Message) {
	switch msg.Type {
	case "ping":
		data, _ := json.Marshal(Message{Type: "pong"})
		select {
		case c.send <- data:
		default:
		}

	case "request_state":
		room, err := c.hub.store.GetRoom(context.Background(), c.roomCode)
		if err != nil {
			log.Warn().Err(err).Str("room", c.roomCode).Msg("state sync failed")
			return
		}
		data, err := json.Marshal(Message{Type: "room_state", Payload: room})
		if err != nil {
			return
		}
		select {
		case c.send <- data:
		default:
		}

	default:
		log.Debug().Str("type", msg.Type).Str("player", c.playerID).Msg("unknown message type")
	}
}
