package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"spicysweet/middleware"
	"spicysweet/models"
	"spicysweet/services"
	"spicysweet/store"
)

type RoomHandler struct {
	rooms     *services.RoomService
	jwtSecret string
}

func NewRoomHandler(rooms *services.RoomService, jwtSecret string) *RoomHandler {
	return &RoomHandler{rooms: rooms, jwtSecret: jwtSecret}
}

type CreateRoomRequest struct {
	HostName string `json:"host_name" binding:"required"`
	Avatar   string `json:"avatar"`
}

type JoinRoomRequest struct {
	Name   string `json:"name" binding:"required"`
	Avatar string `json:"avatar"`
}

type SetTeamRequest struct {
	PlayerID string      `json:"player_id" binding:"required"`
	Team     models.Team `json:"team" binding:"required"`
}

type SetReadyRequest struct {
	PlayerID string `json:"player_id" binding:"required"`
	Ready    *bool  `json:"ready" binding:"required"`
}

type MockPlayerRequest struct {
	Name string      `json:"name" binding:"required"`
	Team models.Team `json:"team" binding:"required"`
}

func (h *RoomHandler) Create(c *gin.Context) {
	var req CreateRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	room, err := h.rooms.Create(c.Request.Context(), req.HostName, req.Avatar)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	token, err := middleware.SignHostToken(h.jwtSecret, room.Code, room.HostID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to issue host token"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"room": room, "host_token": token})
}

func (h *RoomHandler) Get(c *gin.Context) {
	room, err := h.rooms.GetRoom(c.Request.Context(), c.Param("code"))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, room)
}

func (h *RoomHandler) Join(c *gin.Context) {
	var req JoinRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	player, err := h.rooms.Join(c.Request.Context(), c.Param("code"), req.Name, req.Avatar)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, player)
}

func (h *RoomHandler) Rejoin(c *gin.Context) {
	playerID := c.Param("playerID")
	player, err := h.rooms.Rejoin(c.Request.Context(), c.Param("code"), playerID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, player)
}

func (h *RoomHandler) Leave(c *gin.Context) {
	if err := h.rooms.Leave(c.Request.Context(), c.Param("code"), c.Param("playerID")); err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "left room"})
}

func (h *RoomHandler) SetTeam(c *gin.Context) {
	var req SetTeamRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.rooms.SetTeam(c.Request.Context(), c.Param("code"), req.PlayerID, req.Team); err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "team updated"})
}

func (h *RoomHandler) SetReady(c *gin.Context) {
	var req SetReadyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.rooms.SetReady(c.Request.Context(), c.Param("code"), req.PlayerID, *req.Ready); err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "ready updated"})
}

func (h *RoomHandler) Configure(c *gin.Context) {
	var req models.Settings
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	hostID := c.GetString("player_id")
	if err := h.rooms.Configure(c.Request.Context(), c.Param("code"), hostID, req); err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "settings updated"})
}

func (h *RoomHandler) AddMock(c *gin.Context) {
	var req MockPlayerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	hostID := c.GetString("player_id")
	mock, err := h.rooms.AddMockPlayer(c.Request.Context(), c.Param("code"), hostID, req.Name, req.Team)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, mock)
}

// respondServiceError maps the service error taxonomy onto HTTP. Expected
// no-ops (validation rejections and contention aborts) are not transport
// failures: they come back 200 with accepted=false.
func respondServiceError(c *gin.Context, err error) {
	switch {
	case services.IsNoOp(err):
		c.JSON(http.StatusOK, gin.H{"accepted": false, "reason": err.Error()})
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
	case errors.Is(err, services.ErrBankEmpty):
		c.JSON(http.StatusConflict, gin.H{"error": "question bank exhausted"})
	case errors.Is(err, store.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": "too much contention, retry"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
