package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"spicysweet/models"
	"spicysweet/services"
)

// GameHandler exposes the five phase engines. Submission endpoints are open
// to every player; phase starts and the cross-phase advance are host-gated
// by middleware.
type GameHandler struct {
	rooms  *services.RoomService
	buzzer *services.BuzzerService
	choice *services.ChoiceService
	tracks *services.TracksService
	race   *services.RaceService
	memory *services.MemoryService
}

func NewGameHandler(
	rooms *services.RoomService,
	buzzer *services.BuzzerService,
	choice *services.ChoiceService,
	tracks *services.TracksService,
	race *services.RaceService,
	memory *services.MemoryService,
) *GameHandler {
	return &GameHandler{
		rooms:  rooms,
		buzzer: buzzer,
		choice: choice,
		tracks: tracks,
		race:   race,
		memory: memory,
	}
}

// AdvancePhase moves the room to its next phase and starts the matching
// engine.
func (h *GameHandler) AdvancePhase(c *gin.Context) {
	ctx := c.Request.Context()
	code := c.Param("code")
	hostID := c.GetString("player_id")

	next, err := h.rooms.AdvancePhase(ctx, code, hostID)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	switch next {
	case models.PhaseBuzzer:
		err = h.buzzer.Start(ctx, code)
	case models.PhaseChoice:
		err = h.choice.Start(ctx, code)
	case models.PhaseTracks:
		err = h.tracks.Start(ctx, code)
	case models.PhaseRace:
		err = h.race.Start(ctx, code)
	case models.PhaseMemory:
		err = h.memory.Start(ctx, code, time.Now())
	}
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"phase": next})
}

type BuzzerAnswerRequest struct {
	PlayerID    string `json:"player_id" binding:"required"`
	OptionIndex *int   `json:"option_index" binding:"required"`
}

func (h *GameHandler) SubmitBuzzerAnswer(c *gin.Context) {
	var req BuzzerAnswerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	err := h.buzzer.SubmitAnswer(c.Request.Context(), c.Param("code"), req.PlayerID, *req.OptionIndex)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"accepted": true})
}

type NextIndexRequest struct {
	Index *int `json:"index" binding:"required"`
}

func (h *GameHandler) NextBuzzerQuestion(c *gin.Context) {
	var req NextIndexRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.buzzer.StartNextQuestion(c.Request.Context(), c.Param("code"), *req.Index); err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "question started"})
}

type TeamChoiceRequest struct {
	PlayerID string `json:"player_id" binding:"required"`
	Choice   string `json:"choice" binding:"required"`
}

func (h *GameHandler) SubmitTeamChoice(c *gin.Context) {
	var req TeamChoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	err := h.choice.SubmitTeamAnswer(c.Request.Context(), c.Param("code"), req.PlayerID, req.Choice)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"accepted": true})
}

func (h *GameHandler) EndChoiceRound(c *gin.Context) {
	var req NextIndexRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.choice.EndRound(c.Request.Context(), c.Param("code"), *req.Index); err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "round ended"})
}

func (h *GameHandler) NextChoiceItem(c *gin.Context) {
	var req NextIndexRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.choice.NextItem(c.Request.Context(), c.Param("code"), *req.Index); err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "item started"})
}

type PickTopicRequest struct {
	PlayerID string `json:"player_id" binding:"required"`
	TopicID  string `json:"topic_id" binding:"required"`
}

func (h *GameHandler) PickTopic(c *gin.Context) {
	var req PickTopicRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	err := h.tracks.PickTopic(c.Request.Context(), c.Param("code"), req.PlayerID, req.TopicID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"accepted": true})
}

type TrackAnswerRequest struct {
	PlayerID string `json:"player_id" binding:"required"`
	Text     string `json:"text" binding:"required"`
}

func (h *GameHandler) SubmitTrackAnswer(c *gin.Context) {
	var req TrackAnswerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	correct, err := h.tracks.SubmitAnswer(c.Request.Context(), c.Param("code"), req.PlayerID, req.Text)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"accepted": true, "correct": correct})
}

type SkipTrackRequest struct {
	Team models.Team `json:"team" binding:"required"`
}

func (h *GameHandler) SkipTrackStep(c *gin.Context) {
	var req SkipTrackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.tracks.Skip(c.Request.Context(), c.Param("code"), req.Team); err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "step skipped"})
}

type RaceAnswerRequest struct {
	PlayerID string `json:"player_id" binding:"required"`
	Text     string `json:"text" binding:"required"`
	// AnsweredAt is the client-side submission time in unix milliseconds;
	// ordering must reflect user action time, not arrival order.
	AnsweredAt int64 `json:"answered_at" binding:"required"`
}

func (h *GameHandler) SubmitRaceAnswer(c *gin.Context) {
	var req RaceAnswerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	answeredAt := time.UnixMilli(req.AnsweredAt)
	err := h.race.SubmitAnswer(c.Request.Context(), c.Param("code"), req.PlayerID, req.Text, answeredAt)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"accepted": true})
}

func (h *GameHandler) RaceTimeout(c *gin.Context) {
	var req NextIndexRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.race.Timeout(c.Request.Context(), c.Param("code"), *req.Index); err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "round timed out"})
}

func (h *GameHandler) NextRaceQuestion(c *gin.Context) {
	var req NextIndexRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.race.NextQuestion(c.Request.Context(), c.Param("code"), *req.Index); err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "question started"})
}

type VoteRequest struct {
	PlayerID    string `json:"player_id" binding:"required"`
	CandidateID string `json:"candidate_id" binding:"required"`
}

func (h *GameHandler) SubmitVote(c *gin.Context) {
	var req VoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	err := h.memory.SubmitVote(c.Request.Context(), c.Param("code"), req.PlayerID, req.CandidateID, time.Now())
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"accepted": true})
}

func (h *GameHandler) StartRecall(c *gin.Context) {
	if err := h.memory.StartAnswering(c.Request.Context(), c.Param("code")); err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "recall started"})
}

type RecallRequest struct {
	PlayerID string `json:"player_id" binding:"required"`
	Answer   string `json:"answer" binding:"required"`
}

func (h *GameHandler) SubmitRecall(c *gin.Context) {
	var req RecallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	correct, err := h.memory.SubmitRecall(c.Request.Context(), c.Param("code"), req.PlayerID, req.Answer)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"accepted": true, "correct": correct})
}
