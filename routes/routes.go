package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"spicysweet/handlers"
	"spicysweet/middleware"
	"spicysweet/models"
	"spicysweet/services"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

func SetupRoutes(
	router *gin.Engine,
	roomHandler *handlers.RoomHandler,
	gameHandler *handlers.GameHandler,
	hub *services.Hub,
	rooms *services.RoomService,
	jwtSecret string,
) {
	api := router.Group("/api")
	{
		public := api.Group("/rooms")
		{
			public.POST("", roomHandler.Create)
			public.GET("/:code", roomHandler.Get)
			public.POST("/:code/join", roomHandler.Join)
			public.POST("/:code/rejoin", roomHandler.Rejoin)
			public.POST("/:code/leave", roomHandler.Leave)
			public.POST("/:code/team", roomHandler.SetTeam)
			public.POST("/:code/ready", roomHandler.SetReady)

			public.POST("/:code/buzzer/answer", gameHandler.SubmitBuzzerAnswer)
			public.POST("/:code/choice/answer", gameHandler.SubmitTeamChoice)
			public.POST("/:code/tracks/pick", gameHandler.PickTopic)
			public.POST("/:code/tracks/answer", gameHandler.SubmitTrackAnswer)
			public.POST("/:code/race/answer", gameHandler.SubmitRaceAnswer)
			public.POST("/:code/memory/vote", gameHandler.SubmitVote)
			public.POST("/:code/memory/recall", gameHandler.SubmitRecall)
		}

		host := api.Group("/rooms")
		host.Use(middleware.HostAuth(jwtSecret))
		{
			host.POST("/:code/settings", roomHandler.Configure)
			host.POST("/:code/mock", roomHandler.AddMock)
			host.POST("/:code/advance", gameHandler.AdvancePhase)

			host.POST("/:code/buzzer/next", gameHandler.NextBuzzerQuestion)
			host.POST("/:code/choice/end", gameHandler.EndChoiceRound)
			host.POST("/:code/choice/next", gameHandler.NextChoiceItem)
			host.POST("/:code/tracks/skip", gameHandler.SkipTrackStep)
			host.POST("/:code/race/timeout", gameHandler.RaceTimeout)
			host.POST("/:code/race/next", gameHandler.NextRaceQuestion)
			host.POST("/:code/memory/answering", gameHandler.StartRecall)
		}
	}

	// WebSocket endpoint. Connecting marks the player online, disconnecting
	// marks them offline; room state changes are pushed over this socket.
	router.GET("/ws/:code/:playerID", func(c *gin.Context) {
		code := models.NormalizeCode(c.Param("code"))
		playerID := c.Param("playerID")

		room, err := rooms.GetRoom(c.Request.Context(), code)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
			return
		}
		if room.Player(playerID) == nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "player not in room"})
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Error().Err(err).Str("room", code).Str("player", playerID).
				Msg("websocket upgrade failed")
			return
		}

		log.Info().Str("room", code).Str("player", playerID).
			Msg("websocket connected")
		hub.RegisterClient(conn, code, playerID)
	})

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
}
