package main

import (
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"spicysweet/config"
	"spicysweet/handlers"
	"spicysweet/middleware"
	"spicysweet/models"
	"spicysweet/routes"
	"spicysweet/services"
	"spicysweet/store"
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	db, err := config.InitDB(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}

	if err := db.AutoMigrate(
		&models.Question{},
		&models.Option{},
		&models.GameResult{},
	); err != nil {
		log.Fatal().Err(err).Msg("failed to migrate database")
	}

	redisClient := config.InitRedis(cfg)
	st := store.NewRedis(redisClient)

	hub := services.NewHub(st)

	rooms := services.NewRoomService(st, db, hub)
	hub.SetPresence(rooms)

	questions := services.NewQuestionService(db)
	sched := services.NewScheduler()

	var judge services.Judge
	if cfg.JudgeURL != "" {
		judge = services.NewHTTPJudge(cfg.JudgeURL)
	} else {
		log.Warn().Msg("judge_url not set, accepting any non-empty track answer")
		judge = services.LenientJudge{}
	}

	buzzer := services.NewBuzzerService(st, questions, hub, sched)
	choice := services.NewChoiceService(st, questions, hub, sched)
	tracks := services.NewTracksService(st, questions, judge, hub)
	race := services.NewRaceService(st, questions, hub, sched)
	memory := services.NewMemoryService(st, questions, hub)

	go hub.Run()

	roomHandler := handlers.NewRoomHandler(rooms, cfg.JWTSecret)
	gameHandler := handlers.NewGameHandler(rooms, buzzer, choice, tracks, race, memory)

	router := gin.Default()
	router.Use(middleware.CORS())

	routes.SetupRoutes(router, roomHandler, gameHandler, hub, rooms, cfg.JWTSecret)

	addr := cfg.BindAddress + ":" + cfg.Port
	log.Info().Str("addr", addr).Msg("server starting")
	if err := router.Run(addr); err != nil {
		log.Fatal().Err(err).Msg("server exited")
	}
}
