// cmd/server/main.go
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"

	"chessonline/internal/auth"
	"chessonline/internal/cache"
	"chessonline/internal/database"
	"chessonline/internal/handlers"
	"chessonline/internal/matchmaking"
	"chessonline/internal/middleware"
	"chessonline/internal/rooms"
)

func main() {
	logger := logrus.New()
	if os.Getenv("LOG_LEVEL") == "debug" {
		logger.SetLevel(logrus.DebugLevel)
	}

	if err := auth.Init(); err != nil {
		logger.Fatalf("auth init failed: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		roomStore rooms.Store
		users     rooms.UserLookup
		userStore *database.UserStore
	)
	if os.Getenv("PG_HOST") != "" {
		pool, err := database.Connect(ctx)
		if err != nil {
			logger.Fatalf("database connect failed: %v", err)
		}
		defer pool.Close()
		roomStore = database.NewRoomStore(pool)
		userStore = database.NewUserStore(pool)
		users = userStore
		logger.Info("using postgres room store")
	} else {
		roomStore = rooms.NewMemoryStore()
		logger.Warn("PG_HOST not set, using in-memory room store")
	}

	codegen := rooms.NewCodeGenerator(roomStore)
	manager := rooms.NewManager(roomStore, users, codegen, logger)
	queue := matchmaking.NewQueue(logger)
	coordinator := matchmaking.NewCoordinator(queue, manager, logger)

	if rdb, err := cache.ConnectRedis(ctx); err != nil {
		logger.WithError(err).Warn("redis unavailable, room events disabled")
	} else {
		publisher := cache.NewRoomEventPublisher(rdb)
		manager.SetEventPublisher(publisher)
		coordinator.SetEventPublisher(publisher)
	}

	reaper := rooms.NewReaper(
		roomStore,
		envDuration("REAPER_INTERVAL", rooms.DefaultReapInterval),
		envDuration("ROOM_RETENTION", rooms.DefaultRoomRetention),
		logger,
	)
	go reaper.Run(ctx)

	roomsAPI := &handlers.RoomsAPI{Manager: manager, Match: coordinator, Log: logger}

	mux := http.NewServeMux()

	// room endpoints
	mux.HandleFunc("POST /rooms/create-private", handlers.CreatePrivateRoomHandler(roomsAPI))
	mux.HandleFunc("POST /rooms/quick-join", handlers.QuickJoinHandler(roomsAPI))
	mux.HandleFunc("POST /rooms/find-match", handlers.FindMatchHandler(roomsAPI))
	mux.HandleFunc("POST /rooms/cancel-matchmaking", handlers.CancelMatchmakingHandler(roomsAPI))
	mux.HandleFunc("GET /rooms/matchmaking-status", handlers.MatchmakingStatusHandler(roomsAPI))
	mux.HandleFunc("POST /rooms/join/{code}", handlers.JoinByCodeHandler(roomsAPI))
	mux.HandleFunc("POST /rooms/{id}/leave", handlers.LeaveRoomHandler(roomsAPI))
	mux.HandleFunc("POST /rooms/{id}/finish", handlers.FinishRoomHandler(roomsAPI))
	mux.HandleFunc("GET /rooms/{id}", handlers.RoomInfoHandler(roomsAPI))
	mux.HandleFunc("POST /admin/rooms/provision", handlers.ProvisionRoomsHandler(roomsAPI))

	// user endpoints (postgres only)
	if userStore != nil {
		usersAPI := &handlers.UsersAPI{Store: userStore, Log: logger}
		mux.HandleFunc("POST /user/create", handlers.CreateUserHandler(usersAPI))
		mux.HandleFunc("POST /user/login", handlers.LoginHandler(usersAPI))
		mux.HandleFunc("GET /user/me", handlers.MeHandler(usersAPI))
		mux.HandleFunc("POST /user/profile", handlers.UpdateProfileHandler(usersAPI))
	}

	addr := ":8080"
	if port := os.Getenv("PORT"); port != "" {
		addr = ":" + port
	}

	srv := &http.Server{
		Addr:    addr,
		Handler: middleware.LogMiddleware(logger)(mux),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Error("server shutdown error")
		}
	}()

	logger.Infof("Running on %s", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("server exited: %v", err)
	}
}

func envDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
