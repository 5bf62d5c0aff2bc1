package main

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/teamboard/teamboard/internal/auth"
	"github.com/teamboard/teamboard/internal/handlers"
	"github.com/teamboard/teamboard/internal/push"
	"github.com/teamboard/teamboard/internal/store"
	"github.com/teamboard/teamboard/internal/ws"
	"github.com/teamboard/teamboard/pkg/config"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
)

func rateLimitMiddleware(limiterInstance *limiter.Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		limiterContext, err := limiterInstance.Get(c.Request.Context(), c.ClientIP())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "rate limiter error"})
			c.Abort()
			return
		}

		c.Header("X-RateLimit-Limit", fmt.Sprintf("%d", limiterContext.Limit))
		c.Header("X-RateLimit-Remaining", fmt.Sprintf("%d", limiterContext.Remaining))
		c.Header("X-RateLimit-Reset", fmt.Sprintf("%d", limiterContext.Reset))

		if limiterContext.Reached {
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			c.Abort()
			return
		}

		c.Next()
	}
}

type responseBodyWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (w responseBodyWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w responseBodyWriter) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

func serverErrorLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		blw := &responseBodyWriter{body: bytes.NewBuffer(nil), ResponseWriter: c.Writer}
		c.Writer = blw

		c.Next()

		if c.Writer.Status() >= http.StatusInternalServerError {
			log.Printf(
				"HTTP %d %s %s ip=%s duration=%s errors=%q response=%q",
				c.Writer.Status(),
				c.Request.Method,
				c.Request.URL.Path,
				c.ClientIP(),
				time.Since(start).Truncate(time.Millisecond),
				c.Errors.ByType(gin.ErrorTypeAny).String(),
				strings.TrimSpace(blw.body.String()),
			)
		}
	}
}

func panicRecovery() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		log.Printf(
			"panic recovered method=%s path=%s ip=%s error=%v\n%s",
			c.Request.Method,
			c.Request.URL.Path,
			c.ClientIP(),
			recovered,
			debug.Stack(),
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	})
}

func corsMiddleware(origins string) gin.HandlerFunc {
	corsConfig := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}

	if origins == "" || origins == "*" {
		corsConfig.AllowAllOrigins = true
		corsConfig.AllowCredentials = false
	} else {
		for _, origin := range strings.Split(origins, ",") {
			if origin = strings.TrimSpace(origin); origin != "" {
				corsConfig.AllowOrigins = append(corsConfig.AllowOrigins, origin)
			}
		}
	}

	return cors.New(corsConfig)
}

func main() {
	cfg := config.Load()

	if len(os.Args) > 1 {
		if err := runCommand(cfg, os.Args[1:]); err != nil {
			log.Fatalf("%v", err)
		}
		return
	}

	if err := runServer(cfg); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

func runCommand(cfg *config.Config, args []string) error {
	command := args[0]

	switch command {
	case "status":
		return runStatus(cfg, os.Stdout, args[1:])
	case "-h", "--help", "help":
		printUsage(os.Stdout)
		return nil
	default:
		printUsage(os.Stderr)
		return fmt.Errorf("unknown command: %s", command)
	}
}

func printUsage(out *os.File) {
	fmt.Fprintln(out, "Usage:")
	fmt.Fprintln(out, "  teamboard           Start the web server")
	fmt.Fprintln(out, "  teamboard status    Show application statistics")
	fmt.Fprintln(out, "  teamboard status --json")
}

func runServer(cfg *config.Config) error {
	os.MkdirAll(cfg.FileStoragePath, 0755)

	st, err := store.Open(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	defer st.Close()

	authSvc := auth.NewWithTokenTTL(st, cfg.JWTSecret, time.Duration(cfg.TokenTTLHours)*time.Hour)
	notifier := push.NewNotifier(st, cfg.VAPIDPublicKey, cfg.VAPIDPrivateKey)

	hub := ws.NewHub(st, notifier)
	go hub.Run()

	authHandler := handlers.NewAuthHandler(authSvc)
	msgHandler := handlers.NewMessageHandler(st, hub, hub)
	meetingHandler := handlers.NewMeetingHandler(st, hub)
	todoHandler := handlers.NewTodoHandler(st)
	userHandler := handlers.NewUserHandler(st, hub, notifier, cfg.FileStoragePath, cfg.MaxUploadSize)

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(serverErrorLogger())
	router.Use(gin.Logger())
	router.Use(panicRecovery())
	router.Use(corsMiddleware(cfg.CORSOrigins))
	router.MaxMultipartMemory = cfg.MaxUploadSize

	api := router.Group("/api")
	{
		loginLimiter := limiter.New(memory.NewStore(), limiter.Rate{Period: time.Minute, Limit: 5})
		registerLimiter := limiter.New(memory.NewStore(), limiter.Rate{Period: time.Minute, Limit: 2})

		api.POST("/register", rateLimitMiddleware(registerLimiter), authHandler.Register)
		api.POST("/login", rateLimitMiddleware(loginLimiter), authHandler.Login)
	}

	protected := api.Group("")
	protected.Use(authHandler.AuthMiddleware())
	{
		// Messages and conversations
		protected.GET("/messages", msgHandler.GetMessages)
		protected.GET("/conversations", msgHandler.GetConversations)
		protected.POST("/conversations", msgHandler.CreateConversation)
		protected.PATCH("/conversations/:id", msgHandler.UpdateConversation)
		protected.PUT("/conversations/:id/read", msgHandler.MarkConversationRead)

		// Meetings
		protected.GET("/meetings", meetingHandler.GetMeetings)
		protected.POST("/meetings", meetingHandler.CreateMeeting)
		protected.PUT("/meetings/:id", meetingHandler.UpdateMeeting)
		protected.DELETE("/meetings/:id", meetingHandler.DeleteMeeting)

		// Todos
		protected.GET("/todos", todoHandler.GetTodos)
		protected.POST("/todos", todoHandler.CreateTodo)
		protected.PATCH("/todos/:id", todoHandler.PatchTodo)
		protected.DELETE("/todos/:id", todoHandler.DeleteTodo)

		// Users and profile
		protected.GET("/users", userHandler.GetUsers)
		protected.GET("/profile", userHandler.GetMyProfile)
		protected.PUT("/profile", userHandler.UpdateProfile)
		protected.POST("/upload", userHandler.UploadFile)

		// Push notifications
		protected.POST("/push/subscribe", userHandler.SubscribePush)
		protected.POST("/push/unsubscribe", userHandler.UnsubscribePush)
		protected.GET("/push/vapid-key", userHandler.GetVAPIDKey)
	}

	// Serve uploaded files from configured storage path
	router.Static("/api/files", cfg.FileStoragePath)

	// WebSocket endpoint
	router.GET("/ws", authHandler.AuthMiddleware(), hub.HandleWebSocket)

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	addr := fmt.Sprintf("0.0.0.0:%s", cfg.Port)
	log.Printf("Starting server on %s", addr)

	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigint := make(chan os.Signal, 1)
	signal.Notify(sigint, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case <-sigint:
		log.Println("Shutting down gracefully...")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(ctx)
	}
}
