package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/RobertWHurst/navaros"
	"github.com/RobertWHurst/wsns"
	"github.com/RobertWHurst/wsns/engine"
	"github.com/RobertWHurst/wsns/middleware/jwtauth"
	"github.com/RobertWHurst/wsns/middleware/set"
	"github.com/RobertWHurst/wsns/middleware/throttle"
	"github.com/RobertWHurst/wsns/registry"
	"github.com/RobertWHurst/wsns/report/natsreport"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

func main() {
	config, err := wsns.LoadConfig(os.Getenv("WSNS_CONFIG"), "WSNS")
	if errors.Is(err, wsns.ErrConfigNotFound) {
		config = wsns.DefaultConfig()
	} else if err != nil {
		panic(err)
	}

	logger, err := wsns.NewLogger(config.Env)
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()
	config.Logger = logger

	auth := jwtauth.New(jwtauth.Config{Secret: []byte(secret())})

	transport := engine.NewServer(config)
	server := wsns.NewServer(config)

	if natsURL := os.Getenv("NATS_URL"); natsURL != "" {
		conn, err := nats.Connect(natsURL)
		if err != nil {
			logger.Fatal("failed to connect to nats", zap.Error(err))
		}
		defer conn.Close()
		hostname, _ := os.Hostname()
		server.AddReporter(natsreport.New(conn, "", hostname))
	}

	server.Middleware().
		Register(set.Func("joinedAt", func(*wsns.Context) (time.Time, error) {
			return time.Now(), nil
		})).
		RegisterNamed(map[string]any{
			"auth":     auth,
			"throttle": throttle.New(),
		})

	controllers := registry.New().
		Register("ChatController", &ChatController{transport: transport}).
		Register("admin/StatsController", &StatsController{server: server, transport: transport})
	server.SetHandlerRegistry(controllers)

	server.Where("room", wsns.MatchSlug())

	server.Namespace("/").
		On("ping", func(ctx *wsns.Context, _ ...any) (any, error) {
			return "pong", nil
		})

	server.Namespace("/chat/:room").
		Middleware("throttle:30,60").
		Connected("ChatController.Join").
		On("message", "ChatController.Message").
		Disconnected("ChatController.Leave")

	server.Namespace("/admin").
		Controllers("admin").
		Middleware("auth:admin").
		On("stats", "StatsController.Stats")

	if err := server.Attach(transport); err != nil {
		logger.Fatal("failed to attach namespaces", zap.Error(err))
	}

	router := navaros.NewRouter()
	router.Use(transport.Middleware())
	router.Get("/health", func(ctx *navaros.Context) {
		ctx.Status = http.StatusOK
		ctx.Body = "ok"
	})

	httpServer := &http.Server{Addr: ":8167", Handler: router}

	go func() {
		logger.Info("starting server", zap.String("addr", httpServer.Addr), zap.String("path", config.Path))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	<-signals

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Close(ctx); err != nil {
		logger.Warn("failed to close websocket server", zap.Error(err))
	}
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Warn("failed to shutdown http server", zap.Error(err))
	}
}

func secret() string {
	if secret := os.Getenv("WSNS_JWT_SECRET"); secret != "" {
		return secret
	}
	return "dev-secret-change-in-production"
}

type ChatController struct {
	transport *engine.Server

	mu      sync.Mutex
	members map[string]int
}

func (c *ChatController) Join(ctx *wsns.Context) error {
	c.mu.Lock()
	if c.members == nil {
		c.members = map[string]int{}
	}
	c.members[ctx.Namespace()]++
	members := c.members[ctx.Namespace()]
	c.mu.Unlock()

	ctx.Logger().Info("joined room", zap.String("room", ctx.Param("room")))
	return ctx.Emit("welcome", map[string]any{
		"room":    ctx.Param("room"),
		"members": members,
	})
}

func (c *ChatController) Message(ctx *wsns.Context, args ...any) (any, error) {
	if len(args) == 0 {
		return nil, wsns.NewException("A message is required", 422, "E_EMPTY_MESSAGE")
	}
	text, ok := args[0].(string)
	if !ok || text == "" {
		return nil, wsns.NewException("A message must be a non empty string", 422, "E_EMPTY_MESSAGE")
	}

	if namespace, ok := c.transport.Namespace(ctx.Namespace()); ok {
		namespace.Broadcast("message", map[string]any{
			"from": ctx.SocketID(),
			"text": text,
		})
	}
	return map[string]any{"delivered": true}, nil
}

func (c *ChatController) Leave(ctx *wsns.Context, reason string) error {
	c.mu.Lock()
	c.members[ctx.Namespace()]--
	c.mu.Unlock()

	ctx.Logger().Info("left room", zap.String("room", ctx.Param("room")), zap.String("reason", reason))
	return nil
}

type StatsController struct {
	server    *wsns.Server
	transport *engine.Server
}

func (c *StatsController) Stats(ctx *wsns.Context, _ ...any) (any, error) {
	stats := map[string]any{
		"clients":     c.transport.ClientCount(),
		"connections": c.server.Executor().ConnectionCount(),
	}
	if claims, ok := jwtauth.ClaimsFrom(ctx); ok {
		stats["requestedBy"] = claims.Subject
	}
	return stats, nil
}
