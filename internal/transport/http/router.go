package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/realtime"
)

// Engine is the part of app.Engine the transport drives.
type Engine interface {
	Create(ctx context.Context, quizID string) (*domain.Session, error)
	Get(ctx context.Context, id string) (*domain.Session, error)
	Start(ctx context.Context, id string) (*domain.Session, error)
	Pause(ctx context.Context, id string) (*domain.Session, error)
	Resume(ctx context.Context, id string) (*domain.Session, error)
	Advance(ctx context.Context, id string) (*domain.Session, error)
	Stop(ctx context.Context, id string) (*domain.Session, error)
	Join(ctx context.Context, code string, p domain.Participant) (*domain.Session, domain.Quiz, error)
	Leave(ctx context.Context, id, participantID string)
	Submit(ctx context.Context, req app.SubmitRequest) (domain.Response, error)
	Snapshot(ctx context.Context, id string) (domain.SnapshotEvent, error)
	Distribution(ctx context.Context, id string, questionIndex int) (domain.Distribution, error)
	Leaderboard(ctx context.Context, id string) (domain.Leaderboard, error)
	Subscribe(ctx context.Context, id, participantID string) (*realtime.Subscription, error)
	Resync(ctx context.Context, sub *realtime.Subscription) error
}

// Follower streams the frames other instances mirrored for a session.
type Follower interface {
	Follow(ctx context.Context, sessionID string) (<-chan []byte, error)
}

// HealthCheck is one dependency probed by /healthz.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

type Config struct {
	Engine         Engine
	Follower       Follower
	AllowedOrigins []string
	HealthChecks   []HealthCheck
}

func NewRouter(c Config) *gin.Engine {
	e := gin.New()
	e.GET("/metrics", gin.WrapH(promhttp.Handler()))
	pprof.Register(e, "/debug/pprof")
	e.Use(gin.Recovery())
	e.Use(cors.New(corsConfig(c.AllowedOrigins)))

	e.GET("/healthz", healthz(c.HealthChecks))

	ws := NewWSHandler(c.Engine)
	e.GET("/ws", gin.WrapF(ws.ServeWS))

	h := &handler{engine: c.Engine, follower: c.Follower}
	v1 := e.Group("/api/v1")
	{
		v1.POST("/sessions", h.createSession)
		v1.GET("/sessions/:id", h.getSession)
		v1.POST("/sessions/:id/start", h.transition(c.Engine.Start))
		v1.POST("/sessions/:id/pause", h.transition(c.Engine.Pause))
		v1.POST("/sessions/:id/resume", h.transition(c.Engine.Resume))
		v1.POST("/sessions/:id/advance", h.transition(c.Engine.Advance))
		v1.POST("/sessions/:id/stop", h.transition(c.Engine.Stop))
		v1.POST("/sessions/:id/answers", h.submitAnswer)
		v1.GET("/sessions/:id/questions/:index/distribution", h.distribution)
		v1.GET("/sessions/:id/leaderboard", h.leaderboard)
		v1.POST("/join", h.join)
		if c.Follower != nil {
			v1.GET("/sessions/:id/events", h.followEvents)
		}
	}
	return e
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return cfg
}

func healthz(checks []HealthCheck) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		report := gin.H{}
		for _, hc := range checks {
			if err := hc.Check(ctx); err != nil {
				status = http.StatusServiceUnavailable
				report[hc.Name] = err.Error()
				continue
			}
			report[hc.Name] = "ok"
		}
		c.JSON(status, gin.H{"status": http.StatusText(status), "checks": report})
	}
}
