package notify

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/BlackMaN314/daily-routine-bot/internal/domain"
)

const (
	serviceName  = "telegram-bot-notifications"
	readTimeout  = 5 * time.Second
	sendTimeout  = 30 * time.Second
	writeTimeout = sendTimeout + 5*time.Second
)

// Sender delivers a message to a chat and returns the platform message id.
type Sender interface {
	SendMessage(ctx context.Context, chatID int64, text string, kb domain.Keyboard) (int, error)
}

// Server accepts push requests from the backend and relays them to chats.
type Server struct {
	echo        *echo.Echo
	addr        string
	sender      Sender
	sendTimeout time.Duration
	log         *zap.Logger
}

func NewServer(addr string, sender Sender, log *zap.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Server.ReadTimeout = readTimeout
	e.Server.WriteTimeout = writeTimeout

	s := &Server{echo: e, addr: addr, sender: sender, sendTimeout: sendTimeout, log: log}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.echo.Use(s.requestLogger())
	s.echo.Use(middleware.Recover())
	s.echo.Use(middleware.BodyLimit("1M"))

	s.echo.GET("/health", s.handleHealth)
	s.echo.POST("/notify", s.handleNotify)
}

func (s *Server) requestLogger() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:  true,
		LogURI:     true,
		LogMethod:  true,
		LogLatency: true,
		LogError:   true,
		LogValuesFunc: func(_ echo.Context, v middleware.RequestLoggerValues) error {
			fields := []zap.Field{
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency),
			}
			if v.Error != nil {
				fields = append(fields, zap.Error(v.Error))
			}
			s.log.Debug("push request", fields...)
			return nil
		},
	})
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.echo }

// Start blocks serving on the configured address. It returns
// http.ErrServerClosed after Shutdown.
func (s *Server) Start() error {
	s.log.Info("push endpoint listening", zap.String("addr", s.addr))
	if err := s.echo.Start(s.addr); err != nil {
		return fmt.Errorf("push endpoint: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("push endpoint shutdown: %w", err)
	}
	return nil
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "ok",
		"service": serviceName,
	})
}
