// Package relay provides the HTTP relay between a telephony front end and a
// chat completion service. Each request is answered using the caller's recent
// turns as context and the exchange is appended to the turn log.
package relay

import (
	"net"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/papercomputeco/callflow/pkg/llm"
	"github.com/papercomputeco/callflow/pkg/prompt"
	"github.com/papercomputeco/callflow/pkg/storage"
)

// CallIDHeader carries the call identifier on inbound requests.
const CallIDHeader = "call-id"

// HealthStatus is the fixed token returned by the health endpoint.
const HealthStatus = "healthy"

// Server answers inbound caller text with generated replies.
// It takes ownership of the storage driver passed to New.
type Server struct {
	config    Config
	driver    storage.Driver
	completer llm.Completer
	logger    *zap.Logger
	persona   atomic.Pointer[string]
	server    *fiber.App
	mcp       *mcp.Server
}

// New creates a new Server and registers its routes.
func New(config Config, driver storage.Driver, completer llm.Completer, logger *zap.Logger) *Server {
	app := fiber.New(fiber.Config{
		// Disable startup message for cleaner logs
		DisableStartupMessage: true,
	})

	s := &Server{
		config:    config,
		driver:    driver,
		completer: completer,
		logger:    logger,
		server:    app,
	}
	s.SetPersona(config.Persona)
	s.mcp = s.newMCPServer()

	app.Use(cors.New())

	app.Post("/callflow", s.handleCallflow)
	app.Get("/health", s.handleHealth)

	// Turn log inspection endpoints
	app.Get("/turns", s.handleListTurns)
	app.Get("/calls/:callID/history", s.handleCallHistory)
	app.Get("/stats", s.handleStats)

	app.All("/mcp", adaptor.HTTPHandler(s.mcpHandler()))

	return s
}

// Run starts the server on the configured listening address.
func (s *Server) Run() error {
	s.logger.Info("starting relay server", zap.String("listen", s.config.ListenAddr))
	return s.server.Listen(s.config.ListenAddr)
}

// RunWithListener serves on an existing listener.
func (s *Server) RunWithListener(listener net.Listener) error {
	s.logger.Info("starting relay server", zap.String("listen", listener.Addr().String()))
	return s.server.Listener(listener)
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown() error {
	return s.server.Shutdown()
}

// Close shuts the server down and releases the storage driver.
func (s *Server) Close() error {
	if err := s.server.Shutdown(); err != nil {
		s.logger.Warn("failed to shut down server", zap.Error(err))
	}
	return s.driver.Close()
}

// SetPersona replaces the instruction entry for subsequent requests.
func (s *Server) SetPersona(persona string) {
	if persona == "" {
		persona = prompt.DefaultPersona
	}
	s.persona.Store(&persona)
}

// Persona returns the instruction entry currently in use.
func (s *Server) Persona() string {
	return *s.persona.Load()
}

// handleCallflow answers one inbound message.
// The body is raw caller text; the call-id header, when present, selects the
// conversation whose recent turns are replayed as context. A completion
// failure fails the request. Saving the turn is best effort.
func (s *Server) handleCallflow(c *fiber.Ctx) error {
	startTime := time.Now()

	body := string(c.Body())
	callID := c.Get(CallIDHeader)

	s.logger.Info("callflow request received",
		zap.String("call_id", callID),
		zap.String("body_preview", truncate(body, 100)),
	)

	var history []llm.Turn
	if callID != "" {
		history = s.driver.HistoryFor(c.UserContext(), callID)
	}

	messages := prompt.Build(s.Persona(), history, body)

	reply, err := s.completer.Complete(c.UserContext(), messages)
	if err != nil {
		s.logger.Error("completion failed",
			zap.String("call_id", callID),
			zap.Error(err),
		)
		return c.Status(fiber.StatusInternalServerError).JSON(llm.ErrorResponse{Error: "completion failed"})
	}

	s.logger.Debug("received completion",
		zap.String("call_id", callID),
		zap.Int("history_turns", len(history)),
		zap.String("reply_preview", truncate(reply, 100)),
		zap.Duration("duration", time.Since(startTime)),
	)

	// The driver logs its own failures; the caller never sees them.
	s.driver.Append(c.UserContext(), llm.NewTurn(callID, body, reply))

	c.Set(fiber.HeaderContentType, fiber.MIMETextPlainCharsetUTF8)
	return c.SendString(reply)
}

// HealthResponse is returned by the health endpoint.
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// handleHealth reports availability without touching the store or the
// completion service.
func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(HealthResponse{
		Status:    HealthStatus,
		Timestamp: llm.Timestamp(time.Now()),
	})
}

// TurnsResponse lists stored turns in ascending timestamp order.
type TurnsResponse struct {
	// CallID is set for call history responses.
	CallID string     `json:"call_id,omitempty"`
	Count  int        `json:"count"`
	Turns  []llm.Turn `json:"turns"`
}

// handleListTurns returns the most recent turns across all calls.
// ?limit=N overrides the default; limit=0 returns the whole log.
func (s *Server) handleListTurns(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", storage.DefaultLimit)
	if limit < 0 {
		return c.Status(fiber.StatusBadRequest).JSON(llm.ErrorResponse{Error: "limit must not be negative"})
	}

	turns := s.driver.Load(c.UserContext(), limit)
	return c.JSON(TurnsResponse{
		Count: len(turns),
		Turns: turns,
	})
}

// handleCallHistory returns the context a new request on this call would see.
func (s *Server) handleCallHistory(c *fiber.Ctx) error {
	callID := c.Params("callID")
	if callID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(llm.ErrorResponse{Error: "call id parameter required"})
	}

	turns := s.driver.HistoryFor(c.UserContext(), callID)
	return c.JSON(TurnsResponse{
		CallID: callID,
		Count:  len(turns),
		Turns:  turns,
	})
}

// StatsResponse summarises the whole turn log.
type StatsResponse struct {
	TotalTurns     int `json:"total_turns"`
	CallCount      int `json:"call_count"`
	AnonymousTurns int `json:"anonymous_turns"`
}

// handleStats returns statistics about the turn log.
func (s *Server) handleStats(c *fiber.Ctx) error {
	turns := s.driver.Load(c.UserContext(), storage.Unbounded)

	calls := make(map[string]struct{})
	anonymous := 0
	for _, t := range turns {
		if t.CallID == nil {
			anonymous++
			continue
		}
		calls[*t.CallID] = struct{}{}
	}

	return c.JSON(StatsResponse{
		TotalTurns:     len(turns),
		CallCount:      len(calls),
		AnonymousTurns: anonymous,
	})
}

func truncate(s string, maxLen int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
