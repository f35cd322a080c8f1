package main

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// OpenConnectionRequest opens a platform connection, optionally resuming a session
type OpenConnectionRequest struct {
	APIID       int    `json:"api_id" binding:"required"`
	APIHash     string `json:"api_hash" binding:"required"`
	PhoneNumber string `json:"phone_number" binding:"required"`
	Session     string `json:"session"`
}

type SignInRequest struct {
	PhoneCodeHash string `json:"phone_code_hash" binding:"required"`
	Code          string `json:"code" binding:"required"`
}

type CreateChannelRequest struct {
	Title     string `json:"title" binding:"required"`
	Megagroup bool   `json:"megagroup"`
}

type ExportInviteRequest struct {
	Handle string `json:"handle" binding:"required"`
}

type SendMessageRequest struct {
	Target string `json:"target" binding:"required"`
	Body   string `json:"body" binding:"required"`
}

type ChannelResponse struct {
	ExternalID string `json:"external_id"`
	Handle     string `json:"handle"`
}

type HealthResponse struct {
	Status      string    `json:"status"`
	BridgeID    string    `json:"bridge_id"`
	Timestamp   time.Time `json:"timestamp"`
	FailureRate float64   `json:"failure_rate"`
	Connections int       `json:"connections"`
}

type connection struct {
	phone    string
	signedIn bool
}

// MockBridge simulates the messaging platform bridge in memory
type MockBridge struct {
	mu          sync.Mutex
	failureRate float64
	minDelay    time.Duration
	maxDelay    time.Duration
	code        string
	bridgeID    string
	rng         *rand.Rand
	seq         int64
	connections map[string]*connection
	codes       map[string]string
	channels    map[string]string
}

func NewMockBridge(failureRate float64, minDelay, maxDelay time.Duration, code string) *MockBridge {
	return &MockBridge{
		failureRate: failureRate,
		minDelay:    minDelay,
		maxDelay:    maxDelay,
		code:        code,
		bridgeID:    "MOCK_BRIDGE_" + uuid.New().String()[:8],
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
		connections: make(map[string]*connection),
		codes:       make(map[string]string),
		channels:    make(map[string]string),
	}
}

func (m *MockBridge) randomDelay() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	delta := m.maxDelay - m.minDelay
	if delta <= 0 {
		return m.minDelay
	}
	return m.minDelay + time.Duration(m.rng.Int63n(int64(delta)))
}

// simulateFailure answers with a platform error for a share of requests equal
// to the failure rate. It reports whether it wrote a response.
func (m *MockBridge) simulateFailure(c *gin.Context) bool {
	m.mu.Lock()
	roll := m.rng.Float64()
	failed := roll < m.failureRate
	floodWait := m.rng.Intn(3) + 1
	m.mu.Unlock()

	if !failed {
		return false
	}

	// split failures evenly between flood waits and outages
	if roll < m.failureRate/2 {
		c.Header("Retry-After", strconv.Itoa(floodWait))
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "FLOOD_WAIT", "retry_after": floodWait})
		return true
	}
	c.JSON(http.StatusServiceUnavailable, gin.H{"error": "RPC_CALL_FAIL"})
	return true
}

func (m *MockBridge) lookup(c *gin.Context) (connection, bool) {
	m.mu.Lock()
	conn, ok := m.connections[c.Param("id")]
	m.mu.Unlock()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "CONNECTION_NOT_FOUND"})
		return connection{}, false
	}
	return *conn, true
}

type Handler struct {
	bridge *MockBridge
}

func NewHandler(bridge *MockBridge) *Handler {
	return &Handler{bridge: bridge}
}

func (h *Handler) OpenConnection(c *gin.Context) {
	var req OpenConnectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
		return
	}
	if h.bridge.simulateFailure(c) {
		return
	}

	id := uuid.NewString()
	h.bridge.mu.Lock()
	h.bridge.connections[id] = &connection{phone: req.PhoneNumber, signedIn: req.Session != ""}
	h.bridge.mu.Unlock()

	log.Info().
		Str("connection_id", id).
		Str("phone", req.PhoneNumber).
		Bool("resumed", req.Session != "").
		Msg("Connection opened")

	c.JSON(http.StatusCreated, gin.H{"connection_id": id})
}

func (h *Handler) SendCode(c *gin.Context) {
	conn, ok := h.bridge.lookup(c)
	if !ok {
		return
	}

	hash := uuid.NewString()
	h.bridge.mu.Lock()
	h.bridge.codes[hash] = h.bridge.code
	h.bridge.mu.Unlock()

	log.Info().Str("phone", conn.phone).Str("code", h.bridge.code).Msg("Verification code sent")
	c.JSON(http.StatusOK, gin.H{"phone_code_hash": hash})
}

func (h *Handler) SignIn(c *gin.Context) {
	if _, ok := h.bridge.lookup(c); !ok {
		return
	}

	var req SignInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
		return
	}

	h.bridge.mu.Lock()
	expected, found := h.bridge.codes[req.PhoneCodeHash]
	if found && expected == req.Code {
		delete(h.bridge.codes, req.PhoneCodeHash)
		if conn, ok := h.bridge.connections[c.Param("id")]; ok {
			conn.signedIn = true
		}
	}
	h.bridge.mu.Unlock()

	if !found || expected != req.Code {
		c.JSON(http.StatusBadRequest, gin.H{"error": "PHONE_CODE_INVALID"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"session": "bridge-session-" + uuid.NewString()})
}

func (h *Handler) CreateChannel(c *gin.Context) {
	conn, ok := h.bridge.lookup(c)
	if !ok {
		return
	}
	if !conn.signedIn {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "AUTH_KEY_UNREGISTERED"})
		return
	}

	var req CreateChannelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
		return
	}

	time.Sleep(h.bridge.randomDelay())
	if h.bridge.simulateFailure(c) {
		log.Warn().Str("title", req.Title).Int("status", c.Writer.Status()).Msg("Channel creation failed")
		return
	}

	h.bridge.mu.Lock()
	h.bridge.seq++
	resp := ChannelResponse{
		ExternalID: fmt.Sprintf("-100%d", 1000000+h.bridge.seq),
		Handle:     fmt.Sprintf("channel-%d", h.bridge.seq),
	}
	h.bridge.channels[resp.Handle] = req.Title
	h.bridge.mu.Unlock()

	log.Info().
		Str("title", req.Title).
		Str("handle", resp.Handle).
		Bool("megagroup", req.Megagroup).
		Msg("Channel created")

	c.JSON(http.StatusOK, resp)
}

func (h *Handler) ExportInvite(c *gin.Context) {
	if _, ok := h.bridge.lookup(c); !ok {
		return
	}

	var req ExportInviteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
		return
	}

	h.bridge.mu.Lock()
	_, exists := h.bridge.channels[req.Handle]
	h.bridge.mu.Unlock()
	if !exists {
		c.JSON(http.StatusBadRequest, gin.H{"error": "CHANNEL_INVALID"})
		return
	}
	if h.bridge.simulateFailure(c) {
		return
	}

	c.JSON(http.StatusOK, gin.H{"link": "https://t.me/+" + uuid.NewString()[:12]})
}

func (h *Handler) SendMessage(c *gin.Context) {
	if _, ok := h.bridge.lookup(c); !ok {
		return
	}

	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
		return
	}
	if h.bridge.simulateFailure(c) {
		return
	}

	log.Debug().Str("target", req.Target).Msg("Message sent")
	c.Status(http.StatusNoContent)
}

func (h *Handler) CloseConnection(c *gin.Context) {
	id := c.Param("id")
	h.bridge.mu.Lock()
	delete(h.bridge.connections, id)
	h.bridge.mu.Unlock()

	log.Info().Str("connection_id", id).Msg("Connection closed")
	c.Status(http.StatusNoContent)
}

func (h *Handler) HealthCheck(c *gin.Context) {
	h.bridge.mu.Lock()
	resp := HealthResponse{
		Status:      "healthy",
		BridgeID:    h.bridge.bridgeID,
		Timestamp:   time.Now(),
		FailureRate: h.bridge.failureRate,
		Connections: len(h.bridge.connections),
	}
	h.bridge.mu.Unlock()

	c.JSON(http.StatusOK, resp)
}

// UpdateConfig allows changing the failure rate at runtime
func (h *Handler) UpdateConfig(c *gin.Context) {
	var config struct {
		FailureRate *float64 `json:"failure_rate"`
	}
	if err := c.ShouldBindJSON(&config); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
		return
	}

	h.bridge.mu.Lock()
	if config.FailureRate != nil && *config.FailureRate >= 0 && *config.FailureRate <= 1.0 {
		h.bridge.failureRate = *config.FailureRate
		log.Info().Float64("rate", *config.FailureRate).Msg("Updated failure rate")
	}
	rate := h.bridge.failureRate
	h.bridge.mu.Unlock()

	c.JSON(http.StatusOK, gin.H{"failure_rate": rate})
}

func SetupRouter(handler *Handler) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.Use(func(c *gin.Context) {
		start := time.Now()
		c.Next()

		log.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("duration", time.Since(start)).
			Msg("Request processed")
	})

	v1 := router.Group("/v1")
	{
		v1.POST("/connections", handler.OpenConnection)
		v1.POST("/connections/:id/code", handler.SendCode)
		v1.POST("/connections/:id/sign-in", handler.SignIn)
		v1.POST("/connections/:id/channels", handler.CreateChannel)
		v1.POST("/connections/:id/invites", handler.ExportInvite)
		v1.POST("/connections/:id/messages", handler.SendMessage)
		v1.DELETE("/connections/:id", handler.CloseConnection)
		v1.PUT("/config", handler.UpdateConfig)
	}

	router.GET("/health", handler.HealthCheck)

	return router
}

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	port := getEnv("PORT", "8081")
	failureRate := getEnvFloat("FAILURE_RATE", 0)
	minDelay := getEnvDuration("MIN_DELAY", 50*time.Millisecond)
	maxDelay := getEnvDuration("MAX_DELAY", 300*time.Millisecond)
	code := getEnv("VERIFICATION_CODE", "12345")

	log.Info().
		Str("port", port).
		Float64("failure_rate", failureRate).
		Dur("min_delay", minDelay).
		Dur("max_delay", maxDelay).
		Msg("Starting mock messaging bridge")

	bridge := NewMockBridge(failureRate, minDelay, maxDelay, code)
	router := SetupRouter(NewHandler(bridge))

	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("Server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
