// Package gateway exposes the scheduling core over HTTP: operator commands
// (start/stop/reset/maintenance), read endpoints backed by the persistence
// cache, and a websocket feed broadcasting live scheduling events to every
// connected dashboard.
package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/paintshop/scheduler/internal/auth"
	"github.com/paintshop/scheduler/internal/buffer"
	"github.com/paintshop/scheduler/internal/coordination"
	"github.com/paintshop/scheduler/internal/engine"
	"github.com/paintshop/scheduler/internal/generator"
	"github.com/paintshop/scheduler/internal/metrics"
	"github.com/paintshop/scheduler/internal/persistence"
	"github.com/paintshop/scheduler/internal/vehicle"
	"github.com/paintshop/scheduler/pkg/circuit"
	events "github.com/paintshop/scheduler/shared/events"
)

// Gateway is the HTTP/websocket command surface over the scheduling core.
type Gateway struct {
	router *gin.Engine

	eng    *engine.Engine
	coord  *coordination.Coordinator
	store  *persistence.Store
	authSv *auth.Service

	breakers *circuit.BreakerGroup

	wsClients map[uuid.UUID]*WSClient
	wsMu      sync.RWMutex

	rateLimiter *RateLimiter

	tickInterval  time.Duration
	generatorSeed int64
}

// WSClient is one connected live-feed subscriber.
type WSClient struct {
	ID   uuid.UUID
	Conn *websocket.Conn
	Send chan []byte
	Done chan struct{}
}

// RateLimiter is a sliding-window limiter keyed by client IP.
type RateLimiter struct {
	requests map[string][]time.Time
	mu       sync.Mutex
	limit    int
	window   time.Duration
}

// Config holds gateway server and rate-limit settings.
type Config struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	RateLimitWindow time.Duration
	RateLimitMax    int
	TickInterval    time.Duration
	GeneratorSeed   int64
}

// NewGateway wires a Gateway over an already-constructed engine,
// coordinator, persistence store and auth service.
func NewGateway(cfg Config, eng *engine.Engine, coord *coordination.Coordinator, store *persistence.Store, authSv *auth.Service) *Gateway {
	breakers := circuit.NewBreakerGroup(circuit.Config{
		MaxFailures: 5,
		Timeout:     30 * time.Second,
		HalfOpenMax: 3,
	})

	g := &Gateway{
		router:    gin.Default(),
		eng:       eng,
		coord:     coord,
		store:     store,
		authSv:    authSv,
		breakers:  breakers,
		wsClients: make(map[uuid.UUID]*WSClient),
		rateLimiter: &RateLimiter{
			requests: make(map[string][]time.Time),
			limit:    cfg.RateLimitMax,
			window:   cfg.RateLimitWindow,
		},
		tickInterval:  cfg.TickInterval,
		generatorSeed: cfg.GeneratorSeed,
	}

	g.setupRoutes()
	return g
}

func (g *Gateway) setupRoutes() {
	g.router.Use(g.rateLimitMiddleware())
	g.router.Use(g.tracingMiddleware())

	g.router.GET("/health", g.healthCheck)
	g.router.POST("/api/v1/auth/login", g.login)

	v1 := g.router.Group("/api/v1")
	{
		v1.POST("/seed", g.authMiddleware("control"), g.seedVehicles)

		v1.POST("/engine/start", g.authMiddleware("control"), g.startEngine)
		v1.POST("/engine/stop", g.authMiddleware("control"), g.stopEngine)
		v1.POST("/engine/reset", g.authMiddleware("control"), g.resetEngine)

		v1.GET("/lanes", g.getLanes)
		v1.GET("/lanes/:id", g.getLane)
		v1.POST("/lanes/:id/maintenance", g.authMiddleware("control"), g.setLaneMaintenance)

		v1.GET("/metrics", g.getMetrics)
		v1.GET("/status", g.getStatus)
		v1.GET("/report", g.getReport)

		v1.GET("/ws", g.authMiddleware("read"), g.handleWebSocket)
	}
}

// Start runs the gateway's HTTP server on addr, blocking until it exits.
func (g *Gateway) Start(addr string) error {
	return g.router.Run(addr)
}

// Middleware

func (g *Gateway) authMiddleware(permission string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.GetHeader("Authorization")
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization"})
			return
		}

		claims, err := g.authSv.VerifyToken(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		if permission != "" && !claims.HasPermission(permission) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "insufficient permission"})
			return
		}

		c.Set("operator_id", claims.OperatorID)
		c.Next()
	}
}

func (g *Gateway) rateLimitMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		if !g.rateLimiter.Allow(ip) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}

func (g *Gateway) tracingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		correlationID := c.GetHeader("X-Correlation-ID")
		if correlationID == "" {
			correlationID = uuid.New().String()
		}

		c.Set("correlation_id", correlationID)
		c.Header("X-Correlation-ID", correlationID)
		c.Next()
	}
}

// Handlers

func (g *Gateway) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

type loginRequest struct {
	OperatorID   string `json:"operator_id" binding:"required"`
	PasswordHash string `json:"password_hash" binding:"required"`
}

func (g *Gateway) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	token, err := g.authSv.Authenticate(req.OperatorID, req.PasswordHash)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"token": token})
}

func (g *Gateway) startEngine(c *gin.Context) {
	err := g.breakers.Execute(c.Request.Context(), "engine-start", func() error {
		g.eng.Start(context.Background(), g.tickInterval)
		return nil
	})
	if err != nil {
		g.writeBreakerError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"message": "engine started"})
}

func (g *Gateway) stopEngine(c *gin.Context) {
	err := g.breakers.Execute(c.Request.Context(), "engine-stop", func() error {
		g.eng.Stop()
		return nil
	})
	if err != nil {
		g.writeBreakerError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"message": "engine stopped"})
}

func (g *Gateway) resetEngine(c *gin.Context) {
	// Reset may only run after Stop has completed; reject up front rather
	// than tripping the breaker on an expected caller error.
	if g.eng.IsRunning() {
		c.JSON(http.StatusConflict, gin.H{"error": "reset rejected: engine is running, stop it first"})
		return
	}

	err := g.breakers.Execute(c.Request.Context(), "engine-reset", func() error {
		return g.eng.Reset()
	})
	if err != nil {
		g.writeBreakerError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"message": "engine reset"})
}

func (g *Gateway) getLanes(c *gin.Context) {
	lanes := g.eng.Lanes()
	records := make([]events.LaneRecord, 0, len(lanes))
	for _, lane := range lanes {
		records = append(records, laneRecord(lane.Snapshot()))
	}
	c.JSON(http.StatusOK, gin.H{"lanes": records})
}

func (g *Gateway) getLane(c *gin.Context) {
	id := c.Param("id")
	lane, ok := g.eng.Lanes()[id]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown lane"})
		return
	}
	c.JSON(http.StatusOK, laneRecord(lane.Snapshot()))
}

type maintenanceRequest struct {
	UnderMaintenance bool `json:"under_maintenance"`
}

func (g *Gateway) setLaneMaintenance(c *gin.Context) {
	id := c.Param("id")
	lane, ok := g.eng.Lanes()[id]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown lane"})
		return
	}

	var req maintenanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	lane.SetAvailable(!req.UnderMaintenance)

	if g.coord != nil {
		if err := g.coord.SetMaintenance(c.Request.Context(), "default", id, req.UnderMaintenance); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to propagate maintenance flag"})
			return
		}
	}

	g.BroadcastLaneMaintenance(id, req.UnderMaintenance)
	c.JSON(http.StatusAccepted, gin.H{"message": "maintenance flag updated"})
}

type seedRequest struct {
	Count int    `json:"count" binding:"required"`
	Seed  *int64 `json:"seed"`
}

func (g *Gateway) seedVehicles(c *gin.Context) {
	var req seedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	if g.store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "persistence unavailable"})
		return
	}

	seed := g.generatorSeed
	if req.Seed != nil {
		seed = *req.Seed
	}

	vehicles := generator.Generate(req.Count, seed)
	if err := g.store.SeedVehicles(c.Request.Context(), vehicles); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"message": "seeded", "count": len(vehicles)})
}

func (g *Gateway) getStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"running":     g.eng.IsRunning(),
		"tick":        g.eng.Tick(),
		"oven1_queue": g.eng.OvenQueueDepth(vehicle.O1),
		"oven2_queue": g.eng.OvenQueueDepth(vehicle.O2),
	})
}

type bufferReportEntry struct {
	ID                string         `json:"id"`
	ColorCounts       map[string]int `json:"color_counts"`
	ChangeoverPending bool           `json:"changeover_pending"`
}

func (g *Gateway) getReport(c *gin.Context) {
	snap := g.eng.Metrics().Snapshot(g.eng.Lanes())

	lanes := g.eng.Lanes()
	buffers := make([]bufferReportEntry, 0, len(lanes))
	for id, lane := range lanes {
		ls := lane.Snapshot()
		counts := make(map[string]int, len(ls.ColorCounts))
		for color, n := range ls.ColorCounts {
			counts[string(color)] = n
		}
		buffers = append(buffers, bufferReportEntry{
			ID:                id,
			ColorCounts:       counts,
			ChangeoverPending: ls.LastColor != "" && ls.CurrentColor != "" && ls.LastColor != ls.CurrentColor,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"metrics": metricsRecord(snap),
		"buffers": buffers,
	})
}

func (g *Gateway) getMetrics(c *gin.Context) {
	if g.store != nil {
		snap, err := g.store.CachedMetrics(c.Request.Context(), 5*time.Second)
		if err == nil {
			c.JSON(http.StatusOK, metricsRecord(snap))
			return
		}
	}

	snap := g.eng.Metrics().Snapshot(g.eng.Lanes())
	c.JSON(http.StatusOK, metricsRecord(snap))
}

func (g *Gateway) writeBreakerError(c *gin.Context, err error) {
	if err == circuit.ErrCircuitOpen {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "command surface temporarily unavailable"})
		return
	}
	if err == engine.ErrRunning {
		c.JSON(http.StatusConflict, gin.H{"error": "reset rejected: engine is running, stop it first"})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}

// WebSocket handling

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

func (g *Gateway) handleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	client := &WSClient{
		ID:   uuid.New(),
		Conn: conn,
		Send: make(chan []byte, 16),
		Done: make(chan struct{}),
	}

	g.wsMu.Lock()
	g.wsClients[client.ID] = client
	g.wsMu.Unlock()

	go g.wsReadPump(client)
	go g.wsWritePump(client)
}

func (g *Gateway) wsReadPump(client *WSClient) {
	defer func() {
		g.wsMu.Lock()
		delete(g.wsClients, client.ID)
		g.wsMu.Unlock()
		close(client.Done)
		client.Conn.Close()
	}()

	for {
		// The feed is read-only from the client's perspective; discard any
		// inbound frames (pings, client-side keepalives) without decoding.
		if _, _, err := client.Conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (g *Gateway) wsWritePump(client *WSClient) {
	for {
		select {
		case message := <-client.Send:
			if err := client.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-client.Done:
			return
		}
	}
}

func (g *Gateway) broadcast(eventType, aggregateID, aggregateType string, data interface{}) {
	g.wsMu.RLock()
	defer g.wsMu.RUnlock()
	if len(g.wsClients) == 0 {
		return
	}

	evt, err := events.NewEvent(eventType, aggregateID, aggregateType, data, events.Metadata{})
	if err != nil {
		return
	}
	payload, err := json.Marshal(evt)
	if err != nil {
		return
	}

	for _, client := range g.wsClients {
		select {
		case client.Send <- payload:
		default:
			// Slow subscriber: drop rather than block the broadcaster.
		}
	}
}

// BroadcastVehicleAssigned notifies subscribers of a successful buffer
// assignment. Wired into the engine's Sink by cmd/scheduler.
func (g *Gateway) BroadcastVehicleAssigned(rec events.VehicleRecord) {
	g.broadcast(events.FeedVehicleAssigned, rec.Buffer, "vehicle", rec)
}

// BroadcastVehiclePainted notifies subscribers that one vehicle was drained
// onto the conveyor.
func (g *Gateway) BroadcastVehiclePainted(carID int) {
	g.broadcast(events.FeedVehiclePainted, intToStr(carID), "vehicle", gin.H{"car_id": carID})
}

// BroadcastBufferOverflow notifies subscribers a vehicle could not be
// placed anywhere.
func (g *Gateway) BroadcastBufferOverflow(carID int) {
	g.broadcast(events.FeedBufferOverflow, intToStr(carID), "vehicle", gin.H{"car_id": carID})
}

// BroadcastMetrics pushes a metrics snapshot to every connected dashboard;
// cmd/scheduler calls it from the engine's Sink.OnFlush hook on each flush.
func (g *Gateway) BroadcastMetrics(rec events.MetricsRecord) {
	g.broadcast(events.FeedMetricsTick, "metrics", "metrics", rec)
}

// BroadcastLaneMaintenance notifies subscribers of a maintenance toggle.
func (g *Gateway) BroadcastLaneMaintenance(laneID string, underMaintenance bool) {
	g.broadcast(events.FeedLaneMaintenance, laneID, "lane", gin.H{
		"lane_id":           laneID,
		"under_maintenance": underMaintenance,
	})
}

func intToStr(i int) string {
	return strconv.Itoa(i)
}

func laneRecord(s buffer.Snapshot) events.LaneRecord {
	counts := make(map[string]int, len(s.ColorCounts))
	for c, n := range s.ColorCounts {
		counts[string(c)] = n
	}
	primary := make([]string, len(s.PrimaryColors))
	for i, c := range s.PrimaryColors {
		primary[i] = string(c)
	}
	return events.LaneRecord{
		ID:            s.ID,
		Capacity:      s.Capacity,
		Occupancy:     s.Occupancy,
		CurrentColor:  string(s.CurrentColor),
		LastColor:     string(s.LastColor),
		IsAvailable:   s.IsAvailable,
		IsFlex:        s.IsFlex,
		ColorCounts:   counts,
		PrimaryColors: primary,
	}
}

func metricsRecord(s metrics.Snapshot) events.MetricsRecord {
	return events.MetricsRecord{
		VehiclesProcessed:    s.VehiclesProcessed,
		TotalChangeovers:     s.TotalChangeovers,
		O2StoppageEvents:     s.O2StoppageEvents,
		BufferOverflowEvents: s.BufferOverflowEvents,
		Throughput:           s.Throughput,
		EfficiencyPercent:    s.EfficiencyPercent,
		TotalLostTimeSeconds: int(s.TotalLostTimeSeconds),
		Oven1Occupancy:       s.Oven1Occupancy,
		Oven2Occupancy:       s.Oven2Occupancy,
		LastPaintedColor:     string(s.LastPaintedColor),
	}
}

// Allow checks whether key has capacity left in the current window.
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-rl.window)

	requests := rl.requests[key]
	valid := make([]time.Time, 0, len(requests))
	for _, t := range requests {
		if t.After(cutoff) {
			valid = append(valid, t)
		}
	}

	if len(valid) >= rl.limit {
		return false
	}

	rl.requests[key] = append(valid, now)
	return true
}
