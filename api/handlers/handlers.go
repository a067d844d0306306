package handlers

import (
	"context"
	"log/slog"
	"math/rand"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/NethermindEth/eternal-regression/ai"
	"github.com/NethermindEth/eternal-regression/communication"
	"github.com/NethermindEth/eternal-regression/core"
	"github.com/NethermindEth/eternal-regression/registry"
	"github.com/NethermindEth/eternal-regression/regression"
	"github.com/NethermindEth/eternal-regression/roster"
)

// MaxRounds caps the rounds a single API request may ask for.
const MaxRounds = 100

// Deps are the collaborators shared by every request.
type Deps struct {
	Cast        roster.Cast
	Backend     ai.Backend
	Agent       core.AgentConfig
	MaxAttempts int
	Registry    *registry.Registry
	Hub         *communication.Hub
	Forum       *communication.Forum
	Messenger   *communication.Messenger // optional
	Logger      *slog.Logger
}

type Handler struct {
	deps   Deps
	sinks  communication.Fanout
	logger *slog.Logger
}

func New(deps Deps) *Handler {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Registry == nil {
		deps.Registry = registry.New()
	}
	if deps.Forum == nil {
		deps.Forum = communication.NewForum()
	}

	var sinks communication.Fanout
	if deps.Hub != nil {
		sinks = append(sinks, deps.Hub)
	}
	sinks = append(sinks, deps.Forum)
	if deps.Messenger != nil {
		sinks = append(sinks, deps.Messenger)
	}
	return &Handler{deps: deps, sinks: sinks, logger: deps.Logger}
}

// StartRequest is the body of POST /api/regressions.
type StartRequest struct {
	Rounds      int    `json:"rounds" binding:"required,min=1"`
	Seed        *int64 `json:"seed"`
	MaxAttempts int    `json:"max_attempts"`
}

// GetCast returns the personas used for new regressions.
func (h *Handler) GetCast(c *gin.Context) {
	c.JSON(http.StatusOK, h.deps.Cast)
}

// StartRegression starts a regression in the background and returns its id.
// Progress is observable through the events endpoint, the websocket feed and NATS.
func (h *Handler) StartRegression(c *gin.Context) {
	var req StartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}
	if req.Rounds > MaxRounds {
		c.JSON(http.StatusBadRequest, gin.H{"error": "rounds must be at most " + strconv.Itoa(MaxRounds)})
		return
	}

	opts := regression.Options{
		MaxAttempts: h.deps.MaxAttempts,
		Agent:       h.deps.Agent,
		Logger:      h.logger,
	}
	if req.MaxAttempts > 0 {
		opts.MaxAttempts = req.MaxAttempts
	}
	if req.Seed != nil {
		opts.Rand = rand.New(rand.NewSource(*req.Seed))
	}

	driver, err := regression.New(h.deps.Backend, h.deps.Cast, opts)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	stream, err := driver.Stream(req.Rounds)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	run := h.deps.Registry.Register(req.Rounds, cancel)
	h.deps.Forum.CreateThread(run.ID, "Eternal regression "+run.ID, h.deps.Cast.Herald)
	h.logger.Info("regression registered", "run", run.ID, "rounds", req.Rounds)

	go h.pump(ctx, cancel, run, stream)

	c.JSON(http.StatusAccepted, gin.H{
		"message": "Regression started",
		"id":      run.ID,
		"rounds":  req.Rounds,
	})
}

// pump drives the stream to completion, recording and publishing every event.
func (h *Handler) pump(ctx context.Context, cancel context.CancelFunc, run *registry.Run, stream *regression.Stream) {
	defer cancel()
	if h.deps.Hub != nil {
		h.deps.Hub.Broadcast(communication.EventRegressionStarted, run.ID, run.Info())
	}

	err := stream.Each(ctx, func(ev core.Event) error {
		run.Append(ev)
		if ev.Type == core.EventRoundEnd {
			run.SetRecords(stream.Log().Rounds)
		}
		if err := h.sinks.Publish(run.ID, ev); err != nil {
			h.logger.Warn("failed to publish event", "run", run.ID, "type", ev.Type, "error", err)
		}
		return nil
	})
	run.SetRecords(stream.Log().Rounds)
	run.Finish(err)

	info := run.Info()
	if err != nil {
		h.logger.Warn("regression stopped", "run", run.ID, "status", info.Status, "error", err)
	} else {
		h.logger.Info("regression finished", "run", run.ID, "rounds", info.Completed)
	}
	if h.deps.Hub != nil {
		h.deps.Hub.Broadcast(communication.EventRegressionFinished, run.ID, info)
	}
}

// ListRegressions returns every known run.
func (h *Handler) ListRegressions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"regressions": h.deps.Registry.List()})
}

// GetRegression returns a run's status and finished rounds.
func (h *Handler) GetRegression(c *gin.Context) {
	run, ok := h.run(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"regression": run.Info(),
		"rounds":     run.Records(),
	})
}

// GetEvents returns the events after the first `after` ones, so a client can
// poll with the count it already holds.
func (h *Handler) GetEvents(c *gin.Context) {
	run, ok := h.run(c)
	if !ok {
		return
	}
	after, err := strconv.Atoi(c.DefaultQuery("after", "0"))
	if err != nil || after < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid after parameter"})
		return
	}
	events := run.Events(after)
	info := run.Info()
	c.JSON(http.StatusOK, gin.H{
		"events": events,
		"next":   after + len(events),
		"status": info.Status,
	})
}

// GetTranscript returns everything said during a run.
func (h *Handler) GetTranscript(c *gin.Context) {
	run, ok := h.run(c)
	if !ok {
		return
	}
	thread, err := h.deps.Forum.GetThread(run.ID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, thread)
}

// CancelRegression stops a run and removes it.
func (h *Handler) CancelRegression(c *gin.Context) {
	id := c.Param("id")
	if !h.deps.Registry.Remove(id) {
		c.JSON(http.StatusNotFound, gin.H{"error": "regression not found: " + id})
		return
	}
	h.deps.Forum.DeleteThread(id)
	h.logger.Info("regression removed", "run", id)
	c.JSON(http.StatusOK, gin.H{"message": "Regression cancelled", "id": id})
}

func (h *Handler) run(c *gin.Context) (*registry.Run, bool) {
	id := c.Param("id")
	run, ok := h.deps.Registry.Get(id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "regression not found: " + id})
		return nil, false
	}
	return run, true
}
