package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/skyarena/server/internal/engine"
	"github.com/skyarena/server/internal/relocation"
	"github.com/skyarena/server/internal/world"
	"go.uber.org/zap"
)

// JoinRequest creates a character. With a lease it is a relocation arrival.
type JoinRequest struct {
	ID       string            `json:"cid" binding:"required"`
	TeamID   string            `json:"teamid" binding:"required"`
	Life     *int              `json:"life" binding:"required"`
	Strength *int              `json:"strength" binding:"required"`
	Armor    *int              `json:"armor" binding:"required"`
	Speed    *int              `json:"speed" binding:"required"`
	Lease    *relocation.Lease `json:"lease,omitempty"`
}

func (r JoinRequest) Spec() world.CharacterSpec {
	return world.CharacterSpec{
		ID:       r.ID,
		TeamID:   r.TeamID,
		Life:     *r.Life,
		Strength: *r.Strength,
		Armor:    *r.Armor,
		Speed:    *r.Speed,
	}
}

type JoinResponse struct {
	Message   string `json:"message"`
	ID        string `json:"cid"`
	Relocated bool   `json:"relocated"`
}

type SetTargetRequest struct {
	ID       string `json:"cid" binding:"required"`
	TargetID string `json:"target_id" binding:"required"`
}

type SetActionRequest struct {
	ID     string `json:"cid" binding:"required"`
	Action string `json:"action" binding:"required"`
}

// SettleRequest activates a relocated character once the source released it.
type SettleRequest struct {
	ID      string `json:"cid" binding:"required"`
	LeaseID string `json:"lease" binding:"required"`
}

type CharactersResponse struct {
	Characters []string `json:"characters"`
}

type TargetsResponse struct {
	Targets []string `json:"targets"`
}

type StateResponse struct {
	State engine.RunState `json:"state"`
	Turn  int             `json:"turn"`
}

// Handler serves one engine over HTTP.
type Handler struct {
	engine *engine.Engine
	hub    *Hub
	log    *zap.Logger
}

func NewHandler(e *engine.Engine, hub *Hub, log *zap.Logger) *Handler {
	return &Handler{engine: e, hub: hub, log: log}
}

// NewRouter builds the gin engine with every node route registered.
func NewRouter(h *Handler) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(h.log))

	router.GET("/", h.Index)
	router.POST("/join", h.Join)
	router.GET("/characters", h.Characters)
	router.GET("/character/:cid", h.Character)
	router.DELETE("/character/:cid", h.Leave)
	router.GET("/character/:cid/departure", h.Departure)
	router.GET("/character/:cid/targets", h.Targets)
	router.POST("/set_target", h.SetTarget)
	router.POST("/set_action", h.SetAction)
	router.POST("/settle", h.Settle)
	router.POST("/start", h.Start)
	router.POST("/stop", h.Stop)
	router.GET("/status", h.Status)
	router.GET("/history/:turn", h.History)
	if h.hub != nil {
		router.GET("/ws", h.hub.ServeWS)
	}
	return router
}

func requestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	}
}

func (h *Handler) Index(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"node": h.engine.Node(), "state": h.engine.State()})
}

func (h *Handler) Join(c *gin.Context) {
	var req JoinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, fmt.Errorf("%w: incomplete character stats: %v", world.ErrValidation, err))
		return
	}

	var (
		id  string
		err error
	)
	if req.Lease != nil {
		id, err = h.engine.Arrive(req.Spec(), *req.Lease)
	} else {
		id, err = h.engine.AddCharacter(req.Spec())
	}
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, JoinResponse{
		Message:   fmt.Sprintf("character %q joined the arena", id),
		ID:        id,
		Relocated: req.Lease != nil,
	})
}

func (h *Handler) Characters(c *gin.Context) {
	c.JSON(http.StatusOK, CharactersResponse{Characters: h.engine.ListCharacterIDs()})
}

func (h *Handler) Character(c *gin.Context) {
	v, err := h.engine.GetCharacter(c.Param("cid"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, v)
}

// Leave serves DELETE /character/:cid. With ?lease= it is the source side
// of a relocation and only succeeds while that lease is outstanding.
func (h *Handler) Leave(c *gin.Context) {
	cid := c.Param("cid")
	var err error
	if lease := c.Query("lease"); lease != "" {
		err = h.engine.Release(cid, lease)
	} else {
		err = h.engine.RemoveCharacter(cid)
	}
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": fmt.Sprintf("character %q left the arena", cid)})
}

func (h *Handler) Departure(c *gin.Context) {
	dep, err := h.engine.Departure(c.Param("cid"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, dep)
}

func (h *Handler) Targets(c *gin.Context) {
	cid := c.Param("cid")
	if _, err := h.engine.GetCharacter(cid); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, TargetsResponse{Targets: h.engine.ValidTargets(cid)})
}

func (h *Handler) SetTarget(c *gin.Context) {
	var req SetTargetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "cid and target_id are required")
		return
	}
	if world.NormalizeID(req.ID) == world.NormalizeID(req.TargetID) {
		writeError(c, fmt.Errorf("%w: %q cannot target itself", world.ErrValidation, req.ID))
		return
	}
	if err := h.engine.SetTarget(req.ID, req.TargetID); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"cid": req.ID, "target_id": req.TargetID})
}

func (h *Handler) SetAction(c *gin.Context) {
	var req SetActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "cid and action are required")
		return
	}
	action, err := world.ParseAction(req.Action)
	if err != nil {
		writeError(c, err)
		return
	}
	if err := h.engine.SetAction(req.ID, action); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"cid": req.ID, "action": action})
}

func (h *Handler) Settle(c *gin.Context) {
	var req SettleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "cid and lease are required")
		return
	}
	if err := h.engine.Settle(req.ID, req.LeaseID); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"cid": req.ID, "message": fmt.Sprintf("character %q settled", req.ID)})
}

func (h *Handler) Start(c *gin.Context) {
	if err := h.engine.Start(); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, StateResponse{State: h.engine.State(), Turn: h.engine.CurrentTurn()})
}

func (h *Handler) Stop(c *gin.Context) {
	if err := h.engine.Stop(); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, StateResponse{State: h.engine.State(), Turn: h.engine.CurrentTurn()})
}

func (h *Handler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, h.engine.Status())
}

// History serves /history/:turn; "latest" returns the newest snapshot.
func (h *Handler) History(c *gin.Context) {
	param := c.Param("turn")
	if param == "latest" {
		snap, ok := h.engine.LatestSnapshot()
		if !ok {
			writeError(c, fmt.Errorf("no turn resolved yet: %w", world.ErrNotFound))
			return
		}
		c.JSON(http.StatusOK, snap)
		return
	}
	turn, err := strconv.Atoi(param)
	if err != nil || turn < 0 {
		badRequest(c, fmt.Sprintf("invalid turn %q", param))
		return
	}
	snap, err := h.engine.History(turn)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}
