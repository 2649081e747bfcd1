package handler

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/minetick/ticket-store/internal/errs"
	"github.com/minetick/ticket-store/internal/model"
	"github.com/minetick/ticket-store/internal/service"
	"github.com/minetick/ticket-store/internal/storage"
)

type TicketHandler struct {
	svc *service.TicketService
}

func NewTicketHandler(svc *service.TicketService) *TicketHandler {
	return &TicketHandler{svc: svc}
}

type createTicketRequest struct {
	Creator  string `json:"creator" binding:"required"`
	Message  string `json:"message" binding:"required"`
	Location string `json:"location"`
}

func (h *TicketHandler) Create(c *gin.Context) {
	var req createTicketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	creator, err := model.ParseCreator(req.Creator)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid creator"})
		return
	}
	loc, err := model.ParseLocation(req.Location)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid location"})
		return
	}
	t, err := h.svc.Create(c.Request.Context(), creator, req.Message, loc)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create ticket"})
		return
	}
	c.JSON(http.StatusCreated, t)
}

func (h *TicketHandler) Get(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	t, err := h.svc.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

// List serves the staff listing views. filter selects open (default),
// assigned (to ?assignment= plus ?groups=) or unassigned tickets.
func (h *TicketHandler) List(c *gin.Context) {
	page := queryInt(c, "page", 1)
	var (
		res storage.Result
		err error
	)
	switch c.DefaultQuery("filter", "open") {
	case "open":
		res, err = h.svc.OpenTickets(c.Request.Context(), page)
	case "assigned":
		res, err = h.svc.OpenTicketsAssignedTo(c.Request.Context(), page, c.Query("assignment"), queryList(c, "groups"))
	case "unassigned":
		res, err = h.svc.OpenTicketsNotAssigned(c.Request.Context(), page)
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown filter"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list tickets"})
		return
	}
	c.JSON(http.StatusOK, res)
}

type actionRequest struct {
	Actor    string `json:"actor" binding:"required"`
	Message  string `json:"message"`
	Location string `json:"location"`
}

func (h *TicketHandler) Comment(c *gin.Context) {
	id, req, loc, ok := h.bindAction(c, true)
	if !ok {
		return
	}
	actor, err := model.ParseCreator(req.Actor)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid actor"})
		return
	}
	if err := h.svc.Comment(c.Request.Context(), id, actor, req.Message, loc); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type assignRequest struct {
	Actor string `json:"actor" binding:"required"`
	// Assignment is a player name, "::group" for a permission group, or ""
	// to unassign.
	Assignment string `json:"assignment"`
	Location   string `json:"location"`
}

func (h *TicketHandler) Assign(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	var req assignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	actor, err := model.ParseCreator(req.Actor)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid actor"})
		return
	}
	loc, err := model.ParseLocation(req.Location)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid location"})
		return
	}
	if err := h.svc.Assign(c.Request.Context(), id, actor, req.Assignment, loc); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *TicketHandler) Close(c *gin.Context) {
	id, req, loc, ok := h.bindAction(c, false)
	if !ok {
		return
	}
	actor, err := model.ParseCreator(req.Actor)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid actor"})
		return
	}
	if req.Message != "" {
		if err := h.svc.Comment(c.Request.Context(), id, actor, req.Message, loc); err != nil {
			respondError(c, err)
			return
		}
	}
	if err := h.svc.Close(c.Request.Context(), id, actor, loc); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *TicketHandler) Reopen(c *gin.Context) {
	id, req, loc, ok := h.bindAction(c, false)
	if !ok {
		return
	}
	actor, err := model.ParseCreator(req.Actor)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid actor"})
		return
	}
	if err := h.svc.Reopen(c.Request.Context(), id, actor, loc); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type priorityRequest struct {
	Actor    string `json:"actor" binding:"required"`
	Priority uint8  `json:"priority" binding:"required"`
	Location string `json:"location"`
}

func (h *TicketHandler) SetPriority(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	var req priorityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	actor, err := model.ParseCreator(req.Actor)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid actor"})
		return
	}
	priority, err := model.ParsePriority(req.Priority)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "priority must be 1..5"})
		return
	}
	loc, err := model.ParseLocation(req.Location)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid location"})
		return
	}
	if err := h.svc.SetPriority(c.Request.Context(), id, actor, priority, loc); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// MarkRead clears the ticket's unread flag for its creator.
func (h *TicketHandler) MarkRead(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	if err := h.svc.MarkRead(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type massCloseRequest struct {
	LowerID  uint64 `json:"lower_id"`
	UpperID  uint64 `json:"upper_id" binding:"required"`
	Actor    string `json:"actor" binding:"required"`
	Location string `json:"location"`
}

func (h *TicketHandler) MassClose(c *gin.Context) {
	var req massCloseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	actor, err := model.ParseCreator(req.Actor)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid actor"})
		return
	}
	loc, err := model.ParseLocation(req.Location)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid location"})
		return
	}
	if err := h.svc.MassClose(c.Request.Context(), req.LowerID, req.UpperID, actor, loc); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

// Search translates query parameters into a search constraint. Every
// parameter is optional; present parameters are ANDed.
func (h *TicketHandler) Search(c *gin.Context) {
	var constraint storage.SearchConstraint
	if v := c.Query("creator"); v != "" {
		creator, err := model.ParseCreator(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid creator"})
			return
		}
		constraint.Creator = &creator
	}
	if v := c.Query("creator_name"); v != "" {
		// Unknown names resolve to the unresolved sentinel and match nothing.
		creator := h.svc.ResolveCreator(c.Request.Context(), v)
		constraint.Creator = &creator
	}
	if v, ok := c.GetQuery("assigned"); ok {
		constraint.Assigned = &v
	}
	if v := c.Query("priority"); v != "" {
		p, err := parsePriorityParam(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "priority must be 1..5"})
			return
		}
		constraint.Priority = &p
	}
	if v := c.Query("min_priority"); v != "" {
		p, err := parsePriorityParam(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "min_priority must be 1..5"})
			return
		}
		constraint.MinPriority = &p
	}
	if v := c.Query("status"); v != "" {
		status := model.Status(strings.ToUpper(v))
		if status != model.StatusOpen && status != model.StatusClosed {
			c.JSON(http.StatusBadRequest, gin.H{"error": "status must be OPEN or CLOSED"})
			return
		}
		constraint.Status = &status
	}
	if v := c.Query("closed_by"); v != "" {
		creator, err := model.ParseCreator(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid closed_by"})
			return
		}
		constraint.ClosedBy = &creator
	}
	if v := c.Query("last_closed_by"); v != "" {
		creator, err := model.ParseCreator(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid last_closed_by"})
			return
		}
		constraint.LastClosedBy = &creator
	}
	if v, ok := c.GetQuery("world"); ok {
		constraint.World = &v
	}
	if v := c.Query("created_after"); v != "" {
		ts, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "created_after must be epoch seconds"})
			return
		}
		constraint.CreatedAfter = &ts
	}
	constraint.Keywords = queryList(c, "keywords")

	res, err := h.svc.Search(c.Request.Context(), constraint, queryInt(c, "page", 1))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "search failed"})
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *TicketHandler) CountOpen(c *gin.Context) {
	var (
		count int64
		err   error
	)
	if assignment, ok := c.GetQuery("assignment"); ok {
		count, err = h.svc.CountOpenAssignedTo(c.Request.Context(), assignment, queryList(c, "groups"))
	} else {
		count, err = h.svc.CountOpen(c.Request.Context())
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "count failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": count})
}

// Updates lists ids of tickets whose creators have unread changes,
// optionally narrowed to one creator.
func (h *TicketHandler) Updates(c *gin.Context) {
	var (
		ids []uint64
		err error
	)
	if v := c.Query("creator"); v != "" {
		creator, perr := model.ParseCreator(v)
		if perr != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid creator"})
			return
		}
		ids, err = h.svc.UnreadUpdatesFor(c.Request.Context(), creator)
	} else {
		ids, err = h.svc.UnreadUpdates(c.Request.Context())
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list updates"})
		return
	}
	if ids == nil {
		ids = []uint64{}
	}
	c.JSON(http.StatusOK, gin.H{"ticket_ids": ids})
}

func (h *TicketHandler) bindAction(c *gin.Context, requireMessage bool) (uint64, actionRequest, model.Location, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, actionRequest{}, model.Location{}, false
	}
	var req actionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return 0, actionRequest{}, model.Location{}, false
	}
	if requireMessage && req.Message == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message is required"})
		return 0, actionRequest{}, model.Location{}, false
	}
	loc, err := model.ParseLocation(req.Location)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid location"})
		return 0, actionRequest{}, model.Location{}, false
	}
	return id, req, loc, true
}

func respondError(c *gin.Context, err error) {
	if errors.Is(err, errs.ErrTicketNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "ticket not found"})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}

func parsePriorityParam(v string) (model.Priority, error) {
	n, err := strconv.ParseUint(v, 10, 8)
	if err != nil {
		return 0, err
	}
	return model.ParsePriority(uint8(n))
}

func queryInt(c *gin.Context, key string, def int) int {
	if v := c.Query(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func queryList(c *gin.Context, key string) []string {
	var out []string
	for _, raw := range c.QueryArray(key) {
		for _, part := range strings.Split(raw, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
