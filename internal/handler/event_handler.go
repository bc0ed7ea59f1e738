package handler

import (
	"net/http"

	"backend/internal/service"
	"backend/pkg/pagination"
	"backend/pkg/response"

	"github.com/gin-gonic/gin"
)

type EventHandler struct {
	eventService service.EventService
}

func NewEventHandler(eventService service.EventService) *EventHandler {
	return &EventHandler{eventService: eventService}
}

func (h *EventHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/api/events", h.ListEvents)
}

// ListEvents returns the persisted domain event log, newest first
// @Summary      List domain events
// @Tags         events
// @Produce      json
// @Param        page   query     int  false  "Page number (default 1)"
// @Param        limit  query     int  false  "Items per page (default 50)"
// @Success      200    {object}  response.Response{data=[]model.EventLog,meta=pagination.Meta}
// @Router       /api/events [get]
func (h *EventHandler) ListEvents(c *gin.Context) {
	p := pagination.ParseWithLimit(c, 50)

	events, total, err := h.eventService.List(c.Request.Context(), p.Page, p.Limit)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Paginated(http.StatusOK, events, p.Meta(total)))
}
