package handler

import (
	"net/http"

	"backend/internal/service"
	"backend/pkg/response"

	"github.com/gin-gonic/gin"
)

type MatchingHandler struct {
	matchingService service.MatchingService
}

func NewMatchingHandler(matchingService service.MatchingService) *MatchingHandler {
	return &MatchingHandler{matchingService: matchingService}
}

func (h *MatchingHandler) RegisterRoutes(router *gin.RouterGroup) {
	matching := router.Group("/api/matching")
	{
		matching.POST("/run", h.RunMatch)
		matching.GET("/results", h.ListResults)
		matching.GET("/exceptions", h.ListExceptions)
		matching.POST("/exceptions/:id/resolve", h.ResolveException)
		matching.GET("/summary", h.GetSummary)
	}
}

// RunMatch executes a 2-way or 3-way match for an invoice
// @Summary      Run match
// @Description  Compares the invoice against its linked PO (and GRN for 3-way), recording an immutable MatchResult
// @Tags         matching
// @Accept       json
// @Produce      json
// @Param        body  body      service.RunMatchRequest  true  "Invoice number and match type"
// @Success      200   {object}  response.Response{data=service.MatchResultResponse}
// @Failure      404   {object}  response.Response
// @Failure      409   {object}  response.Response
// @Router       /api/matching/run [post]
func (h *MatchingHandler) RunMatch(c *gin.Context) {
	var req service.RunMatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusUnprocessableEntity, response.Error(http.StatusUnprocessableEntity, err.Error()))
		return
	}

	result, err := h.matchingService.RunMatch(c.Request.Context(), req.InvoiceNumber, req.MatchType)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, result))
}

func (h *MatchingHandler) ListResults(c *gin.Context) {
	results, err := h.matchingService.ListResults(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, results))
}

// ListExceptions returns matching exceptions, open-only by default
// @Summary      List matching exceptions
// @Tags         matching
// @Produce      json
// @Param        open_only  query     bool  false  "Only unresolved exceptions (default true)"
// @Success      200        {object}  response.Response{data=[]service.MatchingExceptionResponse}
// @Router       /api/matching/exceptions [get]
func (h *MatchingHandler) ListExceptions(c *gin.Context) {
	openOnly := c.DefaultQuery("open_only", "true") == "true"

	exceptions, err := h.matchingService.ListExceptions(c.Request.Context(), openOnly)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, exceptions))
}

// ResolveException records a write-once resolution on an open exception
// @Summary      Resolve matching exception
// @Description  APPROVED_OVERRIDE also marks the invoice's match status as OVERRIDE_APPROVED
// @Tags         matching
// @Accept       json
// @Produce      json
// @Param        id    path      string                           true  "Exception id"
// @Param        body  body      service.ResolveExceptionRequest  true  "Resolution"
// @Success      200   {object}  response.Response{data=service.MatchingExceptionResponse}
// @Failure      404   {object}  response.Response
// @Failure      409   {object}  response.Response
// @Router       /api/matching/exceptions/{id}/resolve [post]
func (h *MatchingHandler) ResolveException(c *gin.Context) {
	var req service.ResolveExceptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusUnprocessableEntity, response.Error(http.StatusUnprocessableEntity, err.Error()))
		return
	}

	exception, err := h.matchingService.ResolveException(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, exception))
}

func (h *MatchingHandler) GetSummary(c *gin.Context) {
	summary, err := h.matchingService.GetSummary(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, summary))
}
