package handler

import (
	"net/http"

	"backend/internal/service"
	"backend/pkg/response"

	"github.com/gin-gonic/gin"
)

type GSTHandler struct {
	gstService service.GSTService
}

func NewGSTHandler(gstService service.GSTService) *GSTHandler {
	return &GSTHandler{gstService: gstService}
}

func (h *GSTHandler) RegisterRoutes(router *gin.RouterGroup) {
	gst := router.Group("/api/gst")
	{
		gst.GET("/records", h.ListRecords)
		gst.GET("/records/:gstin", h.GetRecord)
	}
}

func (h *GSTHandler) ListRecords(c *gin.Context) {
	records, err := h.gstService.List(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, records))
}

// GetRecord reads one cached GST registration snapshot by GSTIN
// @Summary      Get GST cache record
// @Tags         gst
// @Produce      json
// @Param        gstin  path      string  true  "GSTIN"
// @Success      200    {object}  response.Response{data=service.GSTLookupResponse}
// @Failure      404    {object}  response.Response
// @Router       /api/gst/records/{gstin} [get]
func (h *GSTHandler) GetRecord(c *gin.Context) {
	record, err := h.gstService.Lookup(c.Request.Context(), c.Param("gstin"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, record))
}
