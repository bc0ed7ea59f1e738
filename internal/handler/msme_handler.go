package handler

import (
	"net/http"

	"backend/internal/service"
	"backend/pkg/response"

	"github.com/gin-gonic/gin"
)

type MSMEHandler struct {
	msmeService service.MSMEService
}

func NewMSMEHandler(msmeService service.MSMEService) *MSMEHandler {
	return &MSMEHandler{msmeService: msmeService}
}

func (h *MSMEHandler) RegisterRoutes(router *gin.RouterGroup) {
	msme := router.Group("/api/msme")
	{
		msme.GET("/compliance", h.GetCompliance)
	}
}

// GetCompliance builds the Section 43B(h) payment-SLA dashboard
// @Summary      MSME compliance dashboard
// @Description  Lists MSME invoices ordered by urgency with on-track/at-risk/breached counts and total penalty exposure
// @Tags         msme
// @Produce      json
// @Success      200  {object}  response.Response{data=service.MSMEComplianceResponse}
// @Router       /api/msme/compliance [get]
func (h *MSMEHandler) GetCompliance(c *gin.Context) {
	compliance, err := h.msmeService.GetCompliance(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, compliance))
}
