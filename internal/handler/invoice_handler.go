package handler

import (
	"net/http"
	"time"

	"backend/internal/service"
	"backend/pkg/apperr"
	"backend/pkg/pagination"
	"backend/pkg/response"

	"github.com/gin-gonic/gin"
)

type InvoiceHandler struct {
	invoiceService service.InvoiceService
	msmeService    service.MSMEService
}

func NewInvoiceHandler(invoiceService service.InvoiceService, msmeService service.MSMEService) *InvoiceHandler {
	return &InvoiceHandler{invoiceService: invoiceService, msmeService: msmeService}
}

func (h *InvoiceHandler) RegisterRoutes(router *gin.RouterGroup) {
	invoices := router.Group("/api/invoices")
	{
		invoices.POST("", h.CreateInvoice)
		invoices.GET("", h.ListInvoices)
		invoices.GET("/:number", h.GetInvoice)

		invoices.POST("/:number/extract", h.Extract)
		invoices.POST("/:number/validate", h.Validate)
		invoices.POST("/:number/match", h.Match)
		invoices.POST("/:number/queue", h.Queue)
		invoices.POST("/:number/approve", h.Approve)
		invoices.POST("/:number/reject", h.Reject)
		invoices.POST("/:number/post", h.PostToEBS)
		invoices.POST("/:number/settle", h.Settle)

		invoices.POST("/:number/classify-msme", h.ClassifyMSME)
	}
}

// CreateInvoice captures a new invoice in CAPTURED status
// @Summary      Capture invoice
// @Description  Creates an invoice with computed GST/TDS amounts and a supplier MSME snapshot
// @Tags         invoices
// @Accept       json
// @Produce      json
// @Param        invoice  body      service.CreateInvoiceRequest  true  "Invoice payload"
// @Success      201      {object}  response.Response{data=service.InvoiceDetailResponse}
// @Failure      422      {object}  response.Response
// @Router       /api/invoices [post]
func (h *InvoiceHandler) CreateInvoice(c *gin.Context) {
	var req service.CreateInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusUnprocessableEntity, response.Error(http.StatusUnprocessableEntity, err.Error()))
		return
	}

	invoice, err := h.invoiceService.CreateInvoice(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, invoice))
}

// ListInvoices returns invoices filtered by status and match status
// @Summary      List invoices
// @Tags         invoices
// @Produce      json
// @Param        status        query     string  false  "Lifecycle status filter"
// @Param        match_status  query     string  false  "Match status filter"
// @Param        page          query     int     false  "Page number (default 1)"
// @Param        limit         query     int     false  "Items per page (default 20)"
// @Success      200           {object}  response.Response{data=[]service.InvoiceResponse,meta=pagination.Meta}
// @Router       /api/invoices [get]
func (h *InvoiceHandler) ListInvoices(c *gin.Context) {
	p := pagination.Parse(c)

	invoices, total, err := h.invoiceService.ListInvoices(c.Request.Context(), service.InvoiceFilter{
		Status:      c.Query("status"),
		MatchStatus: c.Query("match_status"),
		Page:        p.Page,
		Limit:       p.Limit,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Paginated(http.StatusOK, invoices, p.Meta(total)))
}

// GetInvoice returns one invoice with PO, GRN, and GST cache detail
// @Summary      Get invoice detail
// @Tags         invoices
// @Produce      json
// @Param        number  path      string  true  "Invoice number"
// @Success      200     {object}  response.Response{data=service.InvoiceDetailResponse}
// @Failure      404     {object}  response.Response
// @Router       /api/invoices/{number} [get]
func (h *InvoiceHandler) GetInvoice(c *gin.Context) {
	invoice, err := h.invoiceService.GetInvoice(c.Request.Context(), c.Param("number"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, invoice))
}

func (h *InvoiceHandler) Extract(c *gin.Context) {
	invoice, err := h.invoiceService.Extract(c.Request.Context(), c.Param("number"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, invoice))
}

func (h *InvoiceHandler) Validate(c *gin.Context) {
	invoice, err := h.invoiceService.Validate(c.Request.Context(), c.Param("number"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, invoice))
}

type matchTransitionRequest struct {
	MatchType string `json:"match_type" binding:"required,oneof=2WAY 3WAY"`
}

// Match runs the matching engine against the invoice's linked PO/GRN
// @Summary      Run match on invoice
// @Description  On PASSED the invoice advances to MATCHED; on EXCEPTION or BLOCKED_FRAUD it stays in VALIDATED
// @Tags         invoices
// @Accept       json
// @Produce      json
// @Param        number  path      string                  true  "Invoice number"
// @Param        body    body      matchTransitionRequest  true  "Match type"
// @Success      200     {object}  response.Response{data=service.InvoiceDetailResponse}
// @Failure      409     {object}  response.Response
// @Failure      422     {object}  response.Response
// @Router       /api/invoices/{number}/match [post]
func (h *InvoiceHandler) Match(c *gin.Context) {
	var req matchTransitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusUnprocessableEntity, response.Error(http.StatusUnprocessableEntity, err.Error()))
		return
	}

	invoice, err := h.invoiceService.Match(c.Request.Context(), c.Param("number"), req.MatchType)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, invoice))
}

func (h *InvoiceHandler) Queue(c *gin.Context) {
	invoice, err := h.invoiceService.Queue(c.Request.Context(), c.Param("number"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, invoice))
}

type approveRequest struct {
	ApprovedBy string `json:"approved_by" binding:"required"`
}

func (h *InvoiceHandler) Approve(c *gin.Context) {
	var req approveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusUnprocessableEntity, response.Error(http.StatusUnprocessableEntity, err.Error()))
		return
	}

	invoice, err := h.invoiceService.Approve(c.Request.Context(), c.Param("number"), req.ApprovedBy)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, invoice))
}

type rejectRequest struct {
	RejectedBy string `json:"rejected_by" binding:"required"`
	Reason     string `json:"reason" binding:"required"`
}

func (h *InvoiceHandler) Reject(c *gin.Context) {
	var req rejectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusUnprocessableEntity, response.Error(http.StatusUnprocessableEntity, err.Error()))
		return
	}

	invoice, err := h.invoiceService.Reject(c.Request.Context(), c.Param("number"), req.RejectedBy, req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, invoice))
}

func (h *InvoiceHandler) PostToEBS(c *gin.Context) {
	invoice, err := h.invoiceService.PostToEBS(c.Request.Context(), c.Param("number"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, invoice))
}

func (h *InvoiceHandler) Settle(c *gin.Context) {
	invoice, err := h.invoiceService.Settle(c.Request.Context(), c.Param("number"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, invoice))
}

type classifyMSMERequest struct {
	AsOf string `json:"as_of"` // YYYY-MM-DD; defaults to today
}

// ClassifyMSME re-evaluates the 45-day payment SLA for one invoice
// @Summary      Classify MSME status
// @Description  Recomputes due date, days remaining, status, and penalty as of the given date
// @Tags         msme
// @Accept       json
// @Produce      json
// @Param        number  path      string               true   "Invoice number"
// @Param        body    body      classifyMSMERequest  false  "Evaluation date"
// @Success      200     {object}  response.Response{data=service.MSMEInvoiceResponse}
// @Failure      404     {object}  response.Response
// @Router       /api/invoices/{number}/classify-msme [post]
func (h *InvoiceHandler) ClassifyMSME(c *gin.Context) {
	var req classifyMSMERequest
	_ = c.ShouldBindJSON(&req) // body is optional

	asOf := time.Now().UTC()
	if req.AsOf != "" {
		parsed, err := time.Parse("2006-01-02", req.AsOf)
		if err != nil {
			respondError(c, apperr.Validation("invalid as_of, expected YYYY-MM-DD: %s", req.AsOf))
			return
		}
		asOf = parsed
	}

	result, err := h.msmeService.ClassifyInvoice(c.Request.Context(), c.Param("number"), asOf)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, result))
}
