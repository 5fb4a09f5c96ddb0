package gateway

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"larpledger/internal/accounting"
	"larpledger/internal/api"
	"larpledger/internal/invoice"
	"larpledger/internal/logger"
	"larpledger/internal/metrics"
)

type Handler struct {
	registry *Registry
	invoices *invoice.Service
	acctCfg  accounting.Config
}

func NewHandler(registry *Registry, invoices *invoice.Service, acctCfg accounting.Config) *Handler {
	return &Handler{registry: registry, invoices: invoices, acctCfg: acctCfg}
}

// Webhook verifies a provider callback and funnels any extracted settlement
// into the canonical entry point. Verification failures return an error
// status so providers that retry will; callbacks with nothing to settle are
// acknowledged so they stop.
func (h *Handler) Webhook(method invoice.Method) gin.HandlerFunc {
	provider, ok := h.registry.Get(method)
	return func(c *gin.Context) {
		if !ok {
			c.JSON(http.StatusNotFound, api.ErrorResponse{Error: "unknown payment method"})
			return
		}

		settlement, err := provider.VerifyAndExtractSettlement(c.Request.Context(), c.Request)
		if err != nil {
			metrics.RecordWebhook(string(method), "rejected")
			logger.Error("webhook verification failed", "provider", method, "err", err)
			c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "verification failed"})
			return
		}
		if settlement == nil {
			metrics.RecordWebhook(string(method), "ignored")
			c.JSON(http.StatusOK, api.MessageResponse{Message: "ignored"})
			return
		}

		inv, err := h.invoices.ReceivedMoney(c.Request.Context(),
			settlement.Code, settlement.Gross, settlement.Fee, settlement.TxnID, h.acctCfg)
		if err != nil {
			metrics.RecordWebhook(string(method), "error")
			logger.Error("settlement failed", "provider", method, "err", err)
			c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "settlement failed"})
			return
		}
		if inv == nil {
			// Unknown or stale code: acknowledged, admins already alerted.
			metrics.RecordWebhook(string(method), "unmatched")
			c.JSON(http.StatusOK, api.MessageResponse{Message: "unmatched"})
			return
		}

		metrics.RecordWebhook(string(method), "settled")
		c.JSON(http.StatusOK, api.MessageResponse{Message: "ok"})
	}
}

type createPaymentRequest struct {
	Typ      invoice.Type   `json:"typ" binding:"required" validate:"required,oneof=registration membership donate collection"`
	Method   invoice.Method `json:"method" binding:"required" validate:"required"`
	MemberID int64          `json:"member_id" binding:"required" validate:"required,gt=0"`
	RegID    *int64         `json:"reg_id,omitempty"`
	CollID   *int64         `json:"coll_id,omitempty"`
	Amount   string         `json:"amount" binding:"required" validate:"required"`
	Causal   string         `json:"causal" validate:"max=200"`
}

// CreatePayment opens an invoice and prepares the provider payment request
// the payer's browser should follow.
func (h *Handler) CreatePayment(c *gin.Context) {
	var req createPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		api.BindFailure(c, err)
		return
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil || !amount.IsPositive() {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "invalid amount"})
		return
	}

	provider, ok := h.registry.Get(req.Method)
	if !ok {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "unsupported payment method"})
		return
	}

	inv := &invoice.PaymentInvoice{
		AssocID:      h.acctCfg.AssocID,
		MemberID:     req.MemberID,
		Typ:          req.Typ,
		Method:       req.Method,
		Causal:       req.Causal,
		RegID:        req.RegID,
		CollectionID: req.CollID,
	}
	if err := h.invoices.CreateInvoice(c.Request.Context(), inv, amount); err != nil {
		logger.Error("invoice creation failed", "err", err)
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "could not create invoice"})
		return
	}

	payReq, err := provider.BuildPaymentRequest(c.Request.Context(), inv, inv.Gross)
	if err != nil {
		// Gateway unreachable: the invoice stays CREATED and the payer can
		// retry with the same code.
		logger.Error("payment request failed", "provider", req.Method, "cod", inv.Cod, "err", err)
		c.JSON(http.StatusBadGateway, api.ErrorResponse{Error: "payment gateway unavailable"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"cod": inv.Cod, "payment": payReq})
}
