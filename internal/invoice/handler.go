package invoice

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"larpledger/internal/accounting"
	"larpledger/internal/api"
	"larpledger/internal/logger"
)

type Handler struct {
	service *Service
	acctCfg accounting.Config
}

func NewHandler(service *Service, acctCfg accounting.Config) *Handler {
	return &Handler{service: service, acctCfg: acctCfg}
}

// Confirm godoc
// @Summary      Confirm an offline payment
// @Description  Marks a wire-transfer or otherwise manually verified invoice
// @Description  as paid, through the same settlement path the gateways use.
// @Tags         invoices
// @Security     BearerAuth
// @Produce      json
// @Param        cod  path  string  true  "Invoice code"
// @Success      200  {object}  PaymentInvoice
// @Router       /admin/invoices/{cod}/confirm [post]
func (h *Handler) Confirm(c *gin.Context) {
	cod := c.Param("cod")
	if cod == "" {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "Invoice code required"})
		return
	}

	inv, err := h.service.ReceivedMoney(c.Request.Context(), cod, nil, nil, nil, h.acctCfg)
	if err != nil {
		logger.Error("manual confirmation failed", "cod", cod, "err", err)
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "Confirmation failed"})
		return
	}
	if inv == nil {
		c.JSON(http.StatusNotFound, api.ErrorResponse{Error: "Invoice not found"})
		return
	}

	c.JSON(http.StatusOK, inv)
}
