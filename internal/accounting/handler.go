package accounting

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"larpledger/internal/api"
	"larpledger/internal/logger"
)

type Handler struct {
	service *Service
	cfg     Config
}

func NewHandler(service *Service, cfg Config) *Handler {
	return &Handler{service: service, cfg: cfg}
}

// Recompute godoc
// @Summary      Recompute registration accounting
// @Tags         accounting
// @Security     BearerAuth
// @Produce      json
// @Param        regID  path  int  true  "Registration ID"
// @Success      200  {object}  Registration
// @Router       /admin/registrations/{regID}/recompute [post]
func (h *Handler) Recompute(c *gin.Context) {
	regID, err := strconv.ParseInt(c.Param("regID"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "Invalid registration ID"})
		return
	}

	reg, err := h.service.Recompute(c.Request.Context(), regID, h.cfg)
	if err != nil {
		if errors.Is(err, ErrRegistrationNotFound) {
			c.JSON(http.StatusNotFound, api.ErrorResponse{Error: "Registration not found"})
			return
		}
		logger.Error("recompute failed", "registration", regID, "err", err)
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "Recompute failed"})
		return
	}

	c.JSON(http.StatusOK, reg)
}

// Cancel godoc
// @Summary      Cancel a registration, granting credit for money paid
// @Tags         accounting
// @Security     BearerAuth
// @Produce      json
// @Param        regID  path  int  true  "Registration ID"
// @Success      200  {object}  api.MessageResponse
// @Router       /admin/registrations/{regID}/cancel [post]
func (h *Handler) Cancel(c *gin.Context) {
	regID, err := strconv.ParseInt(c.Param("regID"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "Invalid registration ID"})
		return
	}

	if err := h.service.CancelRegistration(c.Request.Context(), regID, h.cfg); err != nil {
		if errors.Is(err, ErrRegistrationNotFound) {
			c.JSON(http.StatusNotFound, api.ErrorResponse{Error: "Registration not found"})
			return
		}
		logger.Error("cancellation failed", "registration", regID, "err", err)
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "Cancellation failed"})
		return
	}

	c.JSON(http.StatusOK, api.MessageResponse{Message: "Registration cancelled"})
}
