package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/codecommand/codecommand/internal/task/dto"
)

func (h *Handlers) getSettings(c *gin.Context) {
	c.JSON(http.StatusOK, dto.FromSettings(h.service.GetSettings()))
}

func (h *Handlers) updateSettings(c *gin.Context) {
	var body dto.SettingsDTO
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	applied, err := h.service.UpdateSettings(dto.ToSettings(body))
	if err != nil {
		respondError(c, h.logger, err, "settings not found")
		return
	}
	c.JSON(http.StatusOK, dto.FromSettings(applied))
}
