// internal/handler/amp_handler.go
package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/rsnodgrass/goanthem/internal/protocol"
	"github.com/rsnodgrass/goanthem/internal/utils"
	"github.com/rsnodgrass/goanthem/pkg/control"
)

// AmpHandler exposes the amplifier control surface over HTTP. Every
// endpoint is a thin translation onto control.AmpControl; command ordering
// and timing live in the protocol layer.
type AmpHandler struct {
	amp      control.AmpControl
	eventBus *EventBus
	logger   *utils.ServiceLogger
}

// NewAmpHandler creates a new amplifier handler
func NewAmpHandler(amp control.AmpControl, eventBus *EventBus, logger *zap.Logger) *AmpHandler {
	return &AmpHandler{
		amp:      amp,
		eventBus: eventBus,
		logger:   utils.NewServiceLogger(logger, "amp-handler"),
	}
}

// RegisterRoutes registers amplifier control routes
func (h *AmpHandler) RegisterRoutes(router *gin.RouterGroup) {
	zones := router.Group("/zones/:zone")
	{
		zones.GET("/status", h.ZoneStatus)
		zones.PUT("/power", h.SetPower)
		zones.PUT("/mute", h.SetMute)
		zones.PUT("/volume", h.SetVolume)
		zones.POST("/volume/up", h.VolumeUp)
		zones.POST("/volume/down", h.VolumeDown)
		zones.PUT("/source", h.SetSource)
	}
	router.POST("/commands", h.RunCommand)
}

type powerRequest struct {
	On bool `json:"on"`
}

type muteRequest struct {
	On bool `json:"on"`
}

type volumeRequest struct {
	Level int `json:"level"`
}

type sourceRequest struct {
	Source int `json:"source"`
}

type commandRequest struct {
	Command string                 `json:"command" binding:"required"`
	Args    map[string]interface{} `json:"args"`
}

// ZoneStatus returns the decoded status fields for a zone.
func (h *AmpHandler) ZoneStatus(c *gin.Context) {
	zone, ok := h.zoneParam(c)
	if !ok {
		return
	}

	status, err := h.amp.ZoneStatus(c.Request.Context(), zone)
	if err != nil {
		h.deviceError(c, "Failed to read zone status", err)
		return
	}

	h.publishZoneEvent(EventZoneStatus, zone, status)
	utils.SuccessResponse(c, http.StatusOK, "Zone status", status)
}

// SetPower turns a zone on or off.
func (h *AmpHandler) SetPower(c *gin.Context) {
	zone, ok := h.zoneParam(c)
	if !ok {
		return
	}
	var req powerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	if err := h.amp.SetPower(c.Request.Context(), zone, req.On); err != nil {
		h.deviceError(c, "Failed to set power", err)
		return
	}

	h.publishZoneEvent(EventZoneUpdate, zone, map[string]interface{}{"power": req.On})
	utils.SuccessResponse(c, http.StatusOK, "Power updated", gin.H{"zone": zone, "power": req.On})
}

// SetMute mutes or unmutes a zone.
func (h *AmpHandler) SetMute(c *gin.Context) {
	zone, ok := h.zoneParam(c)
	if !ok {
		return
	}
	var req muteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	if err := h.amp.SetMute(c.Request.Context(), zone, req.On); err != nil {
		h.deviceError(c, "Failed to set mute", err)
		return
	}

	h.publishZoneEvent(EventZoneUpdate, zone, map[string]interface{}{"mute": req.On})
	utils.SuccessResponse(c, http.StatusOK, "Mute updated", gin.H{"zone": zone, "mute": req.On})
}

// SetVolume sets the zone volume level. Out-of-range levels are clamped by
// the protocol layer, so the effective level is echoed back.
func (h *AmpHandler) SetVolume(c *gin.Context) {
	zone, ok := h.zoneParam(c)
	if !ok {
		return
	}
	var req volumeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	if err := h.amp.SetVolume(c.Request.Context(), zone, req.Level); err != nil {
		h.deviceError(c, "Failed to set volume", err)
		return
	}

	effective := protocol.ClampVolume(req.Level)
	h.publishZoneEvent(EventZoneUpdate, zone, map[string]interface{}{"volume": effective})
	utils.SuccessResponse(c, http.StatusOK, "Volume updated", gin.H{"zone": zone, "volume": effective})
}

// VolumeUp increases the zone volume by one step.
func (h *AmpHandler) VolumeUp(c *gin.Context) {
	h.volumeStep(c, "up", h.amp.VolumeUp)
}

// VolumeDown decreases the zone volume by one step.
func (h *AmpHandler) VolumeDown(c *gin.Context) {
	h.volumeStep(c, "down", h.amp.VolumeDown)
}

// SetSource selects the zone input source.
func (h *AmpHandler) SetSource(c *gin.Context) {
	zone, ok := h.zoneParam(c)
	if !ok {
		return
	}
	var req sourceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	if err := h.amp.SetSource(c.Request.Context(), zone, req.Source); err != nil {
		h.deviceError(c, "Failed to set source", err)
		return
	}

	h.publishZoneEvent(EventZoneUpdate, zone, map[string]interface{}{"source": req.Source})
	utils.SuccessResponse(c, http.StatusOK, "Source updated", gin.H{"zone": zone, "source": req.Source})
}

// RunCommand executes a raw dialect command. Escape hatch for commands that
// have no dedicated endpoint.
func (h *AmpHandler) RunCommand(c *gin.Context) {
	var req commandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	reply, err := h.amp.RunCommand(c.Request.Context(), req.Command, req.Args)
	if err != nil {
		h.deviceError(c, fmt.Sprintf("Command %q failed", req.Command), err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Command executed", gin.H{
		"command": req.Command,
		"reply":   reply,
	})
}

func (h *AmpHandler) volumeStep(c *gin.Context, direction string, step func(ctx context.Context, zone int) error) {
	zone, ok := h.zoneParam(c)
	if !ok {
		return
	}

	if err := step(c.Request.Context(), zone); err != nil {
		h.deviceError(c, "Failed to step volume", err)
		return
	}

	h.publishZoneEvent(EventZoneUpdate, zone, map[string]interface{}{"volume_step": direction})
	utils.SuccessResponse(c, http.StatusOK, "Volume stepped", gin.H{"zone": zone, "direction": direction})
}

// zoneParam parses the :zone path parameter.
func (h *AmpHandler) zoneParam(c *gin.Context) (int, bool) {
	zone, err := strconv.Atoi(c.Param("zone"))
	if err != nil || zone < 1 {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid zone", err)
		return 0, false
	}
	return zone, true
}

func (h *AmpHandler) publishZoneEvent(eventType string, zone int, fields interface{}) {
	if h.eventBus == nil {
		return
	}
	h.eventBus.Publish(NewEvent(eventType, "api", map[string]interface{}{
		"zone":   zone,
		"fields": fields,
	}))
}

// deviceError maps protocol errors onto HTTP statuses: misconfiguration is
// the caller's fault, timeouts and unparsed replies are the device's.
func (h *AmpHandler) deviceError(c *gin.Context, message string, err error) {
	h.logger.Error(message, zap.Error(err))

	var formatErr *protocol.FormatError
	switch {
	case errors.Is(err, protocol.ErrUnknownCommand), errors.As(err, &formatErr):
		utils.ErrorResponse(c, http.StatusBadRequest, message, err)
	case protocol.IsConnectionTimeout(err), protocol.IsReadTimeout(err):
		utils.ErrorResponse(c, http.StatusGatewayTimeout, message, err)
	case errors.Is(err, protocol.ErrUnparsedResponse), errors.Is(err, protocol.ErrNotConnected):
		utils.ErrorResponse(c, http.StatusBadGateway, message, err)
	default:
		utils.ErrorResponse(c, http.StatusInternalServerError, message, err)
	}
}
