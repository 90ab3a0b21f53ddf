package handlers

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/jasamarket/internal/realtime"
	"github.com/charlesng35/jasamarket/pkg/errors"
	"github.com/charlesng35/jasamarket/pkg/response"
)

// RealtimeHandler upgrades authenticated HTTP connections into WebSocket streams.
type RealtimeHandler struct {
	hub *realtime.Hub
}

// NewRealtimeHandler constructs a realtime handler. It must run behind middleware.Auth.
func NewRealtimeHandler(hub *realtime.Hub) *RealtimeHandler {
	return &RealtimeHandler{hub: hub}
}

// Stream subscribes the caller to the requested streams, defaulting to the user streams.
// Admin-only streams are refused for other roles.
func (h *RealtimeHandler) Stream(c *gin.Context) {
	if h.hub == nil {
		response.Error(c, errors.ErrNotFound)
		return
	}
	profile := currentProfile(c)
	if profile == nil {
		return
	}

	allowed := realtime.AllowedStreams(profile.IsAdmin())

	streams := gatherStreams(c)
	if len(streams) == 0 {
		streams = append(streams, realtime.UserStreams...)
	}
	for _, stream := range streams {
		if _, ok := allowed[stream]; !ok {
			response.Error(c, errors.ErrForbidden.WithMessage("stream "+stream+" is not available"))
			return
		}
	}

	h.hub.Serve(profile.ID, streams, allowed, c.Writer, c.Request)
}

func gatherStreams(c *gin.Context) []string {
	var streams []string

	if pathStream := normalizeStream(c.Param("stream")); pathStream != "" {
		streams = append(streams, pathStream)
	}

	for _, queryStream := range c.QueryArray("stream") {
		if normalized := normalizeStream(queryStream); normalized != "" {
			streams = append(streams, normalized)
		}
	}

	raw := c.Query("streams")
	if raw != "" {
		for _, part := range strings.Split(raw, ",") {
			if normalized := normalizeStream(part); normalized != "" {
				streams = append(streams, normalized)
			}
		}
	}

	return uniqueStreams(streams)
}

func normalizeStream(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

func uniqueStreams(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	var out []string
	for _, value := range values {
		if value == "" {
			continue
		}
		if _, ok := seen[value]; ok {
			continue
		}
		seen[value] = struct{}{}
		out = append(out, value)
	}
	return out
}
