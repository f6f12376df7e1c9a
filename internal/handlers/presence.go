package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"presence-service/internal/telemetry"
	"presence-service/internal/ws"
)

// PresenceHandler exposes read-only snapshots of the in-memory presence
// state for the web UI and for admins.
type PresenceHandler struct {
	hub   *ws.Hub
	audit *telemetry.AuditEmitter
}

// NewPresenceHandler constructs a PresenceHandler.
func NewPresenceHandler(hub *ws.Hub, audit *telemetry.AuditEmitter) *PresenceHandler {
	return &PresenceHandler{hub: hub, audit: audit}
}

// ListOnline handles GET /presence/online.
func (h *PresenceHandler) ListOnline(c *gin.Context) {
	users := h.hub.OnlineUsers()
	c.JSON(http.StatusOK, gin.H{"count": len(users), "users": users})
}

// RoomOccupants handles GET /presence/rooms/:room_id.
func (h *PresenceHandler) RoomOccupants(c *gin.Context) {
	roomID := c.Param("room_id")
	if roomID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid room id"})
		return
	}

	occupants := h.hub.Occupants(roomID)
	c.JSON(http.StatusOK, gin.H{"room_id": roomID, "occupants": occupants})
}

// ListRooms handles GET /presence/rooms. Admin visibility into which rooms
// currently have members.
func (h *PresenceHandler) ListRooms(c *gin.Context) {
	role := c.GetString("role")
	if role != "admin" && role != "therapist" {
		h.emitAudit(c, "ERROR", "not allowed")
		c.JSON(http.StatusForbidden, gin.H{"error": "admin or therapist role required"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"rooms": h.hub.Rooms()})
}

func (h *PresenceHandler) emitAudit(c *gin.Context, level, text string) {
	if h.audit == nil {
		return
	}
	h.audit.Emit(c.Request.Context(), level, text, requestIDFromContext(c), userIDFromContext(c))
}
