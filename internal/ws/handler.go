package ws

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"

	"presence-service/internal/auth"
	"presence-service/internal/observability"
	"presence-service/internal/repositories"
)

// Handler upgrades presence websocket connections and runs their sessions.
type Handler struct {
	hub         *Hub
	verifier    auth.Verifier
	users       repositories.UserStatusRepository
	authTimeout time.Duration
}

// NewHandler constructs a Handler.
func NewHandler(hub *Hub, verifier auth.Verifier, users repositories.UserStatusRepository, authTimeout time.Duration) *Handler {
	return &Handler{hub: hub, verifier: verifier, users: users, authTimeout: authTimeout}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handle upgrades the connection and starts the session pumps. The
// authentication handshake itself happens in-band on the socket.
func (h *Handler) Handle(c *gin.Context) {
	ctx, span := otel.Tracer("presence-service/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	traceID := span.SpanContext().TraceID().String()
	requestID := observability.RequestIDFromRequest(c.Request)
	info := ConnInfo{
		ConnID:      newConnID(),
		DeviceID:    observability.DeviceIDFromRequest(c.Request),
		IP:          observability.IPFromRequest(c.Request),
		RequestID:   requestID,
		TraceID:     traceID,
		ConnectedAt: time.Now(),
	}

	sess := NewSession(context.Background(), h.hub, h.verifier, h.users, conn, info, h.authTimeout)

	observability.IncWSActive("presence")
	observability.IncWSEvent("presence", "ws_connect")
	_ = observability.PublishEvent(ctx, "ws_events.presence", observability.EventEnvelope{
		EventType: "ws_events",
		EventName: "ws_connect",
		Payload:   lifecyclePayload(sess, "ws_connect", ""),
	}, observability.BuildHeaders(requestID, traceID))

	go sess.writePump()
	go func() {
		sess.readLoop()
		observability.DecWSActive("presence")
		observability.IncWSEvent("presence", "ws_disconnect")
		_ = observability.PublishEvent(ctx, "ws_events.presence", observability.EventEnvelope{
			EventType: "ws_events",
			EventName: "ws_disconnect",
			Payload:   lifecyclePayload(sess, "ws_disconnect", sess.closeReason),
		}, observability.BuildHeaders(requestID, traceID))
	}()
}

func lifecyclePayload(s *Session, event, reason string) map[string]interface{} {
	ws := map[string]interface{}{
		"event":       event,
		"conn_id":     s.info.ConnID,
		"duration_ms": time.Since(s.info.ConnectedAt).Milliseconds(),
		"reason":      reason,
	}
	identity := map[string]interface{}{
		"device_id": s.info.DeviceID,
		"ip":        s.info.IP,
	}
	if s.user != nil {
		identity["user_id"] = s.user.UserID
		identity["role"] = s.user.Role
	}
	return map[string]interface{}{"ws": ws, "identity": identity}
}
