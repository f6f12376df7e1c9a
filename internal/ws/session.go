package ws

import (
	"context"
	"encoding/json"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"presence-service/internal/auth"
	"presence-service/internal/models"
	"presence-service/internal/observability"
	"presence-service/internal/repositories"
)

const sendQueueSize = 64

// Session owns the lifecycle of a single websocket connection. Its read loop
// serializes all inbound events for that connection; events from different
// sessions run concurrently and meet only inside the hub.
type Session struct {
	hub         *Hub
	verifier    auth.Verifier
	users       repositories.UserStatusRepository
	conn        *websocket.Conn
	ctx         context.Context
	info        ConnInfo
	authTimeout time.Duration

	// user is nil until authentication succeeds. Written by Hub.Register
	// under the hub lock, read by the hub under the same lock and by this
	// session's own goroutine.
	user *models.OnlineUser

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once

	closeReason string
}

// NewSession constructs a session in the connecting state.
func NewSession(ctx context.Context, hub *Hub, verifier auth.Verifier, users repositories.UserStatusRepository, conn *websocket.Conn, info ConnInfo, authTimeout time.Duration) *Session {
	if ctx == nil {
		ctx = context.Background()
	}
	return &Session{
		hub:         hub,
		verifier:    verifier,
		users:       users,
		conn:        conn,
		ctx:         ctx,
		info:        info,
		authTimeout: authTimeout,
		send:        make(chan []byte, sendQueueSize),
		done:        make(chan struct{}),
	}
}

// readLoop consumes inbound frames until the connection drops, then runs
// cleanup. Unauthenticated connections are subject to a read deadline so a
// client that never sends credentials cannot hold a slot forever.
func (s *Session) readLoop() {
	defer s.disconnect()

	if s.authTimeout > 0 {
		_ = s.conn.SetReadDeadline(time.Now().Add(s.authTimeout))
	}
	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			s.closeReason = err.Error()
			return
		}
		s.handleEvent(raw)
	}
}

// writePump drains the outbound queue onto the wire. It is the only writer
// on the connection and closes it on exit, which in turn stops the read loop.
func (s *Session) writePump() {
	defer func() {
		if s.conn != nil {
			s.conn.Close()
		}
	}()
	for {
		select {
		case payload := <-s.send:
			if err := s.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				log.Printf("websocket write error conn_id=%s: %v", s.info.ConnID, err)
				s.publishWSError(err.Error())
				return
			}
		case <-s.done:
			for {
				select {
				case payload := <-s.send:
					_ = s.conn.WriteMessage(websocket.TextMessage, payload)
				default:
					_ = s.conn.WriteMessage(websocket.CloseMessage, []byte{})
					return
				}
			}
		}
	}
}

// disconnect removes the user from the registry and every room it was in,
// and notifies those rooms. A session that never authenticated is a no-op.
func (s *Session) disconnect() {
	rooms := s.hub.Unregister(s)
	if s.user != nil {
		for _, roomID := range rooms {
			s.broadcastPresence(roomID, "user_left", nil)
		}
	}
	s.close()
}

// close signals the write pump to flush and shut the connection down. Safe
// to call from any goroutine, any number of times.
func (s *Session) close() {
	s.closeOnce.Do(func() {
		close(s.done)
	})
}

// enqueue hands a payload to the outbound queue without blocking. Returns
// false when the session is closed or the queue is full.
func (s *Session) enqueue(payload []byte) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.send <- payload:
		return true
	default:
		return false
	}
}

// publishWSError reports a failed delivery on this connection to the event
// bus, mirroring the connect/disconnect lifecycle envelopes.
func (s *Session) publishWSError(reason string) {
	_ = observability.PublishEvent(context.Background(), "ws_events.presence", observability.EventEnvelope{
		EventType: "ws_events",
		EventName: "ws_error",
		Payload:   lifecyclePayload(s, "ws_error", reason),
	}, observability.BuildHeaders(s.info.RequestID, s.info.TraceID))
	observability.IncWSEvent("presence", "ws_error")
}

func (s *Session) sendEvent(event any) {
	payload, _ := json.Marshal(event)
	if !s.enqueue(payload) {
		log.Printf("websocket send queue full, dropping event conn_id=%s", s.info.ConnID)
	}
}

func (s *Session) sendError(code, reason string) {
	s.sendEvent(models.ErrorEvent{Type: "error", Code: code, Reason: reason})
}

// handleEvent validates and dispatches one inbound event. Every error path
// reports to this connection only; no path can touch another session except
// through an addressed delivery or a declared room broadcast.
func (s *Session) handleEvent(raw []byte) {
	var ev models.ClientEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		s.sendError("invalid_payload", "malformed event")
		return
	}

	switch ev.Type {
	case "authenticate":
		s.handleAuthenticate(ev)
	case "join_room":
		s.handleJoinRoom(ev)
	case "send_message":
		s.handleSendMessage(ev)
	case "typing":
		s.handleTyping(ev)
	case "private_message":
		s.handlePrivateMessage(ev)
	case "join_therapy_session":
		s.handleJoinTherapy(ev)
	case "video_call_signal":
		s.handleSignal(ev)
	default:
		s.sendError("invalid_payload", "unknown event type: "+ev.Type)
	}
}

// handleAuthenticate resolves the credential, confirms the identity is still
// active, and registers the user. Fails closed: any failure terminates the
// connection.
func (s *Session) handleAuthenticate(ev models.ClientEvent) {
	if s.user != nil {
		s.sendError("already_authenticated", "connection is already authenticated")
		return
	}

	token := strings.TrimSpace(ev.Token)
	if token == "" {
		s.failAuth("missing credential")
		return
	}

	identity, err := s.verifier.Verify(s.ctx, token)
	if err != nil {
		s.failAuth("invalid or expired credential")
		return
	}

	status, err := s.users.LoadUserStatus(s.ctx, identity.UserID)
	if err != nil || !status.IsActive {
		s.failAuth("identity is not permitted to connect")
		return
	}

	user := models.OnlineUser{
		UserID:   status.UserID,
		Name:     status.Name,
		Role:     status.Role,
		JoinedAt: time.Now().UTC(),
	}

	// Last-authenticated-wins: a newer login supersedes the previous
	// session, which is told why and closed.
	prev, prevRooms := s.hub.Register(s, user)
	if prev != nil {
		for _, roomID := range prevRooms {
			payload, _ := json.Marshal(models.PresenceEvent{Type: "user_left", RoomID: roomID, UserID: user.UserID, Name: user.Name, Role: user.Role})
			s.hub.Broadcast(roomID, payload, nil)
		}
		prev.sendEvent(models.ErrorEvent{Type: "auth_error", Code: "session_replaced", Reason: "signed in from another connection"})
		prev.close()
	}

	if s.conn != nil {
		_ = s.conn.SetReadDeadline(time.Time{})
	}

	s.sendEvent(models.AuthEvent{Type: "authenticated", User: user})
	observability.IncWSEvent("presence", "authenticated")
}

func (s *Session) failAuth(reason string) {
	s.sendEvent(models.ErrorEvent{Type: "auth_error", Reason: reason})
	observability.IncWSEvent("presence", "auth_failed")
	s.close()
}

func (s *Session) requireAuth() bool {
	if s.user == nil {
		s.sendError("not_authenticated", "authenticate before sending events")
		return false
	}
	return true
}

func (s *Session) handleJoinRoom(ev models.ClientEvent) {
	if !s.requireAuth() {
		return
	}
	roomID := strings.TrimSpace(ev.RoomID)
	if roomID == "" {
		s.sendError("invalid_payload", "room_id is required")
		return
	}
	if IsTherapyRoom(roomID) {
		s.sendError("invalid_payload", "use join_therapy_session for therapy rooms")
		return
	}
	s.joinRoom(roomID, "user_joined")
}

func (s *Session) handleJoinTherapy(ev models.ClientEvent) {
	if !s.requireAuth() {
		return
	}
	sessionID := strings.TrimSpace(ev.SessionID)
	if sessionID == "" {
		s.sendError("invalid_payload", "session_id is required")
		return
	}
	s.joinRoom(TherapyRoomID(sessionID), "therapy_user_joined")
}

// joinRoom applies the single-room policy: membership in every previously
// joined room is replaced by the new one, with user_left fan-out to each. A
// session the hub refuses (superseded by a newer login) joins nothing and
// announces nothing.
func (s *Session) joinRoom(roomID, joinedType string) {
	left, ok := s.hub.ReplaceMembership(s, roomID)
	if !ok {
		return
	}
	for _, old := range left {
		s.broadcastPresence(old, "user_left", nil)
	}
	s.broadcastPresence(roomID, joinedType, s)
	s.sendEvent(models.RoomInfoEvent{Type: "room_info", RoomID: roomID, Occupants: s.hub.Occupants(roomID)})
	observability.IncWSEvent("presence", "room_join")
}

func (s *Session) broadcastPresence(roomID, eventType string, exclude *Session) {
	payload, _ := json.Marshal(models.PresenceEvent{
		Type:   eventType,
		RoomID: roomID,
		UserID: s.user.UserID,
		Name:   s.user.Name,
		Role:   s.user.Role,
	})
	s.hub.Broadcast(roomID, payload, exclude)
}

// handleSendMessage fans a group message out to the room, sender included,
// so the sender's UI reflects canonical server state. Messages are not
// persisted; the AMQP publish below is a best-effort side hook.
func (s *Session) handleSendMessage(ev models.ClientEvent) {
	if !s.requireAuth() {
		return
	}
	roomID := strings.TrimSpace(ev.RoomID)
	body := strings.TrimSpace(ev.Body)
	if roomID == "" || body == "" {
		s.sendError("invalid_payload", "room_id and a non-empty body are required")
		return
	}
	if IsTherapyRoom(roomID) {
		s.sendError("therapy_room_restricted", "group chat is not available in therapy sessions")
		return
	}

	msg := &models.RoomMessage{
		ID:         uuid.NewString(),
		RoomID:     roomID,
		SenderID:   s.user.UserID,
		SenderName: s.user.Name,
		Body:       body,
		CreatedAt:  time.Now().UTC(),
	}
	payload, _ := json.Marshal(models.MessageEvent{Type: "message", Message: msg})
	s.hub.Broadcast(roomID, payload, nil)

	observability.IncWSEvent("presence", "message")
	_ = observability.PublishEvent(s.ctx, "chat_events.messages", observability.EventEnvelope{
		EventType: "chat_events",
		EventName: "room_message",
		Payload:   msg,
	}, observability.BuildHeaders(s.info.RequestID, s.info.TraceID))
}

// handleTyping is best-effort: unauthenticated or incomplete events are
// dropped without acknowledgement.
func (s *Session) handleTyping(ev models.ClientEvent) {
	if s.user == nil {
		return
	}
	roomID := strings.TrimSpace(ev.RoomID)
	if roomID == "" {
		return
	}
	payload, _ := json.Marshal(models.TypingEvent{
		Type:     "typing",
		RoomID:   roomID,
		UserID:   s.user.UserID,
		Name:     s.user.Name,
		IsTyping: ev.IsTyping,
	})
	s.hub.Broadcast(roomID, payload, s)
}

// handlePrivateMessage delivers directly to the recipient's connection.
// Offline recipients get nothing queued; the sender gets exactly one error.
func (s *Session) handlePrivateMessage(ev models.ClientEvent) {
	if !s.requireAuth() {
		return
	}
	recipientID := strings.TrimSpace(ev.RecipientID)
	body := strings.TrimSpace(ev.Body)
	if recipientID == "" || body == "" {
		s.sendError("invalid_payload", "recipient_id and a non-empty body are required")
		return
	}

	target, _, ok := s.hub.Online(recipientID)
	if !ok {
		s.sendError("recipient_offline", "recipient is not connected")
		return
	}

	msg := &models.PrivateMessage{
		ID:          uuid.NewString(),
		SenderID:    s.user.UserID,
		SenderName:  s.user.Name,
		RecipientID: recipientID,
		Body:        body,
		Delivered:   true,
		CreatedAt:   time.Now().UTC(),
	}
	target.sendEvent(models.PrivateMessageEvent{Type: "private_message", Message: msg})
	s.sendEvent(models.DeliveryEvent{Type: "message_delivered", MessageID: msg.ID, RecipientID: recipientID})
	observability.IncWSEvent("presence", "private_message")
}

// handleSignal relays the opaque payload verbatim to the other members of
// the therapy room. The channel is a transparent relay for call-setup data,
// so nothing about the payload is validated.
func (s *Session) handleSignal(ev models.ClientEvent) {
	if s.user == nil {
		return
	}
	sessionID := strings.TrimSpace(ev.SessionID)
	if sessionID == "" || len(ev.Signal) == 0 {
		return
	}
	payload, _ := json.Marshal(models.SignalEvent{
		Type:       "video_call_signal",
		SessionID:  sessionID,
		FromUserID: s.user.UserID,
		Signal:     ev.Signal,
		SignalType: ev.SignalType,
	})
	s.hub.Broadcast(TherapyRoomID(sessionID), payload, s)
}
