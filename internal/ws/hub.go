package ws

import (
	"log"
	"strings"
	"sync"

	"presence-service/internal/models"
)

const therapyRoomPrefix = "therapy:"

// TherapyRoomID derives the room identifier for a therapy session.
func TherapyRoomID(sessionID string) string {
	return therapyRoomPrefix + sessionID
}

// IsTherapyRoom reports whether a room id is scoped to a therapy session.
func IsTherapyRoom(roomID string) bool {
	return strings.HasPrefix(roomID, therapyRoomPrefix)
}

type presenceEntry struct {
	user    models.OnlineUser
	session *Session
}

// Hub owns the connection registry and the room membership table. All
// mutation goes through Session or handler entry points; the maps are never
// exposed directly.
type Hub struct {
	online      map[string]*presenceEntry    // user id -> registry entry
	rooms       map[string]map[*Session]bool // room id -> member sessions
	memberships map[string]map[string]bool   // user id -> joined room ids
	mu          sync.RWMutex
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		online:      make(map[string]*presenceEntry),
		rooms:       make(map[string]map[*Session]bool),
		memberships: make(map[string]map[string]bool),
	}
}

// Register records an authenticated session in the registry. A second login
// for the same user id supersedes the first: the previous session is
// detached from the registry and every room it was in, and returned to the
// caller together with the rooms it left so it can be notified and closed.
func (h *Hub) Register(s *Session, user models.OnlineUser) (prev *Session, prevRooms []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if entry, ok := h.online[user.UserID]; ok && entry.session != s {
		prev = entry.session
		prevRooms = h.detachLocked(prev, user.UserID)
	}

	h.online[user.UserID] = &presenceEntry{user: user, session: s}
	s.user = &user
	return prev, prevRooms
}

// Unregister removes the session's user from the registry and from every
// room it was a member of, returning the rooms left. A session that never
// authenticated, or that was already superseded by a newer login, is a no-op.
func (h *Hub) Unregister(s *Session) []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	if s.user == nil {
		return nil
	}
	entry, ok := h.online[s.user.UserID]
	if !ok || entry.session != s {
		return nil
	}
	delete(h.online, s.user.UserID)
	return h.detachLocked(s, s.user.UserID)
}

// detachLocked removes a session from every room in its membership entry and
// drops the entry. Caller holds h.mu.
func (h *Hub) detachLocked(s *Session, userID string) []string {
	var left []string
	for roomID := range h.memberships[userID] {
		if conns, ok := h.rooms[roomID]; ok {
			delete(conns, s)
			if len(conns) == 0 {
				delete(h.rooms, roomID)
			}
		}
		left = append(left, roomID)
	}
	delete(h.memberships, userID)
	return left
}

// ReplaceMembership joins the session to roomID after leaving every other
// room it was in, and returns the rooms left. A user is a member of at most
// one room at a time. Only the currently registered session for a user id may
// hold membership: a session that never authenticated, or that was superseded
// by a newer login, is refused so it cannot re-enter a room after its
// registry entry is gone.
func (h *Hub) ReplaceMembership(s *Session, roomID string) (left []string, ok bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if s.user == nil {
		return nil, false
	}
	userID := s.user.UserID
	entry, registered := h.online[userID]
	if !registered || entry.session != s {
		return nil, false
	}

	for old := range h.memberships[userID] {
		if old == roomID {
			continue
		}
		if conns, ok := h.rooms[old]; ok {
			delete(conns, s)
			if len(conns) == 0 {
				delete(h.rooms, old)
			}
		}
		left = append(left, old)
	}

	h.memberships[userID] = map[string]bool{roomID: true}
	if _, ok := h.rooms[roomID]; !ok {
		h.rooms[roomID] = make(map[*Session]bool)
	}
	h.rooms[roomID][s] = true
	return left, true
}

// Occupants returns the registry snapshot of a room's current members.
func (h *Hub) Occupants(roomID string) []models.OnlineUser {
	h.mu.RLock()
	defer h.mu.RUnlock()

	occupants := make([]models.OnlineUser, 0, len(h.rooms[roomID]))
	for s := range h.rooms[roomID] {
		if s.user != nil {
			occupants = append(occupants, *s.user)
		}
	}
	return occupants
}

// Online looks up a user in the registry.
func (h *Hub) Online(userID string) (*Session, models.OnlineUser, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	entry, ok := h.online[userID]
	if !ok {
		return nil, models.OnlineUser{}, false
	}
	return entry.session, entry.user, true
}

// OnlineUsers returns a snapshot of every registered user.
func (h *Hub) OnlineUsers() []models.OnlineUser {
	h.mu.RLock()
	defer h.mu.RUnlock()

	users := make([]models.OnlineUser, 0, len(h.online))
	for _, entry := range h.online {
		users = append(users, entry.user)
	}
	return users
}

// Rooms returns the ids of rooms with at least one member.
func (h *Hub) Rooms() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	ids := make([]string, 0, len(h.rooms))
	for roomID := range h.rooms {
		ids = append(ids, roomID)
	}
	return ids
}

// Broadcast hands the payload to the outbound queue of every session in the
// room, optionally excluding one. An empty room is a no-op. Sessions whose
// queue is full are closed; membership is never mutated here.
func (h *Hub) Broadcast(roomID string, payload []byte, exclude *Session) {
	h.mu.RLock()
	targets := make([]*Session, 0, len(h.rooms[roomID]))
	for s := range h.rooms[roomID] {
		if s != exclude {
			targets = append(targets, s)
		}
	}
	h.mu.RUnlock()

	for _, s := range targets {
		if !s.enqueue(payload) {
			log.Printf("websocket send queue full, closing conn_id=%s", s.info.ConnID)
			s.publishWSError("send queue full")
			s.close()
		}
	}
}

// RoomCount is a convenience for metrics gauges.
func (h *Hub) RoomCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms)
}
