package ws

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"presence-service/internal/mocks"
	"presence-service/internal/models"
)

func dialTestServer(t *testing.T, h *Handler) *websocket.Conn {
	t.Helper()
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/ws", h.Handle)
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestUnauthenticatedConnectionTimesOut(t *testing.T) {
	hub := NewHub()
	h := NewHandler(hub, new(mocks.VerifierMock), new(mocks.UserStatusRepositoryMock), 100*time.Millisecond)
	conn := dialTestServer(t, h)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	start := time.Now()
	_, _, err := conn.ReadMessage()
	require.Error(t, err)
	require.Less(t, time.Since(start), 3*time.Second)
}

func TestAuthenticatedConnectionOutlivesHandshakeWindow(t *testing.T) {
	hub := NewHub()
	verifier := new(mocks.VerifierMock)
	users := new(mocks.UserStatusRepositoryMock)
	verifier.On("Verify", mock.Anything, "token-u1").Return(models.Identity{UserID: "u1", Role: models.RolePatient}, nil).Once()
	users.On("LoadUserStatus", mock.Anything, "u1").Return(models.UserStatus{UserID: "u1", Name: "Ann", Role: models.RolePatient, IsActive: true}, nil).Once()

	h := NewHandler(hub, verifier, users, 500*time.Millisecond)
	conn := dialTestServer(t, h)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	require.NoError(t, conn.WriteJSON(map[string]string{"type": "authenticate", "token": "token-u1"}))

	var ev map[string]any
	require.NoError(t, conn.ReadJSON(&ev))
	require.Equal(t, "authenticated", ev["type"])

	// Successful authentication clears the handshake deadline, so the
	// connection still serves events after the window would have elapsed.
	time.Sleep(time.Second)
	require.NoError(t, conn.WriteJSON(map[string]string{"type": "join_room", "room_id": "grief-support"}))
	require.NoError(t, conn.ReadJSON(&ev))
	require.Equal(t, "room_info", ev["type"])
}
