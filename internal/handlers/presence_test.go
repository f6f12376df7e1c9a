package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"presence-service/internal/models"
	"presence-service/internal/ws"
)

func setupPresenceRouter(handler *PresenceHandler, role string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("userID", "u1")
		c.Set("role", role)
		c.Next()
	})
	r.GET("/presence/online", handler.ListOnline)
	r.GET("/presence/rooms", handler.ListRooms)
	r.GET("/presence/rooms/:room_id", handler.RoomOccupants)
	return r
}

func populatedHub(t *testing.T) *ws.Hub {
	t.Helper()
	hub := ws.NewHub()
	for _, u := range []models.OnlineUser{
		{UserID: "u1", Name: "Ann", Role: models.RolePatient},
		{UserID: "u2", Name: "Bea", Role: models.RoleCaregiver},
	} {
		s := ws.NewSession(context.Background(), hub, nil, nil, nil, ws.ConnInfo{ConnID: "conn-" + u.UserID}, 0)
		hub.Register(s, u)
		hub.ReplaceMembership(s, "grief-support")
	}
	return hub
}

func TestListOnline(t *testing.T) {
	handler := NewPresenceHandler(populatedHub(t), nil)
	router := setupPresenceRouter(handler, "patient")

	req := httptest.NewRequest(http.MethodGet, "/presence/online", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Count int                 `json:"count"`
		Users []models.OnlineUser `json:"users"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Equal(t, 2, resp.Count)
	require.Len(t, resp.Users, 2)
}

func TestRoomOccupants(t *testing.T) {
	handler := NewPresenceHandler(populatedHub(t), nil)
	router := setupPresenceRouter(handler, "patient")

	req := httptest.NewRequest(http.MethodGet, "/presence/rooms/grief-support", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		RoomID    string              `json:"room_id"`
		Occupants []models.OnlineUser `json:"occupants"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Equal(t, "grief-support", resp.RoomID)
	require.Len(t, resp.Occupants, 2)
}

func TestRoomOccupantsEmptyRoom(t *testing.T) {
	handler := NewPresenceHandler(ws.NewHub(), nil)
	router := setupPresenceRouter(handler, "patient")

	req := httptest.NewRequest(http.MethodGet, "/presence/rooms/nobody-here", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Occupants []models.OnlineUser `json:"occupants"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Empty(t, resp.Occupants)
}

func TestListRoomsRequiresElevatedRole(t *testing.T) {
	handler := NewPresenceHandler(populatedHub(t), nil)

	router := setupPresenceRouter(handler, "patient")
	req := httptest.NewRequest(http.MethodGet, "/presence/rooms", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusForbidden, rec.Code)

	router = setupPresenceRouter(handler, "admin")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Rooms []string `json:"rooms"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Equal(t, []string{"grief-support"}, resp.Rooms)
}
