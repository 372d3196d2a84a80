package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"inkroom/internal/room"
)

type API struct {
	registry *room.Registry
}

func New(registry *room.Registry) *API {
	return &API{
		registry: registry,
	}
}

func jsonResponse(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("encoding JSON response", "error", err)
	}
}

func errorResponse(w http.ResponseWriter, status int, message string) {
	jsonResponse(w, status, map[string]string{"error": message})
}

func (a *API) HealthHandler(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) StatsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		errorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	jsonResponse(w, http.StatusOK, map[string]interface{}{
		"active_rooms":   a.registry.RoomCount(),
		"active_clients": a.registry.ClientCount(),
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
	})
}

type RoomResponse struct {
	ID          string `json:"id"`
	ActiveUsers int    `json:"active_users"`
}

// ListRoomsHandler reports the rooms currently alive in the registry. Rooms
// only exist while they have members, so this is the live picture, not a
// catalog.
func (a *API) ListRoomsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		errorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	active := a.registry.ActiveRooms()

	response := make([]RoomResponse, 0, len(active))
	for id, users := range active {
		response = append(response, RoomResponse{
			ID:          id,
			ActiveUsers: users,
		})
	}
	sort.Slice(response, func(i, j int) bool {
		return response[i].ID < response[j].ID
	})

	jsonResponse(w, http.StatusOK, map[string]interface{}{
		"rooms": response,
	})
}
