package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

// MockSpeedrunServer creates a test server that mocks speedrun.com API
// responses. Handlers are keyed by request path; query strings are ignored so
// one handler covers every filter variant of an endpoint.
type MockSpeedrunServer struct {
	*httptest.Server
	Handlers map[string]http.HandlerFunc
	// Requests records every path?query hit, in order.
	Requests []string
}

// NewMockSpeedrunServer creates a new mock speedrun.com API server.
func NewMockSpeedrunServer(t *testing.T) *MockSpeedrunServer {
	t.Helper()
	m := &MockSpeedrunServer{
		Handlers: make(map[string]http.HandlerFunc),
	}
	m.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.Requests = append(m.Requests, r.URL.RequestURI())
		if handler, ok := m.Handlers[r.URL.Path]; ok {
			handler(w, r)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(m.Close)
	return m
}

// Respond registers a handler returning the value wrapped in a data envelope.
func (m *MockSpeedrunServer) Respond(path string, data any) {
	m.Handlers[path] = func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"data": data}) //nolint:errcheck // test mock response
	}
}

// RespondStatus registers a handler returning a bare status code.
func (m *MockSpeedrunServer) RespondStatus(path string, status int) {
	m.Handlers[path] = func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	}
}

// RespondRaw registers a handler returning the body verbatim.
func (m *MockSpeedrunServer) RespondRaw(path, body string) {
	m.Handlers[path] = func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}
}

// GamePayload builds a minimal game object.
func GamePayload(id, name, abbreviation string) map[string]any {
	return map[string]any{
		"id":           id,
		"names":        map[string]any{"international": name},
		"abbreviation": abbreviation,
		"weblink":      "https://www.speedrun.com/" + abbreviation,
	}
}

// GameDetailPayload builds a game object with embedded categories, levels and
// variables.
func GameDetailPayload(id, name, abbreviation string, categories, levels, variables []map[string]any) map[string]any {
	game := GamePayload(id, name, abbreviation)
	game["categories"] = map[string]any{"data": categories}
	game["levels"] = map[string]any{"data": levels}
	game["variables"] = map[string]any{"data": variables}
	return game
}

// CategoryPayload builds a category object.
func CategoryPayload(id, name, categoryType string, miscellaneous bool) map[string]any {
	return map[string]any{
		"id":            id,
		"name":          name,
		"type":          categoryType,
		"weblink":       "https://www.speedrun.com/category/" + id,
		"miscellaneous": miscellaneous,
	}
}

// UserPayload builds a user object, with an optional Twitch link.
func UserPayload(id, name, twitchURL string) map[string]any {
	user := map[string]any{
		"rel":     "user",
		"id":      id,
		"names":   map[string]any{"international": name},
		"weblink": "https://www.speedrun.com/user/" + name,
	}
	if twitchURL != "" {
		user["twitch"] = map[string]any{"uri": twitchURL}
	}
	return user
}

// RunPayload builds a run object with a single registered player.
func RunPayload(id, gameID, levelID, categoryID, playerID string, seconds float64) map[string]any {
	return map[string]any{
		"id":       id,
		"game":     gameID,
		"level":    levelID,
		"category": categoryID,
		"weblink":  "https://www.speedrun.com/run/" + id,
		"date":     "2024-03-01",
		"times":    map[string]any{"primary_t": seconds},
		"players":  []map[string]any{{"rel": "user", "id": playerID}},
	}
}

// LeaderboardPayload builds a leaderboard object from placed runs and the
// embedded player list.
func LeaderboardPayload(gameID, levelID, categoryID string, runs []map[string]any, players []map[string]any) map[string]any {
	placed := make([]map[string]any, 0, len(runs))
	for i, run := range runs {
		place := i + 1
		if i > 0 && run["times"].(map[string]any)["primary_t"] == runs[i-1]["times"].(map[string]any)["primary_t"] {
			place = placed[i-1]["place"].(int)
		}
		placed = append(placed, map[string]any{"place": place, "run": run})
	}
	return map[string]any{
		"game":     gameID,
		"level":    levelID,
		"category": categoryID,
		"weblink":  "https://www.speedrun.com/leaderboard",
		"runs":     placed,
		"players":  map[string]any{"data": players},
	}
}
