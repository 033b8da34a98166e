package speedrun

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/onnwee/speedbot/config"
	"github.com/onnwee/speedbot/srcapi"
	"github.com/onnwee/speedbot/testutil"
)

func newTestAPI(mock *testutil.MockSpeedrunServer) *srcapi.Client {
	return srcapi.NewClient(mock.URL, "speedbot-test/1.0", 5*time.Second)
}

func newTestService(t *testing.T) (*Service, *testutil.MockSpeedrunServer) {
	t.Helper()
	mock := testutil.NewMockSpeedrunServer(t)
	cfg := &config.Config{
		CacheTTL:       time.Hour,
		LeaderboardTTL: time.Hour,
		CallLimit:      90,
		CallWindow:     time.Minute,
	}
	svc := NewService(NewStore(), newTestAPI(mock), nil, cfg)
	return svc, mock
}

func TestReadGameSearchExactHit(t *testing.T) {
	svc, mock := newTestService(t)
	mock.Respond("/games/portal", testutil.GamePayload("g1", "Portal", "portal"))
	now := time.Now()
	if err := svc.ReadGameSearch(context.Background(), "portal", now); err != nil {
		t.Fatalf("ReadGameSearch: %v", err)
	}
	if id, ok := svc.Store.GameSearchResult("portal"); !ok || id != "g1" {
		t.Errorf("exact result = %q %v, want g1", id, ok)
	}
}

func TestReadGameSearchBestGuess(t *testing.T) {
	svc, mock := newTestService(t)
	mock.RespondStatus("/games/halo", http.StatusNotFound)
	mock.Respond("/games", []map[string]any{testutil.GamePayload("g2", "Halo: Combat Evolved", "halo1")})
	now := time.Now()
	if err := svc.ReadGameSearch(context.Background(), "halo", now); err != nil {
		t.Fatalf("ReadGameSearch: %v", err)
	}
	if id, ok := svc.Store.GameSearchResult("halo"); !ok || id != "" {
		t.Errorf("exact result = %q %v, want recorded miss", id, ok)
	}
	if id, ok := svc.Store.BestSearchResult("halo"); !ok || id != "g2" {
		t.Errorf("best result = %q %v, want g2", id, ok)
	}
}

func TestReadGameSearchNameMatchCountsAsExact(t *testing.T) {
	svc, mock := newTestService(t)
	mock.RespondStatus("/games/portal 2", http.StatusNotFound)
	mock.Respond("/games", []map[string]any{testutil.GamePayload("g3", "Portal 2", "portal2")})
	if err := svc.ReadGameSearch(context.Background(), "portal 2", time.Now()); err != nil {
		t.Fatalf("ReadGameSearch: %v", err)
	}
	if id, ok := svc.Store.GameSearchResult("portal 2"); !ok || id != "g3" {
		t.Errorf("exact result = %q %v, want g3", id, ok)
	}
}

func TestReadGameSearchUnavailableRecordsMiss(t *testing.T) {
	svc, mock := newTestService(t)
	mock.RespondStatus("/games/down", http.StatusServiceUnavailable)
	mock.RespondStatus("/games", http.StatusServiceUnavailable)
	now := time.Now()
	if err := svc.ReadGameSearch(context.Background(), "down", now); err != nil {
		t.Fatalf("ReadGameSearch: %v", err)
	}
	if id, ok := svc.Store.GameSearchResult("down"); !ok || id != "" {
		t.Errorf("want recorded miss, got %q %v", id, ok)
	}
	// Stamped before the fetch: no retry until the entry goes stale again.
	if svc.Store.NeedGameSearch("down", now.Add(time.Minute), time.Hour) {
		t.Error("failed search retried before TTL")
	}
}

func TestReadGameByID(t *testing.T) {
	svc, mock := newTestService(t)
	mock.Respond("/games/g1", testutil.GameDetailPayload("g1", "Portal", "portal",
		[]map[string]any{testutil.CategoryPayload("c1", "Any%", "per-game", false)}, nil, nil))
	now := time.Now()
	if err := svc.ReadGameByID(context.Background(), "g1", now); err != nil {
		t.Fatalf("ReadGameByID: %v", err)
	}
	game, ok := svc.Store.GameByID("g1")
	if !ok || game.InternationalName != "Portal" {
		t.Fatalf("game not applied: %+v %v", game, ok)
	}
	if game.GameCategories.Len() != 1 {
		t.Errorf("categories not applied: %d", game.GameCategories.Len())
	}
	if !svc.Store.HasGameSearch("g1") {
		t.Error("loaded game not resolvable through the search index")
	}
}

func TestReadGameByIDMiss(t *testing.T) {
	svc, mock := newTestService(t)
	mock.RespondStatus("/games/nope", http.StatusNotFound)
	now := time.Now()
	if err := svc.ReadGameByID(context.Background(), "nope", now); err != nil {
		t.Fatalf("ReadGameByID: %v", err)
	}
	if id, ok := svc.Store.GameSearchResult("nope"); !ok || id != "" {
		t.Errorf("want recorded miss, got %q %v", id, ok)
	}
	if svc.Store.NeedGame("nope", now.Add(time.Minute), time.Hour) {
		t.Error("missed game retried before TTL")
	}
}

func TestReadUserFallsThroughProbes(t *testing.T) {
	svc, mock := newTestService(t)
	mock.RespondStatus("/users/speedy", http.StatusNotFound)
	mock.Handlers["/users"] = func(w http.ResponseWriter, r *http.Request) {
		var users []map[string]any
		if r.URL.Query().Get("name") != "" {
			users = []map[string]any{testutil.UserPayload("p1", "Speedy", "")}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"data": users})
	}
	now := time.Now()
	if err := svc.ReadUser(context.Background(), "speedy", now); err != nil {
		t.Fatalf("ReadUser: %v", err)
	}
	if id, ok := svc.Store.PlayerIDByLookup("speedy"); !ok || id != "p1" {
		t.Errorf("lookup = %q %v, want p1", id, ok)
	}
	if player, ok := svc.Store.PlayerByID("p1"); !ok || player.Name != "Speedy" {
		t.Errorf("player not applied: %+v %v", player, ok)
	}
}

func TestReadUserAllProbesMiss(t *testing.T) {
	svc, mock := newTestService(t)
	mock.RespondStatus("/users/ghost", http.StatusNotFound)
	mock.Respond("/users", []map[string]any{})
	now := time.Now()
	if err := svc.ReadUser(context.Background(), "ghost", now); err != nil {
		t.Fatalf("ReadUser: %v", err)
	}
	if id, ok := svc.Store.PlayerIDByLookup("ghost"); !ok || id != "" {
		t.Errorf("want recorded miss, got %q %v", id, ok)
	}
}

func TestReadLeaderboardUnavailableStaysStamped(t *testing.T) {
	svc, mock := newTestService(t)
	id := BoardID{GameID: "g1", CategoryID: "c1"}
	mock.RespondStatus("/leaderboards/g1/category/c1", http.StatusServiceUnavailable)
	now := time.Now()
	if err := svc.ReadLeaderboard(context.Background(), id, now); err != nil {
		t.Fatalf("ReadLeaderboard: %v", err)
	}
	if _, ok := svc.Store.Board(id); ok {
		t.Error("failed fetch created a board")
	}
	if svc.Store.NeedBoard(id, now.Add(time.Minute), time.Hour) {
		t.Error("failed board fetch retried before TTL")
	}
}

func TestLoadLeaderboardCachedSkipsFetch(t *testing.T) {
	svc, mock := newTestService(t)
	mock.Respond("/leaderboards/g1/category/c1", testutil.LeaderboardPayload("g1", "", "c1", nil, nil))
	id := BoardID{GameID: "g1", CategoryID: "c1"}
	now := time.Now()
	if err := svc.LoadLeaderboard(context.Background(), id, now); err != nil {
		t.Fatalf("LoadLeaderboard: %v", err)
	}
	fetched := len(mock.Requests)
	if err := svc.LoadLeaderboard(context.Background(), id, now.Add(time.Minute)); err != nil {
		t.Fatalf("second LoadLeaderboard: %v", err)
	}
	if len(mock.Requests) != fetched {
		t.Errorf("cached board refetched: %v", mock.Requests)
	}
}

func TestLoadGameBySearch(t *testing.T) {
	svc, mock := newTestService(t)
	mock.Respond("/platforms", []map[string]any{{"id": "pc", "name": "PC"}})
	mock.Respond("/regions", []map[string]any{{"id": "us", "name": "US / NTSC"}})
	mock.Respond("/games/portal", testutil.GamePayload("g1", "Portal", "portal"))
	mock.Respond("/games/g1", testutil.GameDetailPayload("g1", "Portal", "portal",
		[]map[string]any{testutil.CategoryPayload("c1", "Any%", "per-game", false)}, nil, nil))
	now := time.Now()
	search, err := svc.LoadGame(context.Background(), "", "", "Portal", now)
	if err != nil {
		t.Fatalf("LoadGame: %v", err)
	}
	if search != "portal" {
		t.Errorf("search key = %q, want portal", search)
	}
	game, ok := svc.Store.ResolveSearchedGame("portal")
	if !ok || game.ID != "g1" {
		t.Errorf("searched game not resolvable: %+v %v", game, ok)
	}
	if _, ok := svc.Store.PlatformByID("pc"); !ok {
		t.Error("base data not loaded")
	}
	// A repeat load is served from the cache.
	fetched := len(mock.Requests)
	if _, err := svc.LoadGame(context.Background(), "", "", "Portal", now.Add(time.Minute)); err != nil {
		t.Fatalf("second LoadGame: %v", err)
	}
	if len(mock.Requests) != fetched {
		t.Errorf("cached game refetched: %v", mock.Requests)
	}
}

func TestLoadUserCachedMiss(t *testing.T) {
	svc, mock := newTestService(t)
	mock.RespondStatus("/users/ghost", http.StatusNotFound)
	mock.Respond("/users", []map[string]any{})
	now := time.Now()
	if err := svc.LoadUser(context.Background(), "Ghost", now); err != nil {
		t.Fatalf("LoadUser: %v", err)
	}
	fetched := len(mock.Requests)
	if err := svc.LoadUser(context.Background(), "ghost", now.Add(time.Minute)); err != nil {
		t.Fatalf("second LoadUser: %v", err)
	}
	if len(mock.Requests) != fetched {
		t.Errorf("known miss refetched: %v", mock.Requests)
	}
}
