package speedrun

import (
	"errors"
	"testing"
	"time"
)

func TestNewPlatformMissingFields(t *testing.T) {
	if _, err := NewPlatform(PlatformData{Name: "PC"}); !errors.Is(err, ErrMissingField) {
		t.Errorf("missing id: got %v, want ErrMissingField", err)
	}
	if _, err := NewPlatform(PlatformData{ID: "pc"}); !errors.Is(err, ErrMissingField) {
		t.Errorf("missing name: got %v, want ErrMissingField", err)
	}
}

func TestPlatformUpdateIDMismatch(t *testing.T) {
	p, err := NewPlatform(PlatformData{ID: "pc", Name: "PC"})
	if err != nil {
		t.Fatalf("NewPlatform: %v", err)
	}
	if err := p.Update(PlatformData{ID: "n64", Name: "Nintendo 64"}); !errors.Is(err, ErrIDMismatch) {
		t.Errorf("got %v, want ErrIDMismatch", err)
	}
	if p.Name != "PC" {
		t.Errorf("failed update must not touch the entity, name = %q", p.Name)
	}
}

func TestGameUpdateReplacesFields(t *testing.T) {
	g, err := NewGame(GameData{
		ID:        "g1",
		Names:     NamesData{International: "Portal"},
		Regions:   []string{"r1", "r2"},
		Platforms: []string{"pc"},
	})
	if err != nil {
		t.Fatalf("NewGame: %v", err)
	}
	err = g.Update(GameData{
		ID:           "g1",
		Names:        NamesData{International: "Portal 2", Twitch: "Portal 2"},
		Abbreviation: "portal2",
		Regions:      []string{"r3"},
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if g.InternationalName != "Portal 2" || g.Abbreviation != "portal2" {
		t.Errorf("names not replaced: %+v", g)
	}
	if len(g.Regions) != 1 || g.Regions[0] != "r3" {
		t.Errorf("regions not replaced: %v", g.Regions)
	}
	if len(g.Platforms) != 0 {
		t.Errorf("platforms not cleared: %v", g.Platforms)
	}
}

func TestPlayerTwitchHandle(t *testing.T) {
	p, err := NewPlayer(playerData("p1", "Speedy", "https://www.twitch.tv/SpeedyTV"))
	if err != nil {
		t.Fatalf("NewPlayer: %v", err)
	}
	if p.Twitch != "SpeedyTV" {
		t.Errorf("Twitch handle = %q, want SpeedyTV", p.Twitch)
	}
	if p.TwitchURL != "https://www.twitch.tv/SpeedyTV" {
		t.Errorf("TwitchURL = %q", p.TwitchURL)
	}
	// An update dropping the link clears both fields.
	if err := p.Update(playerData("p1", "Speedy", "")); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if p.Twitch != "" || p.TwitchURL != "" {
		t.Errorf("stale twitch link survived update: %q %q", p.Twitch, p.TwitchURL)
	}
}

func TestVariableAppliesTo(t *testing.T) {
	cat := "c1"
	mk := func(scope, level string, category *string) *Variable {
		vd := VariableData{ID: "v1", Name: "Glitches"}
		vd.Scope.Type = scope
		vd.Scope.Level = level
		vd.Category = category
		v, err := NewVariable(vd)
		if err != nil {
			t.Fatalf("NewVariable: %v", err)
		}
		return v
	}
	cases := []struct {
		name       string
		v          *Variable
		levelID    string
		categoryID string
		want       bool
	}{
		{"global any", mk(ScopeGlobal, "", nil), "", "c1", true},
		{"global level", mk(ScopeGlobal, "", nil), "l1", "c1", true},
		{"full-game on full-game", mk(ScopeFullGame, "", nil), "", "c1", true},
		{"full-game on level", mk(ScopeFullGame, "", nil), "l1", "c1", false},
		{"all-levels on full-game", mk(ScopeAllLevels, "", nil), "", "c1", false},
		{"all-levels on level", mk(ScopeAllLevels, "", nil), "l1", "c1", true},
		{"single-level match", mk(ScopeSingleLevel, "l1", nil), "l1", "c1", true},
		{"single-level other", mk(ScopeSingleLevel, "l1", nil), "l2", "c1", false},
		{"category bound match", mk(ScopeGlobal, "", &cat), "", "c1", true},
		{"category bound other", mk(ScopeGlobal, "", &cat), "", "c2", false},
	}
	for _, c := range cases {
		if got := c.v.AppliesTo(c.levelID, c.categoryID); got != c.want {
			t.Errorf("%s: AppliesTo(%q, %q) = %v, want %v", c.name, c.levelID, c.categoryID, got, c.want)
		}
	}
}

func TestRunParsesTimes(t *testing.T) {
	rd := runData("r1", 3661.5, "p1", "2023-05-04")
	rd.Submitted = "2023-05-05T12:30:00Z"
	run, err := NewRun(rd)
	if err != nil {
		t.Fatalf("NewRun: %v", err)
	}
	if run.Time != 3661*time.Second+500*time.Millisecond {
		t.Errorf("Time = %v", run.Time)
	}
	if run.Date == nil || run.Date.Format("2006-01-02") != "2023-05-04" {
		t.Errorf("Date = %v", run.Date)
	}
	if run.Submitted == nil || !run.Submitted.Equal(time.Date(2023, 5, 5, 12, 30, 0, 0, time.UTC)) {
		t.Errorf("Submitted = %v", run.Submitted)
	}
}

func TestRunOwnershipImmutable(t *testing.T) {
	run, err := NewRun(runData("r1", 100, "p1", ""))
	if err != nil {
		t.Fatalf("NewRun: %v", err)
	}
	moved := runData("r1", 100, "p1", "")
	moved.Category = "c2"
	if err := run.Update(moved); !errors.Is(err, ErrIDMismatch) {
		t.Errorf("category change: got %v, want ErrIDMismatch", err)
	}
}

func TestRunGuestParticipants(t *testing.T) {
	rd := runData("r1", 100, "p1", "")
	rd.Players = append(rd.Players, PlayerData{Rel: "guest", Name: "Anonymous"})
	run, err := NewRun(rd)
	if err != nil {
		t.Fatalf("NewRun: %v", err)
	}
	if len(run.Participants) != 2 {
		t.Fatalf("got %d participants", len(run.Participants))
	}
	if run.Participants[0].IsGuest() || run.Participants[0].PlayerID != "p1" {
		t.Errorf("first participant wrong: %+v", run.Participants[0])
	}
	if !run.Participants[1].IsGuest() || run.Participants[1].Guest != "Anonymous" {
		t.Errorf("guest participant wrong: %+v", run.Participants[1])
	}
}

func TestRunBadDate(t *testing.T) {
	rd := runData("r1", 100, "p1", "yesterday")
	if _, err := NewRun(rd); err == nil {
		t.Error("expected an error for an unparseable date")
	}
}
