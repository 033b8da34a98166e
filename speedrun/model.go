// Package speedrun holds the in-memory speedrun.com data model, the shared
// cache store, the rate-limited refresh scheduler, and the query/formatting
// layer behind the chat commands.
package speedrun

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrIDMismatch reports an update payload routed to the wrong entity. That is
// a caller bug, not an upstream problem, and is propagated unchanged.
var ErrIDMismatch = errors.New("payload id does not match entity")

// ErrMissingField reports a payload lacking a required field.
var ErrMissingField = errors.New("payload missing required field")

const twitchTvBaseURL = "https://www.twitch.tv/"

// Scope values for variables, as reported by the API.
const (
	ScopeFullGame    = "full-game"
	ScopeAllLevels   = "all-levels"
	ScopeSingleLevel = "single-level"
	ScopeGlobal      = "global"
)

// Category types.
const (
	CategoryPerGame  = "per-game"
	CategoryPerLevel = "per-level"
)

// Payload types mirror the upstream JSON shapes.

type NamesData struct {
	International string `json:"international"`
	Japanese      string `json:"japanese"`
	Twitch        string `json:"twitch"`
}

type LinkData struct {
	Rel string `json:"rel"`
	URI string `json:"uri"`
}

type PlatformData struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type RegionData struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type GameData struct {
	ID           string    `json:"id"`
	Names        NamesData `json:"names"`
	Abbreviation string    `json:"abbreviation"`
	Weblink      string    `json:"weblink"`
	Regions      []string  `json:"regions"`
	Platforms    []string  `json:"platforms"`
}

type CategoryData struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Type          string `json:"type"`
	Weblink       string `json:"weblink"`
	Miscellaneous bool   `json:"miscellaneous"`
}

type LevelData struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Weblink    string `json:"weblink"`
	Categories struct {
		Data []CategoryData `json:"data"`
	} `json:"categories"`
}

type VariableData struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Category *string `json:"category"`
	Scope    struct {
		Type  string `json:"type"`
		Level string `json:"level"`
	} `json:"scope"`
	Mandatory     bool `json:"mandatory"`
	IsSubcategory bool `json:"is-subcategory"`
	UserDefined   bool `json:"user-defined"`
	Values        struct {
		Values map[string]struct {
			Label string `json:"label"`
		} `json:"values"`
		Default string `json:"default"`
	} `json:"values"`
}

// GameDetailData is a game with categories, per-level categories and variables embedded.
type GameDetailData struct {
	GameData
	Categories struct {
		Data []CategoryData `json:"data"`
	} `json:"categories"`
	Levels struct {
		Data []LevelData `json:"data"`
	} `json:"levels"`
	Variables struct {
		Data []VariableData `json:"data"`
	} `json:"variables"`
}

// PlayerData covers both registered users (rel "user") and guests (rel "guest").
type PlayerData struct {
	Rel     string    `json:"rel"`
	ID      string    `json:"id"`
	Names   NamesData `json:"names"`
	Weblink string    `json:"weblink"`
	Twitch  *struct {
		URI string `json:"uri"`
	} `json:"twitch"`
	Links []LinkData `json:"links"`
	Name  string     `json:"name"` // guest display name
}

type RunData struct {
	ID       string `json:"id"`
	Game     string `json:"game"`
	Level    string `json:"level"`
	Category string `json:"category"`
	Weblink  string `json:"weblink"`
	Date     string `json:"date"`
	// Submitted is RFC3339; Date is a bare calendar day.
	Submitted string `json:"submitted"`
	Times     struct {
		PrimaryT         float64 `json:"primary_t"`
		RealtimeT        float64 `json:"realtime_t"`
		RealtimeNoloadsT float64 `json:"realtime_noloads_t"`
		IngameT          float64 `json:"ingame_t"`
	} `json:"times"`
	Players []PlayerData `json:"players"`
}

type LeaderboardData struct {
	Game     string `json:"game"`
	Level    string `json:"level"`
	Category string `json:"category"`
	Weblink  string `json:"weblink"`
	Links    []LinkData `json:"links"`
	Runs     []struct {
		Place int     `json:"place"`
		Run   RunData `json:"run"`
	} `json:"runs"`
	Players struct {
		Data []PlayerData `json:"data"`
	} `json:"players"`
}

// Entities. Each one is created from its first payload and mutated in place by
// later payloads carrying the same id; Update reassigns every field.

type Platform struct {
	ID   string
	Name string
}

func NewPlatform(data PlatformData) (*Platform, error) {
	if data.ID == "" {
		return nil, fmt.Errorf("platform: %w: id", ErrMissingField)
	}
	p := &Platform{ID: data.ID}
	if err := p.Update(data); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Platform) Update(data PlatformData) error {
	if p.ID != data.ID {
		return fmt.Errorf("platform %s: %w", p.ID, ErrIDMismatch)
	}
	if data.Name == "" {
		return fmt.Errorf("platform %s: %w: name", p.ID, ErrMissingField)
	}
	p.Name = data.Name
	return nil
}

type Region struct {
	ID   string
	Name string
}

func NewRegion(data RegionData) (*Region, error) {
	if data.ID == "" {
		return nil, fmt.Errorf("region: %w: id", ErrMissingField)
	}
	r := &Region{ID: data.ID}
	if err := r.Update(data); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Region) Update(data RegionData) error {
	if r.ID != data.ID {
		return fmt.Errorf("region %s: %w", r.ID, ErrIDMismatch)
	}
	if data.Name == "" {
		return fmt.Errorf("region %s: %w: name", r.ID, ErrMissingField)
	}
	r.Name = data.Name
	return nil
}

// Game owns its categories (split by type), levels and variables. The
// containers survive updates; their contents are resynchronized when a game
// detail payload is parsed.
type Game struct {
	ID                string
	InternationalName string
	JapaneseName      string
	TwitchName        string
	Abbreviation      string
	Weblink           string
	Regions           []string
	Platforms         []string

	GameCategories  *orderedMap[*Category]
	LevelCategories *orderedMap[*Category]
	Levels          *orderedMap[*Level]
	Variables       *orderedMap[*Variable]
}

func NewGame(data GameData) (*Game, error) {
	if data.ID == "" {
		return nil, fmt.Errorf("game: %w: id", ErrMissingField)
	}
	g := &Game{
		ID:              data.ID,
		GameCategories:  newOrderedMap[*Category](),
		LevelCategories: newOrderedMap[*Category](),
		Levels:          newOrderedMap[*Level](),
		Variables:       newOrderedMap[*Variable](),
	}
	if err := g.Update(data); err != nil {
		return nil, err
	}
	return g, nil
}

func (g *Game) Update(data GameData) error {
	if g.ID != data.ID {
		return fmt.Errorf("game %s: %w", g.ID, ErrIDMismatch)
	}
	if data.Names.International == "" {
		return fmt.Errorf("game %s: %w: names.international", g.ID, ErrMissingField)
	}
	g.InternationalName = data.Names.International
	g.JapaneseName = data.Names.Japanese
	g.TwitchName = data.Names.Twitch
	g.Abbreviation = data.Abbreviation
	g.Weblink = data.Weblink
	g.Regions = append(g.Regions[:0], data.Regions...)
	g.Platforms = append(g.Platforms[:0], data.Platforms...)
	return nil
}

type Level struct {
	ID         string
	Game       *Game // back-reference, not owned
	Name       string
	Weblink    string
	Categories *orderedMap[*Category]
}

func NewLevel(game *Game, data LevelData) (*Level, error) {
	if data.ID == "" {
		return nil, fmt.Errorf("level: %w: id", ErrMissingField)
	}
	l := &Level{ID: data.ID, Game: game, Categories: newOrderedMap[*Category]()}
	if err := l.Update(data); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *Level) Update(data LevelData) error {
	if l.ID != data.ID {
		return fmt.Errorf("level %s: %w", l.ID, ErrIDMismatch)
	}
	if data.Name == "" {
		return fmt.Errorf("level %s: %w: name", l.ID, ErrMissingField)
	}
	l.Name = data.Name
	l.Weblink = data.Weblink
	return nil
}

type Category struct {
	ID            string
	Game          *Game // back-reference, not owned
	Name          string
	Type          string
	Weblink       string
	Miscellaneous bool
}

func NewCategory(game *Game, data CategoryData) (*Category, error) {
	if data.ID == "" {
		return nil, fmt.Errorf("category: %w: id", ErrMissingField)
	}
	c := &Category{ID: data.ID, Game: game}
	if err := c.Update(data); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Category) Update(data CategoryData) error {
	if c.ID != data.ID {
		return fmt.Errorf("category %s: %w", c.ID, ErrIDMismatch)
	}
	if data.Name == "" {
		return fmt.Errorf("category %s: %w: name", c.ID, ErrMissingField)
	}
	c.Name = data.Name
	c.Type = data.Type
	c.Weblink = data.Weblink
	c.Miscellaneous = data.Miscellaneous
	return nil
}

type Variable struct {
	ID          string
	Name        string
	CategoryID  string // empty when the variable is not bound to a category
	LevelID     string // set only for single-level scope
	Scope       string
	Required    bool
	SubCategory bool
	UserDefined bool
	Values      map[string]string // value id -> label
	Default     string
}

func NewVariable(data VariableData) (*Variable, error) {
	if data.ID == "" {
		return nil, fmt.Errorf("variable: %w: id", ErrMissingField)
	}
	v := &Variable{ID: data.ID}
	if err := v.Update(data); err != nil {
		return nil, err
	}
	return v, nil
}

func (v *Variable) Update(data VariableData) error {
	if v.ID != data.ID {
		return fmt.Errorf("variable %s: %w", v.ID, ErrIDMismatch)
	}
	if data.Name == "" {
		return fmt.Errorf("variable %s: %w: name", v.ID, ErrMissingField)
	}
	v.Name = data.Name
	v.CategoryID = ""
	if data.Category != nil {
		v.CategoryID = *data.Category
	}
	v.Scope = data.Scope.Type
	v.LevelID = data.Scope.Level
	v.Required = data.Mandatory
	v.SubCategory = data.IsSubcategory
	v.UserDefined = data.UserDefined
	v.Values = make(map[string]string, len(data.Values.Values))
	for valueID, vd := range data.Values.Values {
		v.Values[valueID] = vd.Label
	}
	v.Default = data.Values.Default
	return nil
}

// AppliesTo reports whether the variable participates in a leaderboard query
// for the given level and category selection.
func (v *Variable) AppliesTo(levelID, categoryID string) bool {
	switch v.Scope {
	case ScopeFullGame:
		if levelID != "" {
			return false
		}
	case ScopeAllLevels:
		if levelID == "" {
			return false
		}
	case ScopeSingleLevel:
		if levelID != v.LevelID {
			return false
		}
	case ScopeGlobal:
	default:
		return false
	}
	return v.CategoryID == "" || v.CategoryID == categoryID
}

// Player is a registered speedrun.com user. The Twitch handle is derived from
// the account URL and indexed by the store.
type Player struct {
	ID           string
	Name         string
	JapaneseName string
	Weblink      string
	TwitchURL    string
	Twitch       string // lowercase-insensitive handle, empty when unlinked
	API          string
}

func NewPlayer(data PlayerData) (*Player, error) {
	if data.ID == "" {
		return nil, fmt.Errorf("player: %w: id", ErrMissingField)
	}
	p := &Player{ID: data.ID}
	if err := p.Update(data); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Player) Update(data PlayerData) error {
	if p.ID != data.ID {
		return fmt.Errorf("player %s: %w", p.ID, ErrIDMismatch)
	}
	if data.Names.International == "" {
		return fmt.Errorf("player %s: %w: names.international", p.ID, ErrMissingField)
	}
	p.Name = data.Names.International
	p.JapaneseName = data.Names.Japanese
	p.Weblink = data.Weblink
	p.TwitchURL = ""
	p.Twitch = ""
	if data.Twitch != nil && data.Twitch.URI != "" {
		p.TwitchURL = data.Twitch.URI
		p.Twitch = strings.TrimPrefix(p.TwitchURL, twitchTvBaseURL)
	}
	for _, link := range data.Links {
		if link.Rel == "self" {
			p.API = link.URI
		}
	}
	return nil
}

// Participant references either a registered player by id or an embedded
// guest by name. Exactly one of the two fields is set.
type Participant struct {
	PlayerID string
	Guest    string
}

func (p Participant) IsGuest() bool { return p.PlayerID == "" }

type Run struct {
	ID         string
	GameID     string
	LevelID    string // empty for full-game runs
	CategoryID string
	Weblink    string
	Date       *time.Time
	Submitted  *time.Time
	Time       time.Duration
	Realtime   time.Duration
	RealtimeNoLoads time.Duration
	InGameTime      time.Duration
	Participants    []Participant
}

func NewRun(data RunData) (*Run, error) {
	if data.ID == "" || data.Game == "" || data.Category == "" {
		return nil, fmt.Errorf("run: %w: id/game/category", ErrMissingField)
	}
	r := &Run{ID: data.ID, GameID: data.Game, LevelID: data.Level, CategoryID: data.Category}
	if err := r.Update(data); err != nil {
		return nil, err
	}
	return r, nil
}

// Update reassigns every mutable field. The owning game/level/category triple
// is immutable after creation; a payload that disagrees is an integrity error.
func (r *Run) Update(data RunData) error {
	if r.ID != data.ID {
		return fmt.Errorf("run %s: %w", r.ID, ErrIDMismatch)
	}
	if r.GameID != data.Game || r.LevelID != data.Level || r.CategoryID != data.Category {
		return fmt.Errorf("run %s: game/level/category changed: %w", r.ID, ErrIDMismatch)
	}
	r.Weblink = data.Weblink
	r.Date = nil
	if data.Date != "" {
		t, err := time.Parse("2006-01-02", data.Date)
		if err != nil {
			return fmt.Errorf("run %s: bad date %q: %w", r.ID, data.Date, ErrMissingField)
		}
		r.Date = &t
	}
	r.Submitted = nil
	if data.Submitted != "" {
		t, err := time.Parse(time.RFC3339, data.Submitted)
		if err != nil {
			return fmt.Errorf("run %s: bad submitted %q: %w", r.ID, data.Submitted, ErrMissingField)
		}
		r.Submitted = &t
	}
	r.Time = secondsDuration(data.Times.PrimaryT)
	r.Realtime = secondsDuration(data.Times.RealtimeT)
	r.RealtimeNoLoads = secondsDuration(data.Times.RealtimeNoloadsT)
	r.InGameTime = secondsDuration(data.Times.IngameT)
	r.Participants = r.Participants[:0]
	for _, pd := range data.Players {
		if pd.Rel == "guest" {
			r.Participants = append(r.Participants, Participant{Guest: pd.Name})
		} else {
			r.Participants = append(r.Participants, Participant{PlayerID: pd.ID})
		}
	}
	return nil
}

func secondsDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
