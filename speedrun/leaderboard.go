package speedrun

import (
	"sort"
	"strings"
)

// BoardID is the composite identity of a leaderboard: game, level (empty for
// full-game boards), category, optional region and platform filters, and the
// selected variable values. Two BoardIDs are equal iff all six components are
// equal; variable insertion order never matters.
type BoardID struct {
	GameID     string
	LevelID    string
	CategoryID string
	RegionID   string
	PlatformID string
	Variables  map[string]string
}

// SortedVariables returns the variable pairs in a deterministic order.
func (id BoardID) SortedVariables() [][2]string {
	pairs := make([][2]string, 0, len(id.Variables))
	for k, v := range id.Variables {
		pairs = append(pairs, [2]string{k, v})
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i][0] < pairs[j][0] })
	return pairs
}

// Key returns a canonical string form usable as a map key. Identical logical
// BoardIDs always yield identical keys regardless of how the variable map was
// built.
func (id BoardID) Key() string {
	var b strings.Builder
	b.WriteString(id.GameID)
	b.WriteByte(0)
	b.WriteString(id.LevelID)
	b.WriteByte(0)
	b.WriteString(id.CategoryID)
	b.WriteByte(0)
	b.WriteString(id.RegionID)
	b.WriteByte(0)
	b.WriteString(id.PlatformID)
	for _, kv := range id.SortedVariables() {
		b.WriteByte(0)
		b.WriteString(kv[0])
		b.WriteByte('=')
		b.WriteString(kv[1])
	}
	return b.String()
}

// Equal compares two BoardIDs componentwise.
func (id BoardID) Equal(other BoardID) bool { return id.Key() == other.Key() }

// Leaderboard holds one board's runs, their places (ties share a place
// number), and each player's best run (the first one encountered; runs are
// added in rank order).
type Leaderboard struct {
	GameID     string
	LevelID    string
	CategoryID string
	Weblink    string
	API        string

	Runs         map[string]*Run
	Place        map[string]int
	RunsByPlayer map[string]string

	placeOrder []string
}

// NewLeaderboard builds an empty board from a leaderboard payload header.
func NewLeaderboard(uri string, data LeaderboardData) *Leaderboard {
	l := &Leaderboard{
		GameID:       data.Game,
		LevelID:      data.Level,
		CategoryID:   data.Category,
		Weblink:      data.Weblink,
		API:          uri,
		Runs:         make(map[string]*Run),
		Place:        make(map[string]int),
		RunsByPlayer: make(map[string]string),
	}
	for _, link := range data.Links {
		if link.Rel == "self" {
			l.API = link.URI
		}
	}
	return l
}

// AddRun records a run at a place. Guests do not participate in the
// player-best index.
func (l *Leaderboard) AddRun(place int, run *Run) {
	if _, ok := l.Place[run.ID]; !ok {
		l.placeOrder = append(l.placeOrder, run.ID)
	}
	l.Runs[run.ID] = run
	l.Place[run.ID] = place
	for _, p := range run.Participants {
		if p.IsGuest() {
			continue
		}
		if _, ok := l.RunsByPlayer[p.PlayerID]; ok {
			continue
		}
		l.RunsByPlayer[p.PlayerID] = run.ID
	}
}

// RunIDsAtPlace returns the run ids holding the given place, in rank order.
func (l *Leaderboard) RunIDsAtPlace(place int) []string {
	var out []string
	for _, id := range l.placeOrder {
		if l.Place[id] == place {
			out = append(out, id)
		}
	}
	return out
}

// Reset clears every run, place and player-best entry. A refresh always
// repopulates a board from scratch; boards are never partially merged.
func (l *Leaderboard) Reset() {
	l.Runs = make(map[string]*Run)
	l.Place = make(map[string]int)
	l.RunsByPlayer = make(map[string]string)
	l.placeOrder = l.placeOrder[:0]
}
