package speedrun

import (
	"strings"
	"sync"
	"time"
)

// ledger tracks last-successful-refresh timestamps per cache category. It is
// the sole source of truth for staleness decisions; entity table contents
// never decide whether a refresh is due.
type ledger struct {
	platforms    time.Time
	regions      time.Time
	games        map[string]time.Time
	gameSearch   map[string]time.Time
	bestSearch   map[string]time.Time
	playerLookup map[string]time.Time
	twitchPlayer map[string]time.Time
	boards       map[string]time.Time
}

func newLedger() ledger {
	return ledger{
		games:        make(map[string]time.Time),
		gameSearch:   make(map[string]time.Time),
		bestSearch:   make(map[string]time.Time),
		playerLookup: make(map[string]time.Time),
		twitchPlayer: make(map[string]time.Time),
		boards:       make(map[string]time.Time),
	}
}

// Store owns every in-memory entity table, the freshness ledger and the
// leaderboard activity ledger. It is constructed once at process start and
// shared by reference; the scheduler tick and the chat handlers run on
// different goroutines, so every entry point takes the store mutex.
type Store struct {
	mu sync.Mutex

	platforms  map[string]*Platform
	regions    map[string]*Region
	games      map[string]*Game
	levels     map[string]*Level
	categories map[string]*Category
	variables  map[string]*Variable
	players    map[string]*Player
	runs       map[string]*Run
	boards     map[string]*Leaderboard
	boardIDs   map[string]BoardID

	// Secondary indices. Presence with an empty value records a known miss.
	twitchPlayer map[string]string
	playerLookup map[string]string
	gameSearch   map[string]string
	bestSearch   map[string]string

	ledger        ledger
	lastRequested map[string]time.Time // board key -> last active request
}

func NewStore() *Store {
	s := &Store{}
	s.resetLocked()
	return s
}

func (s *Store) resetLocked() {
	s.platforms = make(map[string]*Platform)
	s.regions = make(map[string]*Region)
	s.games = make(map[string]*Game)
	s.levels = make(map[string]*Level)
	s.categories = make(map[string]*Category)
	s.variables = make(map[string]*Variable)
	s.players = make(map[string]*Player)
	s.runs = make(map[string]*Run)
	s.boards = make(map[string]*Leaderboard)
	s.boardIDs = make(map[string]BoardID)
	s.twitchPlayer = make(map[string]string)
	s.playerLookup = make(map[string]string)
	s.gameSearch = make(map[string]string)
	s.bestSearch = make(map[string]string)
	s.ledger = newLedger()
	s.lastRequested = make(map[string]time.Time)
}

// Reload drops every table and ledger entry atomically, leaving the store as
// if freshly constructed.
func (s *Store) Reload() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetLocked()
}

// Counts reports entity table sizes for status reporting and metrics.
func (s *Store) Counts() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return map[string]int{
		"platforms":    len(s.platforms),
		"regions":      len(s.regions),
		"games":        len(s.games),
		"levels":       len(s.levels),
		"categories":   len(s.categories),
		"variables":    len(s.variables),
		"players":      len(s.players),
		"runs":         len(s.runs),
		"leaderboards": len(s.boards),
	}
}

// Lookup accessors.

func (s *Store) GameByID(id string) (*Game, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.games[id]
	return g, ok
}

// ResolveSearchedGame maps a search key to a loaded game, preferring exact
// search results over best-guess results.
func (s *Store) ResolveSearchedGame(searched string) (*Game, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.gameSearch[searched]; ok && id != "" {
		if g, ok := s.games[id]; ok {
			return g, true
		}
	}
	if id, ok := s.bestSearch[searched]; ok && id != "" {
		if g, ok := s.games[id]; ok {
			return g, true
		}
	}
	return nil, false
}

// GameSearchResult returns the exact-match search result for a key, if the
// search has been performed.
func (s *Store) GameSearchResult(search string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.gameSearch[search]
	return id, ok
}

// BestSearchResult returns the best-guess search result for a key, if the
// search has been performed.
func (s *Store) BestSearchResult(search string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.bestSearch[search]
	return id, ok
}

func (s *Store) LevelByID(id string) (*Level, bool) {
	if id == "" {
		return nil, false // the "full game" sentinel
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.levels[id]
	return l, ok
}

func (s *Store) CategoryByID(id string) (*Category, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.categories[id]
	return c, ok
}

func (s *Store) VariableByID(id string) (*Variable, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.variables[id]
	return v, ok
}

func (s *Store) RegionByID(id string) (*Region, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.regions[id]
	return r, ok
}

func (s *Store) PlatformByID(id string) (*Platform, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.platforms[id]
	return p, ok
}

func (s *Store) PlayerByID(id string) (*Player, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.players[id]
	return p, ok
}

func (s *Store) RunByID(id string) (*Run, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.runs[id]
	return r, ok
}

// PlayerIDByLookup resolves a lookup identifier (user id, name or twitch
// handle) to a player id. The second result reports whether the identifier
// was ever looked up; an empty id with true is a recorded miss.
func (s *Store) PlayerIDByLookup(identifier string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.playerLookup[identifier]
	return id, ok
}

func (s *Store) Board(id BoardID) (*Leaderboard, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.boards[id.Key()]
	return b, ok
}

// MarkBoardActive records that a chat command resolved this board. Activity
// is tracked separately from freshness: the scheduler refuses to refresh
// boards nobody has asked about recently.
func (s *Store) MarkBoardActive(id BoardID, ts time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastRequested[id.Key()] = ts
}

// WorldRecordRunIDs returns the first-place run ids in rank order.
func (s *Store) WorldRecordRunIDs(id BoardID) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.boards[id.Key()]
	if !ok {
		return nil
	}
	return b.RunIDsAtPlace(1)
}

// PersonalBestRunID returns the player's best run on a board, if any.
func (s *Store) PersonalBestRunID(id BoardID, playerID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.boards[id.Key()]
	if !ok {
		return "", false
	}
	runID, ok := b.RunsByPlayer[playerID]
	return runID, ok
}

// Staleness predicates used by the loader and the proactive scheduler path.

func (s *Store) NeedPlatforms() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.platforms) == 0 && s.ledger.platforms.IsZero()
}

func (s *Store) NeedRegions() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.regions) == 0 && s.ledger.regions.IsZero()
}

func (s *Store) NeedPlayerLookup(identifier string, now time.Time, ttl time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	ts, ok := s.ledger.playerLookup[identifier]
	return !ok || now.Sub(ts) >= ttl
}

func (s *Store) HasPlayerLookup(identifier string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.playerLookup[identifier]
	return ok
}

func (s *Store) NeedGameSearch(search string, now time.Time, ttl time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	ts, ok := s.ledger.gameSearch[search]
	return !ok || now.Sub(ts) >= ttl
}

func (s *Store) HasGameSearch(search string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.gameSearch[search]
	return ok
}

func (s *Store) NeedGame(gameID string, now time.Time, ttl time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	ts, ok := s.ledger.games[gameID]
	return !ok || now.Sub(ts) >= ttl
}

func (s *Store) NeedBoard(id BoardID, now time.Time, ttl time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	ts, ok := s.ledger.boards[id.Key()]
	return !ok || now.Sub(ts) >= ttl
}

// Ledger stamps. Read operations stamp their entry before fetching so that a
// failed fetch is not retried until the staleness window passes again.

func (s *Store) StampPlatforms(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ledger.platforms = now
}

func (s *Store) StampRegions(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ledger.regions = now
}

func (s *Store) StampGameSearch(search string, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ledger.gameSearch[search] = now
	s.ledger.bestSearch[search] = now
}

func (s *Store) StampGame(gameID string, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ledger.gameSearch[gameID] = now
	s.ledger.games[gameID] = now
}

func (s *Store) StampBoard(id BoardID, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := id.Key()
	s.ledger.boards[key] = now
	s.boardIDs[key] = id
}

func (s *Store) StampPlayerLookup(identifier string, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ledger.playerLookup[identifier] = now
}

// Apply operations. Each one maps a parsed payload onto the entity tables
// under a single lock acquisition.

func (s *Store) ApplyPlatforms(data []PlatformData, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, pd := range data {
		if p, ok := s.platforms[pd.ID]; ok {
			if err := p.Update(pd); err != nil {
				return err
			}
		} else {
			p, err := NewPlatform(pd)
			if err != nil {
				return err
			}
			s.platforms[p.ID] = p
		}
	}
	s.ledger.platforms = now
	return nil
}

func (s *Store) ApplyRegions(data []RegionData, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rd := range data {
		if r, ok := s.regions[rd.ID]; ok {
			if err := r.Update(rd); err != nil {
				return err
			}
		} else {
			r, err := NewRegion(rd)
			if err != nil {
				return err
			}
			s.regions[r.ID] = r
		}
	}
	s.ledger.regions = now
	return nil
}

// RecordGameSearchHit stores an exact search match.
func (s *Store) RecordGameSearchHit(search, gameID string, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gameSearch[search] = gameID
	s.bestSearch[search] = gameID
	s.ledger.gameSearch[search] = now
	s.ledger.bestSearch[search] = now
}

// RecordGameSearchMiss stores a failed exact search, with an optional
// best-guess game id from the name search.
func (s *Store) RecordGameSearchMiss(search, bestID string, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gameSearch[search] = ""
	s.bestSearch[search] = bestID
	s.ledger.gameSearch[search] = now
	s.ledger.bestSearch[search] = now
}

// RecordGameLookupMiss marks a game id that the detail endpoint did not know.
func (s *Store) RecordGameLookupMiss(gameID string, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gameSearch[gameID] = ""
	s.ledger.gameSearch[gameID] = now
}

// RecordGameLoaded marks a game id as resolvable through the search index
// and stamps its freshness.
func (s *Store) RecordGameLoaded(gameID string, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gameSearch[gameID] = gameID
	s.ledger.gameSearch[gameID] = now
	s.ledger.games[gameID] = now
}

// ApplyGameDetail maps a game detail payload, fully resynchronizing the
// game's categories, levels and variables: entities present before the parse
// but absent from the payload are removed from both the per-game containers
// and the global tables.
func (s *Store) ApplyGameDetail(data GameDetailData) (*Game, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	game, ok := s.games[data.ID]
	if ok {
		if err := game.Update(data.GameData); err != nil {
			return nil, err
		}
	} else {
		var err error
		game, err = NewGame(data.GameData)
		if err != nil {
			return nil, err
		}
		s.games[game.ID] = game
	}

	categoriesToClear := make(map[string]bool)
	for _, id := range game.GameCategories.Keys() {
		categoriesToClear[id] = true
	}
	for _, id := range game.LevelCategories.Keys() {
		categoriesToClear[id] = true
	}
	for _, cd := range data.Categories.Data {
		category, ok := s.categories[cd.ID]
		if ok {
			if err := category.Update(cd); err != nil {
				return nil, err
			}
		} else {
			var err error
			category, err = NewCategory(game, cd)
			if err != nil {
				return nil, err
			}
			s.categories[category.ID] = category
		}
		if category.Type == CategoryPerGame {
			game.LevelCategories.Delete(category.ID)
			game.GameCategories.Put(category.ID, category)
		} else {
			game.GameCategories.Delete(category.ID)
			game.LevelCategories.Put(category.ID, category)
		}
		delete(categoriesToClear, category.ID)
	}

	levelsToClear := make(map[string]bool)
	for _, id := range game.Levels.Keys() {
		levelsToClear[id] = true
	}
	for _, ld := range data.Levels.Data {
		level, ok := s.levels[ld.ID]
		if ok {
			if err := level.Update(ld); err != nil {
				return nil, err
			}
		} else {
			var err error
			level, err = NewLevel(game, ld)
			if err != nil {
				return nil, err
			}
			s.levels[level.ID] = level
		}
		game.Levels.Put(level.ID, level)
		for _, cd := range ld.Categories.Data {
			category, err := NewCategory(game, cd)
			if err != nil {
				return nil, err
			}
			level.Categories.Put(category.ID, category)
		}
		delete(levelsToClear, level.ID)
	}

	variablesToClear := make(map[string]bool)
	for _, id := range game.Variables.Keys() {
		variablesToClear[id] = true
	}
	for _, vd := range data.Variables.Data {
		variable, ok := s.variables[vd.ID]
		if ok {
			if err := variable.Update(vd); err != nil {
				return nil, err
			}
		} else {
			var err error
			variable, err = NewVariable(vd)
			if err != nil {
				return nil, err
			}
			s.variables[variable.ID] = variable
		}
		game.Variables.Put(variable.ID, variable)
		delete(variablesToClear, variable.ID)
	}

	for categoryID := range categoriesToClear {
		game.GameCategories.Delete(categoryID)
		game.LevelCategories.Delete(categoryID)
		delete(s.categories, categoryID)
	}
	for levelID := range levelsToClear {
		game.Levels.Delete(levelID)
		delete(s.levels, levelID)
	}
	for variableID := range variablesToClear {
		game.Variables.Delete(variableID)
		delete(s.variables, variableID)
	}

	return game, nil
}

// applyPlayerLocked updates or creates a player, maintaining the
// twitch-handle index: when an update changes or clears the handle, the old
// handle's index entry and its ledger entry are removed in the same locked
// section as the update.
func (s *Store) applyPlayerLocked(pd PlayerData, now time.Time) (*Player, error) {
	player, ok := s.players[pd.ID]
	if ok {
		oldTwitch := strings.ToLower(player.Twitch)
		if err := player.Update(pd); err != nil {
			return nil, err
		}
		newTwitch := strings.ToLower(player.Twitch)
		if oldTwitch != "" && oldTwitch != newTwitch {
			delete(s.twitchPlayer, oldTwitch)
			delete(s.ledger.twitchPlayer, oldTwitch)
		}
	} else {
		var err error
		player, err = NewPlayer(pd)
		if err != nil {
			return nil, err
		}
		s.players[player.ID] = player
	}
	if player.Twitch != "" {
		handle := strings.ToLower(player.Twitch)
		s.playerLookup[handle] = player.ID
		s.twitchPlayer[handle] = player.ID
		if _, tracked := s.ledger.playerLookup[handle]; tracked {
			s.ledger.playerLookup[handle] = now
		}
	}
	return player, nil
}

// ApplyLeaderboard replaces a board's contents from a leaderboard payload.
// The board is wholly reset before repopulation; a query immediately after a
// refresh never sees a pre-refresh run.
func (s *Store) ApplyLeaderboard(id BoardID, uri string, data LeaderboardData, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := id.Key()
	board, ok := s.boards[key]
	if ok {
		board.Reset()
	} else {
		board = NewLeaderboard(uri, data)
		s.boards[key] = board
	}
	s.boardIDs[key] = id

	for _, entry := range data.Runs {
		run, ok := s.runs[entry.Run.ID]
		if ok {
			if err := run.Update(entry.Run); err != nil {
				return err
			}
		} else {
			var err error
			run, err = NewRun(entry.Run)
			if err != nil {
				return err
			}
			s.runs[run.ID] = run
		}
		board.AddRun(entry.Place, run)
	}

	for _, pd := range data.Players.Data {
		if pd.Rel == "guest" {
			continue
		}
		player, err := s.applyPlayerLocked(pd, now)
		if err != nil {
			return err
		}
		s.playerLookup[player.Name] = player.ID
		s.playerLookup[player.ID] = player.ID
		if _, tracked := s.ledger.playerLookup[player.Name]; tracked {
			s.ledger.playerLookup[player.Name] = now
		}
		if _, tracked := s.ledger.playerLookup[player.ID]; tracked {
			s.ledger.playerLookup[player.ID] = now
		}
	}

	s.ledger.boards[key] = now
	return nil
}

// ApplyUser maps a user payload found for a lookup identifier.
func (s *Store) ApplyUser(pd PlayerData, identifier string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	player, err := s.applyPlayerLocked(pd, now)
	if err != nil {
		return err
	}
	s.twitchPlayer[identifier] = player.ID
	s.playerLookup[identifier] = player.ID
	s.playerLookup[player.Name] = player.ID
	s.playerLookup[player.ID] = player.ID
	if player.Twitch != "" {
		handle := strings.ToLower(player.Twitch)
		s.playerLookup[handle] = player.ID
		s.ledger.twitchPlayer[handle] = now
		s.ledger.playerLookup[handle] = now
	}
	s.ledger.playerLookup[identifier] = now
	s.ledger.playerLookup[player.Name] = now
	s.ledger.playerLookup[player.ID] = now
	return nil
}

// RecordUserMiss marks a lookup identifier that matched no upstream user.
func (s *Store) RecordUserMiss(identifier string, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.playerLookup[identifier] = ""
	s.ledger.playerLookup[identifier] = now
}

// RefreshTarget is one stale cache entry chosen by the scheduler.
type RefreshTarget struct {
	kind  string
	key   string
	board BoardID
	cost  int
}

// NextStale scans the ledgers in fixed priority order (leaderboards, games,
// game/best search, player lookups, platforms, regions) and returns the first
// stale entry, stamping it so a failed refresh is not re-picked immediately.
// Leaderboards are skipped unless actively requested within twice their TTL.
func (s *Store) NextStale(now time.Time, cacheTTL, boardTTL time.Duration) (RefreshTarget, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, ts := range s.ledger.boards {
		if now.Sub(ts) < boardTTL {
			continue
		}
		if now.Sub(s.lastRequested[key]) > 2*boardTTL {
			continue // abandoned board, nobody asked recently
		}
		s.ledger.boards[key] = now
		return RefreshTarget{kind: "leaderboards", key: key, board: s.boardIDs[key], cost: 1}, true
	}
	for id, ts := range s.ledger.games {
		if now.Sub(ts) < cacheTTL {
			continue
		}
		s.ledger.games[id] = now
		return RefreshTarget{kind: "games", key: id, cost: 1}, true
	}
	for search, ts := range s.ledger.gameSearch {
		if now.Sub(ts) < cacheTTL {
			continue
		}
		s.ledger.gameSearch[search] = now
		s.ledger.bestSearch[search] = now
		return RefreshTarget{kind: "gameSearch", key: search, cost: 2}, true
	}
	for search, ts := range s.ledger.bestSearch {
		if now.Sub(ts) < cacheTTL {
			continue
		}
		s.ledger.gameSearch[search] = now
		s.ledger.bestSearch[search] = now
		return RefreshTarget{kind: "gameSearch", key: search, cost: 2}, true
	}
	for identifier, ts := range s.ledger.playerLookup {
		if now.Sub(ts) < cacheTTL {
			continue
		}
		s.ledger.playerLookup[identifier] = now
		return RefreshTarget{kind: "playerLookup", key: identifier, cost: 4}, true
	}
	if !s.ledger.platforms.IsZero() && now.Sub(s.ledger.platforms) >= cacheTTL {
		s.ledger.platforms = now
		return RefreshTarget{kind: "platforms", cost: 1}, true
	}
	if !s.ledger.regions.IsZero() && now.Sub(s.ledger.regions) >= cacheTTL {
		s.ledger.regions = now
		return RefreshTarget{kind: "regions", cost: 1}, true
	}
	return RefreshTarget{}, false
}
