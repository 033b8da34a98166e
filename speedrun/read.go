package speedrun

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/onnwee/speedbot/config"
	"github.com/onnwee/speedbot/srcapi"
)

// Service ties the store to the remote API and the per-channel configuration
// tables. Every read operation stamps its cache ledger entry before fetching,
// so a failed fetch is not retried until the entry goes stale again.
type Service struct {
	Store *Store
	API   *srcapi.Client
	DB    *sql.DB
	Cfg   *config.Config
}

func NewService(store *Store, api *srcapi.Client, db *sql.DB, cfg *config.Config) *Service {
	return &Service{Store: store, API: api, DB: db, Cfg: cfg}
}

// getJSON fetches one path and decodes its data field into out. Transport and
// status errors report ok=false with a nil error; decode errors abort.
func (s *Service) getJSON(ctx context.Context, path string, out any) (bool, error) {
	raw, err := s.API.Get(ctx, path)
	if err != nil {
		if errors.Is(err, srcapi.ErrUnavailable) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, fmt.Errorf("%w: %v", srcapi.ErrMalformed, err)
	}
	return true, nil
}

// ReadPlatforms refreshes the platform table from the single-page listing.
func (s *Service) ReadPlatforms(ctx context.Context, now time.Time) error {
	s.Store.StampPlatforms(now)
	var data []PlatformData
	ok, err := s.getJSON(ctx, srcapi.PlatformsPath(), &data)
	if err != nil || !ok || len(data) == 0 {
		return err
	}
	return s.Store.ApplyPlatforms(data, now)
}

// ReadRegions refreshes the region table.
func (s *Service) ReadRegions(ctx context.Context, now time.Time) error {
	s.Store.StampRegions(now)
	var data []RegionData
	ok, err := s.getJSON(ctx, srcapi.RegionsPath(), &data)
	if err != nil || !ok || len(data) == 0 {
		return err
	}
	return s.Store.ApplyRegions(data, now)
}

func matchesSearch(search string, game GameData) bool {
	return search == strings.ToLower(game.Names.International) ||
		search == strings.ToLower(game.Abbreviation)
}

// ReadGameSearch resolves a search string against the game directory in two
// probes: an exact id/abbreviation lookup, then a best-match name search. An
// exact name or abbreviation match records both search results; otherwise the
// exact result records a miss and the best-guess result records the name
// search's first hit, if any.
func (s *Service) ReadGameSearch(ctx context.Context, search string, now time.Time) error {
	s.Store.StampGameSearch(search, now)

	var game GameData
	ok, err := s.getJSON(ctx, srcapi.GamePath(search), &game)
	if err != nil {
		return err
	}
	if ok && matchesSearch(search, game) {
		s.Store.RecordGameSearchHit(search, game.ID, now)
		return nil
	}

	var results []GameData
	ok, err = s.getJSON(ctx, srcapi.GameSearchPath(search), &results)
	if err != nil {
		return err
	}
	if ok && len(results) > 0 {
		if matchesSearch(search, results[0]) {
			s.Store.RecordGameSearchHit(search, results[0].ID, now)
			return nil
		}
		s.Store.RecordGameSearchMiss(search, results[0].ID, now)
		return nil
	}
	s.Store.RecordGameSearchMiss(search, "", now)
	return nil
}

// ReadGameByID fetches a game's detail payload and resynchronizes its
// categories, levels and variables. An unknown or unreachable game id is
// recorded as a search miss so the lookup is remembered until stale.
func (s *Service) ReadGameByID(ctx context.Context, gameID string, now time.Time) error {
	s.Store.StampGame(gameID, now)
	var detail GameDetailData
	ok, err := s.getJSON(ctx, srcapi.GameDetailPath(gameID), &detail)
	if err != nil {
		return err
	}
	if !ok || detail.ID == "" {
		s.Store.RecordGameLookupMiss(gameID, now)
		return nil
	}
	if _, err := s.Store.ApplyGameDetail(detail); err != nil {
		return err
	}
	s.Store.RecordGameLoaded(detail.ID, now)
	return nil
}

// ReadLeaderboard refreshes one board from its filtered leaderboard endpoint.
func (s *Service) ReadLeaderboard(ctx context.Context, id BoardID, now time.Time) error {
	s.Store.StampBoard(id, now)
	path := srcapi.LeaderboardPath(id.GameID, id.LevelID, id.CategoryID,
		id.RegionID, id.PlatformID, id.SortedVariables())
	var data LeaderboardData
	ok, err := s.getJSON(ctx, path, &data)
	if err != nil || !ok {
		return err
	}
	return s.Store.ApplyLeaderboard(id, s.API.BaseURL+path, data, now)
}

// ReadUser resolves a lookup identifier through up to four probes: direct
// user id, twitch account search, site name search and the catch-all lookup
// search. The first hit wins; four misses record a known miss.
func (s *Service) ReadUser(ctx context.Context, identifier string, now time.Time) error {
	s.Store.StampPlayerLookup(identifier, now)

	var user PlayerData
	ok, err := s.getJSON(ctx, srcapi.UserPath(identifier), &user)
	if err != nil {
		return err
	}
	if ok && user.ID != "" {
		return s.Store.ApplyUser(user, identifier, now)
	}
	searches := []string{
		srcapi.UserByTwitchPath(identifier),
		srcapi.UserByNamePath(identifier),
		srcapi.UserLookupPath(identifier),
	}
	for _, path := range searches {
		var users []PlayerData
		ok, err := s.getJSON(ctx, path, &users)
		if err != nil {
			return err
		}
		if ok && len(users) > 0 {
			return s.Store.ApplyUser(users[0], identifier, now)
		}
	}
	s.Store.RecordUserMiss(identifier, now)
	return nil
}

// EnsureBaseData loads platforms and regions once; after the first successful
// load the refresh scheduler keeps them fresh.
func (s *Service) EnsureBaseData(ctx context.Context, now time.Time) error {
	if s.Store.NeedPlatforms() {
		if err := s.ReadPlatforms(ctx, now); err != nil {
			return err
		}
	}
	if s.Store.NeedRegions() {
		if err := s.ReadRegions(ctx, now); err != nil {
			return err
		}
	}
	return nil
}

// LoadGame resolves the game a query refers to and returns the search key
// the caller should use against the store. Priority: an explicit search
// string, then a configured game id, then the twitch game mapping table, then
// a name search on the channel's twitch game. At most one game is fetched.
func (s *Service) LoadGame(ctx context.Context, twitchGame, gameID, search string, now time.Time) (string, error) {
	if err := s.EnsureBaseData(ctx, now); err != nil {
		return "", err
	}
	if search != "" {
		search = strings.ToLower(search)
		if !s.Store.HasGameSearch(search) {
			if err := s.ReadGameSearch(ctx, search, now); err != nil {
				return "", err
			}
			if err := s.readSearchedGame(ctx, search, now); err != nil {
				return "", err
			}
		}
		return search, nil
	}
	if twitchGame == "" {
		return "", nil
	}
	game := strings.ToLower(twitchGame)
	if gameID == "" {
		var err error
		gameID, err = s.TwitchGameID(ctx, game)
		if err != nil {
			return "", err
		}
	}
	if gameID != "" {
		if !s.Store.HasGameSearch(gameID) {
			if err := s.ReadGameByID(ctx, gameID, now); err != nil {
				return "", err
			}
		}
		return gameID, nil
	}
	if game != "" && !s.Store.HasGameSearch(game) {
		if err := s.ReadGameSearch(ctx, game, now); err != nil {
			return "", err
		}
		if err := s.readSearchedGame(ctx, game, now); err != nil {
			return "", err
		}
	}
	return game, nil
}

func (s *Service) readSearchedGame(ctx context.Context, search string, now time.Time) error {
	if id, ok := s.Store.GameSearchResult(search); ok && id != "" {
		return s.ReadGameByID(ctx, id, now)
	}
	if id, ok := s.Store.BestSearchResult(search); ok && id != "" {
		return s.ReadGameByID(ctx, id, now)
	}
	return nil
}

// LoadLeaderboard marks the board as actively requested and fetches it if it
// has never been loaded. Staleness of already-loaded boards is the refresh
// scheduler's business.
func (s *Service) LoadLeaderboard(ctx context.Context, id BoardID, now time.Time) error {
	s.Store.MarkBoardActive(id, now)
	if _, ok := s.Store.Board(id); ok {
		return nil
	}
	return s.ReadLeaderboard(ctx, id, now)
}

// LoadUser resolves a player identifier unless it has already been looked up.
func (s *Service) LoadUser(ctx context.Context, identifier string, now time.Time) error {
	identifier = strings.ToLower(identifier)
	if s.Store.HasPlayerLookup(identifier) {
		return nil
	}
	return s.ReadUser(ctx, identifier, now)
}
