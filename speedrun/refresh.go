package speedrun

import (
	"context"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/onnwee/speedbot/telemetry"
)

// ChannelState is a snapshot of one joined chat channel, fed to the scheduler
// by the chat layer each tick.
type ChannelState struct {
	Name       string
	TwitchGame string
	Live       bool
}

// Scheduler drives cache refreshing under the shared API budget. Each tick
// performs at most one refresh action: the highest-priority stale ledger
// entry, or failing that one proactive loading step for a live channel.
// Tick runs on a single goroutine; the call window needs no locking.
type Scheduler struct {
	Svc *Service
	// Channels returns the current chat channel snapshots.
	Channels func() []ChannelState

	calls  []time.Time
	window atomic.Int64
}

// WindowOccupancy reports how many call slots the scheduler currently has
// booked. Safe to read from other goroutines.
func (s *Scheduler) WindowOccupancy() int {
	return int(s.window.Load())
}

func NewScheduler(svc *Service, channels func() []ChannelState) *Scheduler {
	return &Scheduler{Svc: svc, Channels: channels}
}

// charge books n call slots against the window.
func (s *Scheduler) charge(now time.Time, n int) {
	for i := 0; i < n; i++ {
		s.calls = append(s.calls, now)
	}
	s.window.Store(int64(len(s.calls)))
	telemetry.SetCallWindow(len(s.calls))
}

// Tick runs one scheduler pass. When the rolling call window is full the
// whole pass is a no-op; chat-triggered loads keep their headroom because
// their calls are never booked here.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) {
	cfg := s.Svc.Cfg
	recent := s.calls[:0]
	for _, c := range s.calls {
		if now.Sub(c) < cfg.CallWindow {
			recent = append(recent, c)
		}
	}
	s.calls = recent
	s.window.Store(int64(len(s.calls)))
	telemetry.SetCallWindow(len(s.calls))
	if len(s.calls) >= cfg.CallLimit {
		return
	}

	if target, ok := s.Svc.Store.NextStale(now, cfg.CacheTTL, cfg.LeaderboardTTL); ok {
		s.charge(now, target.cost)
		telemetry.CountRefresh(target.kind)
		var err error
		switch target.kind {
		case "leaderboards":
			err = s.Svc.ReadLeaderboard(ctx, target.board, now)
		case "games":
			err = s.Svc.ReadGameByID(ctx, target.key, now)
		case "gameSearch":
			err = s.Svc.ReadGameSearch(ctx, target.key, now)
		case "playerLookup":
			err = s.Svc.ReadUser(ctx, target.key, now)
		case "platforms":
			err = s.Svc.ReadPlatforms(ctx, now)
		case "regions":
			err = s.Svc.ReadRegions(ctx, now)
		}
		if err != nil {
			slog.Error("cache refresh failed",
				slog.String("kind", target.kind),
				slog.String("key", target.key),
				slog.Any("err", err),
				slog.String("component", "refresh"))
		}
		return
	}

	if err := s.loadInfo(ctx, now); err != nil {
		slog.Error("proactive load failed", slog.Any("err", err),
			slog.String("component", "refresh"))
	}
}

// loadInfo walks the live channels with the feature enabled and performs the
// first missing loading step found: the channel's player, its game and
// finally its default leaderboard. One fetch at most per tick.
func (s *Scheduler) loadInfo(ctx context.Context, now time.Time) error {
	cfg := s.Svc.Cfg
	store := s.Svc.Store

	channels := s.Channels()
	if len(channels) == 0 {
		return nil
	}
	active, err := s.Svc.ActiveChannels(ctx)
	if err != nil {
		return err
	}
	enabled := make(map[string]bool, len(active))
	for _, ch := range active {
		enabled[ch] = true
	}

	for _, chat := range channels {
		if !enabled[chat.Name] {
			continue
		}
		if !chat.Live && !cfg.Development {
			continue
		}

		user, err := s.Svc.ChannelUser(ctx, chat.Name)
		if err != nil {
			return err
		}
		user = strings.ToLower(user)
		if store.NeedPlayerLookup(user, now, cfg.CacheTTL) {
			s.charge(now, 4)
			telemetry.CountRefresh("playerLookup")
			return s.Svc.ReadUser(ctx, user, now)
		}

		gameID, err := s.Svc.ChannelGameID(ctx, chat.Name)
		if err != nil {
			return err
		}
		if gameID == "" && chat.TwitchGame != "" {
			game := strings.ToLower(chat.TwitchGame)
			gameID, err = s.Svc.TwitchGameID(ctx, game)
			if err != nil {
				return err
			}
			if gameID == "" {
				if store.NeedGameSearch(game, now, cfg.CacheTTL) {
					s.charge(now, 1)
					telemetry.CountRefresh("gameSearch")
					return s.Svc.ReadGameSearch(ctx, game, now)
				}
				if id, ok := store.GameSearchResult(game); ok {
					gameID = id
				}
			}
		}
		if gameID == "" {
			continue
		}
		if store.NeedGame(gameID, now, cfg.CacheTTL) {
			s.charge(now, 1)
			telemetry.CountRefresh("games")
			return s.Svc.ReadGameByID(ctx, gameID, now)
		}
		game, ok := store.GameByID(gameID)
		if !ok {
			return nil
		}

		levelID, err := s.Svc.ChannelLevelID(ctx, chat.Name, gameID)
		if err != nil {
			return err
		}
		categoryID, err := s.Svc.ChannelCategoryID(ctx, chat.Name, gameID, levelID)
		if err != nil {
			return err
		}
		if categoryID == "" {
			category := DefaultCategory(game.GameCategories.Values())
			if category == nil {
				return nil
			}
			categoryID = category.ID
		}
		variables := game.DefaultSubCategories(levelID, categoryID)
		overrides, err := s.Svc.ChannelVariables(ctx, chat.Name, gameID, levelID, categoryID)
		if err != nil {
			return err
		}
		for id, value := range overrides {
			variables[id] = value
		}
		regionID, err := s.Svc.ChannelRegion(ctx, chat.Name, gameID)
		if err != nil {
			return err
		}
		platformID, err := s.Svc.ChannelPlatform(ctx, chat.Name, gameID)
		if err != nil {
			return err
		}
		board := BoardID{
			GameID:     gameID,
			LevelID:    levelID,
			CategoryID: categoryID,
			RegionID:   regionID,
			PlatformID: platformID,
			Variables:  variables,
		}
		if store.NeedBoard(board, now, cfg.CacheTTL) {
			s.charge(now, 1)
			telemetry.CountRefresh("leaderboards")
			return s.Svc.LoadLeaderboard(ctx, board, now)
		}
		store.MarkBoardActive(board, now)
	}
	return nil
}

// Run ticks the scheduler until the context is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	interval := s.Svc.Cfg.RefreshInterval
	slog.Info("refresh scheduler started",
		slog.Duration("interval", interval), slog.String("component", "refresh"))
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			slog.Info("refresh scheduler stopped", slog.String("component", "refresh"))
			return
		case now := <-ticker.C:
			s.Tick(ctx, now)
		}
	}
}
