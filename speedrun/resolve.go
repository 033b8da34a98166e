package speedrun

import (
	"context"
	"fmt"
	"time"
)

// NotFoundError carries a chat-ready message for a resolution failure. Chat
// handlers send the message verbatim instead of logging it as a fault.
type NotFoundError struct {
	Msg string
}

func (e *NotFoundError) Error() string { return e.Msg }

// Selection is a fully resolved leaderboard query for one channel: the game,
// the level and category pool the channel's defaults picked out of it, the
// variable filter and the resulting board identity.
type Selection struct {
	Searched   string
	Game       *Game
	Level      *Level // nil for full-game queries
	Categories []*Category
	Category   *Category
	Variables  map[string]string
	RegionID   string
	PlatformID string
	Board      BoardID
}

// ResolveGame finds the game a channel's query refers to. An explicit query
// takes priority over the channel's pinned game, which takes priority over
// the Twitch directory mapping.
func (s *Service) ResolveGame(ctx context.Context, channel, twitchGame, query string, now time.Time) (*Game, string, error) {
	chanGameID, err := s.ChannelGameID(ctx, channel)
	if err != nil {
		return nil, "", err
	}
	searched, err := s.LoadGame(ctx, twitchGame, chanGameID, query, now)
	if err != nil {
		return nil, "", err
	}
	game, ok := s.Store.ResolveSearchedGame(searched)
	if !ok {
		return nil, searched, &NotFoundError{
			Msg: fmt.Sprintf("Cannot find game '%s' on speedrun.com", searched),
		}
	}
	return game, searched, nil
}

// LevelSelection applies the channel's level default to a game and returns
// the level (nil when full-game) together with the category pool that the
// selection makes available.
func (s *Service) LevelSelection(ctx context.Context, channel string, game *Game) (*Level, []*Category, error) {
	levelID, err := s.ChannelLevelID(ctx, channel, game.ID)
	if err != nil {
		return nil, nil, err
	}
	if levelID != "" {
		if level, ok := game.Levels.Get(levelID); ok {
			return level, level.Categories.Values(), nil
		}
	}
	return nil, game.GameCategories.Values(), nil
}

// DefaultCategory picks the first non-miscellaneous category of a pool,
// falling back to the first category outright.
func DefaultCategory(pool []*Category) *Category {
	for _, c := range pool {
		if !c.Miscellaneous {
			return c
		}
	}
	if len(pool) > 0 {
		return pool[0]
	}
	return nil
}

// ResolveCategory applies the channel's category default to a level
// selection, falling back to the pool default. A configured category that no
// longer exists in the pool is a resolution failure.
func (s *Service) ResolveCategory(ctx context.Context, channel string, game *Game, level *Level, pool []*Category) (*Category, error) {
	levelID := ""
	if level != nil {
		levelID = level.ID
	}
	categoryID, err := s.ChannelCategoryID(ctx, channel, game.ID, levelID)
	if err != nil {
		return nil, err
	}
	var category *Category
	if categoryID == "" {
		category = DefaultCategory(pool)
	} else {
		for _, c := range pool {
			if c.ID == categoryID {
				category = c
				break
			}
		}
	}
	if category == nil {
		return nil, &NotFoundError{
			Msg: fmt.Sprintf("Cannot find category for '%s'. Use !srccategory to change categories",
				game.InternationalName),
		}
	}
	return category, nil
}

// ValidVariables returns the game's variables that apply to a level and
// category selection, in declaration order.
func (g *Game) ValidVariables(levelID, categoryID string) []*Variable {
	var valid []*Variable
	for _, v := range g.Variables.Values() {
		if v.AppliesTo(levelID, categoryID) {
			valid = append(valid, v)
		}
	}
	return valid
}

// DefaultSubCategories returns the default value for every applicable
// sub-category variable. Sub-categories partition a leaderboard, so a query
// always carries a value for each; non-sub-category variables are only
// filtered on when a channel pins them.
func (g *Game) DefaultSubCategories(levelID, categoryID string) map[string]string {
	values := make(map[string]string)
	for _, v := range g.ValidVariables(levelID, categoryID) {
		if !v.SubCategory || v.Default == "" {
			continue
		}
		values[v.ID] = v.Default
	}
	return values
}

// ResolveBoard runs the full resolution chain for a channel query: game,
// level, category, variable defaults with channel overrides, and the region
// and platform filters, producing the board identity to load.
func (s *Service) ResolveBoard(ctx context.Context, channel, twitchGame, query string, now time.Time) (*Selection, error) {
	game, searched, err := s.ResolveGame(ctx, channel, twitchGame, query, now)
	if err != nil {
		return nil, err
	}
	level, pool, err := s.LevelSelection(ctx, channel, game)
	if err != nil {
		return nil, err
	}
	category, err := s.ResolveCategory(ctx, channel, game, level, pool)
	if err != nil {
		return nil, err
	}
	levelID := ""
	if level != nil {
		levelID = level.ID
	}
	variables := game.DefaultSubCategories(levelID, category.ID)
	overrides, err := s.ChannelVariables(ctx, channel, game.ID, levelID, category.ID)
	if err != nil {
		return nil, err
	}
	for id, value := range overrides {
		variables[id] = value
	}
	regionID, err := s.ChannelRegion(ctx, channel, game.ID)
	if err != nil {
		return nil, err
	}
	platformID, err := s.ChannelPlatform(ctx, channel, game.ID)
	if err != nil {
		return nil, err
	}
	return &Selection{
		Searched:   searched,
		Game:       game,
		Level:      level,
		Categories: pool,
		Category:   category,
		Variables:  variables,
		RegionID:   regionID,
		PlatformID: platformID,
		Board: BoardID{
			GameID:     game.ID,
			LevelID:    levelID,
			CategoryID: category.ID,
			RegionID:   regionID,
			PlatformID: platformID,
			Variables:  variables,
		},
	}, nil
}
