package chatbot

import (
	"context"
	"fmt"
	"strings"

	"github.com/onnwee/speedbot/speedrun"
)

// Permission levels. Broadcaster implies moderator; the owner passes every
// check.
const (
	permModerator   = "moderator"
	permBroadcaster = "broadcaster"
	permOwner       = "owner"
)

type command struct {
	handler    func(ctx context.Context, ev *event) error
	permission string
	feature    string
	cooldown   string
	help       string
}

// commandTable builds the dispatch registry. The src-prefixed spellings are
// canonical; the wr/pb spellings are aliases for the same handlers.
func (b *Bot) commandTable() map[string]command {
	table := map[string]command{
		"!wr": {
			handler: b.cmdWR, feature: speedrun.FeatureSpeedrun, cooldown: "wr",
			help: "world record for the channel's current game",
		},
		"!wr-full": {
			handler: b.cmdWRFull, permission: permModerator,
			feature: speedrun.FeatureSpeedrun, cooldown: "wr",
			help: "world record, full format regardless of the lite feature",
		},
		"!pb": {
			handler: b.cmdPB, feature: speedrun.FeatureSpeedrun, cooldown: "pb",
			help: "the channel's personal best for the current game",
		},
		"!pb-full": {
			handler: b.cmdPBFull, permission: permModerator,
			feature: speedrun.FeatureSpeedrun, cooldown: "pb",
			help: "personal best, full format regardless of the lite feature",
		},
		"!srcuser": {
			handler: b.cmdUser, permission: permBroadcaster,
			feature: speedrun.FeatureSpeedrun,
			help:    "set or clear the channel's speedrun.com user",
		},
		"!srcgame": {
			handler: b.cmdGame, permission: permModerator,
			feature: speedrun.FeatureSpeedrun,
			help:    "pin the channel to a game, or revert to the Twitch game",
		},
		"!srclevel": {
			handler: b.cmdLevel, permission: permModerator,
			feature: speedrun.FeatureSpeedrun,
			help:    "set an individual level, or revert to full-game",
		},
		"!srccategory": {
			handler: b.cmdCategory, permission: permModerator,
			feature: speedrun.FeatureSpeedrun,
			help:    "set the category, or revert to the default",
		},
		"!srcsubcategory": {
			handler: b.cmdSubCategory, permission: permModerator,
			feature: speedrun.FeatureSpeedrun,
			help:    "pin a sub-category value, or revert to defaults",
		},
		"!srcvariable": {
			handler: b.cmdVariable, permission: permModerator,
			feature: speedrun.FeatureSpeedrun,
			help:    "pin a non-sub-category variable value, or clear all",
		},
		"!srcregion": {
			handler: b.cmdRegion, permission: permModerator,
			feature: speedrun.FeatureSpeedrun,
			help:    "set the region filter, or revert to any region",
		},
		"!srcplatform": {
			handler: b.cmdPlatform, permission: permModerator,
			feature: speedrun.FeatureSpeedrun,
			help:    "set the platform filter, or revert to any platform",
		},
		"!leaderboard": {
			handler: b.cmdLeaderboard, feature: speedrun.FeatureSpeedrun,
			cooldown: "leaderboard",
			help:     "link to the resolved leaderboard",
		},
		"!srcreload": {
			handler: b.cmdReload, permission: permOwner,
			help: "drop the whole speedrun.com cache",
		},
	}
	aliases := map[string]string{
		"!wruser":        "!srcuser",
		"!pbuser":        "!srcuser",
		"!wrgame":        "!srcgame",
		"!pbgame":        "!srcgame",
		"!wrlevel":       "!srclevel",
		"!pblevel":       "!srclevel",
		"!wrcategory":    "!srccategory",
		"!pbcategory":    "!srccategory",
		"!wrsubcategory": "!srcsubcategory",
		"!pbsubcategory": "!srcsubcategory",
		"!wrvariable":    "!srcvariable",
		"!pbvariable":    "!srcvariable",
		"!wrregion":      "!srcregion",
		"!pbregion":      "!srcregion",
		"!wrplatform":    "!srcplatform",
		"!pbplatform":    "!srcplatform",
	}
	for alias, canonical := range aliases {
		table[alias] = table[canonical]
	}
	return table
}

func (b *Bot) liteFormat(ctx context.Context, channel string) bool {
	lite, err := b.svc.HasFeature(ctx, channel, speedrun.FeatureSpeedrunLite)
	return err == nil && lite
}

func (b *Bot) cmdWR(ctx context.Context, ev *event) error {
	return b.worldRecord(ctx, ev, b.liteFormat(ctx, ev.channel))
}

func (b *Bot) cmdWRFull(ctx context.Context, ev *event) error {
	return b.worldRecord(ctx, ev, false)
}

func (b *Bot) worldRecord(ctx context.Context, ev *event, lite bool) error {
	sel, err := b.resolveBoard(ctx, ev)
	if err != nil {
		return err
	}
	if err := b.svc.LoadLeaderboard(ctx, sel.Board, ev.now); err != nil {
		return err
	}
	runIDs := b.svc.Store.WorldRecordRunIDs(sel.Board)
	if lite {
		b.say(ev.channel, b.svc.Store.WorldRecordMessagesLite(sel.Board, runIDs)...)
	} else {
		b.say(ev.channel, b.svc.Store.WorldRecordMessages(sel.Board, runIDs)...)
	}
	return nil
}

func (b *Bot) cmdPB(ctx context.Context, ev *event) error {
	return b.personalBest(ctx, ev, b.liteFormat(ctx, ev.channel))
}

func (b *Bot) cmdPBFull(ctx context.Context, ev *event) error {
	return b.personalBest(ctx, ev, false)
}

func (b *Bot) personalBest(ctx context.Context, ev *event, lite bool) error {
	userID, err := b.svc.ChannelUser(ctx, ev.channel)
	if err != nil {
		return err
	}
	userID = strings.ToLower(userID)
	if err := b.svc.LoadUser(ctx, userID, ev.now); err != nil {
		return err
	}
	playerID, _ := b.svc.Store.PlayerIDByLookup(userID)
	if _, ok := b.svc.Store.PlayerByID(playerID); !ok {
		b.say(ev.channel, fmt.Sprintf("Cannot find %s on speedrun.com", ev.channel))
		return nil
	}
	sel, err := b.resolveBoard(ctx, ev)
	if err != nil {
		return err
	}
	if err := b.svc.LoadLeaderboard(ctx, sel.Board, ev.now); err != nil {
		return err
	}
	runID, _ := b.svc.Store.PersonalBestRunID(sel.Board, playerID)
	if lite {
		b.say(ev.channel, b.svc.Store.PersonalBestMessagesLite(sel.Board, runID, ev.channel)...)
	} else {
		b.say(ev.channel, b.svc.Store.PersonalBestMessages(sel.Board, runID, ev.channel)...)
	}
	return nil
}

func (b *Bot) resolveBoard(ctx context.Context, ev *event) (*speedrun.Selection, error) {
	state := b.channelState(ev.channel)
	return b.svc.ResolveBoard(ctx, ev.channel, state.TwitchGame, ev.query, ev.now)
}

// resolveChannelGame resolves the channel's game with no explicit query, for
// the configuration commands.
func (b *Bot) resolveChannelGame(ctx context.Context, ev *event) (*speedrun.Game, error) {
	state := b.channelState(ev.channel)
	game, _, err := b.svc.ResolveGame(ctx, ev.channel, state.TwitchGame, "", ev.now)
	return game, err
}

func (b *Bot) cmdUser(ctx context.Context, ev *event) error {
	if ev.query == "" {
		if _, err := b.svc.ClearUser(ctx, ev.channel); err != nil {
			return err
		}
		b.say(ev.channel, fmt.Sprintf(
			"Set the speedrun.com user for %s to default", ev.channel))
		return nil
	}
	identifier := strings.ToLower(ev.query)
	if err := b.svc.LoadUser(ctx, identifier, ev.now); err != nil {
		return err
	}
	if id, _ := b.svc.Store.PlayerIDByLookup(identifier); id == "" {
		b.say(ev.channel, fmt.Sprintf(
			"Cannot find '%s' on speedrun.com", ev.query))
		return nil
	}
	if _, err := b.svc.SetUser(ctx, ev.channel, identifier); err != nil {
		return err
	}
	b.say(ev.channel, fmt.Sprintf(
		"Set the speedrun.com user for %s to %s", ev.channel, ev.query))
	return nil
}

func (b *Bot) cmdGame(ctx context.Context, ev *event) error {
	if ev.query == "" {
		if _, err := b.svc.ClearGame(ctx, ev.channel); err != nil {
			return err
		}
		state := b.channelState(ev.channel)
		b.say(ev.channel, fmt.Sprintf(
			"Set the game for !wr and !pb to %s Twitch game (Currently: %s)",
			ev.channel, state.TwitchGame))
		return nil
	}
	search := strings.ToLower(ev.query)
	state := b.channelState(ev.channel)
	if _, err := b.svc.LoadGame(ctx, state.TwitchGame, "", search, ev.now); err != nil {
		return err
	}
	game, ok := b.svc.Store.ResolveSearchedGame(search)
	if !ok {
		b.say(ev.channel, fmt.Sprintf(
			"Cannot find '%s' on speedrun.com", ev.query))
		return nil
	}
	if _, err := b.svc.SetGame(ctx, ev.channel, game.ID); err != nil {
		return err
	}
	if exact, _ := b.svc.Store.GameSearchResult(search); exact != "" {
		b.say(ev.channel, fmt.Sprintf(
			"Set the game for !wr and !pb to %s", game.InternationalName))
	} else {
		b.say(ev.channel, fmt.Sprintf(
			"Could not find '%s' on speedrun.com. Set the game using best guess for !wr and !pb to %s",
			ev.query, game.InternationalName))
	}
	return nil
}

func (b *Bot) cmdLevel(ctx context.Context, ev *event) error {
	game, err := b.resolveChannelGame(ctx, ev)
	if err != nil {
		return err
	}
	if ev.query == "" {
		if _, err := b.svc.ClearLevel(ctx, ev.channel, game.ID); err != nil {
			return err
		}
		b.say(ev.channel, fmt.Sprintf(
			"Set to full-game for !wr and !pb in the game '%s'",
			game.InternationalName))
		return nil
	}
	if game.Levels.Len() == 0 {
		b.say(ev.channel, fmt.Sprintf(
			"'%s' does not have individual levels on speedrun.com",
			game.InternationalName))
		return nil
	}
	search := strings.ToLower(ev.query)
	var level *speedrun.Level
	for _, l := range game.Levels.Values() {
		if strings.ToLower(l.Name) == search || l.ID == search {
			level = l
			break
		}
	}
	if level == nil {
		b.say(ev.channel, fmt.Sprintf(
			"Cannot find individual level '%s - %s' on speedrun.com",
			game.InternationalName, ev.query))
		return nil
	}
	if _, err := b.svc.SetLevel(ctx, ev.channel, game.ID, level.ID); err != nil {
		return err
	}
	b.say(ev.channel, fmt.Sprintf(
		"Set the level to '%s' for !wr and !pb for the game '%s'",
		level.Name, game.InternationalName))
	return nil
}

// levelContext resolves the channel's game and level selection, returning the
// category pool and a " - Level" suffix for messages.
func (b *Bot) levelContext(ctx context.Context, ev *event) (*speedrun.Game, *speedrun.Level, []*speedrun.Category, string, error) {
	game, err := b.resolveChannelGame(ctx, ev)
	if err != nil {
		return nil, nil, nil, "", err
	}
	level, pool, err := b.svc.LevelSelection(ctx, ev.channel, game)
	if err != nil {
		return nil, nil, nil, "", err
	}
	levelText := ""
	if level != nil {
		levelText = " - " + level.Name
	}
	return game, level, pool, levelText, nil
}

func (b *Bot) cmdCategory(ctx context.Context, ev *event) error {
	game, level, pool, levelText, err := b.levelContext(ctx, ev)
	if err != nil {
		return err
	}
	levelID := ""
	if level != nil {
		levelID = level.ID
	}
	if ev.query == "" {
		if _, err := b.svc.ClearCategory(ctx, ev.channel, game.ID, levelID); err != nil {
			return err
		}
		name := "Unknown"
		if category := speedrun.DefaultCategory(pool); category != nil {
			name = category.Name
		}
		b.say(ev.channel, fmt.Sprintf(
			"Set category to default '%s' for !wr and !pb in '%s%s'",
			name, game.InternationalName, levelText))
		return nil
	}
	search := strings.ToLower(ev.query)
	var category *speedrun.Category
	for _, c := range pool {
		if strings.ToLower(c.Name) == search || c.ID == search {
			category = c
			break
		}
	}
	if category == nil {
		b.say(ev.channel, fmt.Sprintf(
			"Cannot find category '%s%s - %s' on speedrun.com",
			game.InternationalName, levelText, ev.query))
		return nil
	}
	if _, err := b.svc.SetCategory(ctx, ev.channel, game.ID, levelID, category.ID); err != nil {
		return err
	}
	b.say(ev.channel, fmt.Sprintf(
		"Set the category to '%s' for !wr and !pb for the game '%s%s'",
		category.Name, game.InternationalName, levelText))
	return nil
}

// categoryContext extends levelContext with the resolved category.
func (b *Bot) categoryContext(ctx context.Context, ev *event) (*speedrun.Game, *speedrun.Level, *speedrun.Category, string, error) {
	game, level, pool, levelText, err := b.levelContext(ctx, ev)
	if err != nil {
		return nil, nil, nil, "", err
	}
	category, err := b.svc.ResolveCategory(ctx, ev.channel, game, level, pool)
	if err != nil {
		return nil, nil, nil, "", err
	}
	return game, level, category, levelText, nil
}

func (b *Bot) cmdSubCategory(ctx context.Context, ev *event) error {
	game, level, category, levelText, err := b.categoryContext(ctx, ev)
	if err != nil {
		return err
	}
	levelID := ""
	if level != nil {
		levelID = level.ID
	}
	defaults := game.DefaultSubCategories(levelID, category.ID)
	title := fmt.Sprintf("%s%s - %s", game.InternationalName, levelText, category.Name)

	if ev.query == "" {
		var names []string
		for variableID := range defaults {
			if _, err := b.svc.ClearVariable(ctx, ev.channel, game.ID, levelID, category.ID, variableID); err != nil {
				return err
			}
			if variable, ok := b.svc.Store.VariableByID(variableID); ok {
				names = append(names, variable.Values[variable.Default])
			}
		}
		b.say(ev.channel, fmt.Sprintf(
			"Set subcategories to default '%s' for !wr and !pb in '%s'",
			strings.Join(names, ", "), title))
		return nil
	}

	search := strings.ToLower(ev.query)
	for variableID := range defaults {
		variable, ok := b.svc.Store.VariableByID(variableID)
		if !ok {
			continue
		}
		for valueID, label := range variable.Values {
			if strings.ToLower(label) == search || valueID == search {
				if _, err := b.svc.SetVariable(ctx, ev.channel, game.ID, levelID, category.ID, variableID, valueID); err != nil {
					return err
				}
				b.say(ev.channel, fmt.Sprintf(
					"Set the variable '%s' to '%s' for !wr and !pb for '%s'",
					variable.Name, ev.query, title))
				return nil
			}
		}
	}
	b.say(ev.channel, fmt.Sprintf(
		"Cannot find variable value matching '%s' for '%s' on speedrun.com",
		ev.query, title))
	return nil
}

func (b *Bot) cmdVariable(ctx context.Context, ev *event) error {
	game, level, category, levelText, err := b.categoryContext(ctx, ev)
	if err != nil {
		return err
	}
	levelID := ""
	if level != nil {
		levelID = level.ID
	}
	var variables []*speedrun.Variable
	for _, v := range game.ValidVariables(levelID, category.ID) {
		if !v.SubCategory {
			variables = append(variables, v)
		}
	}
	title := fmt.Sprintf("%s%s - %s", game.InternationalName, levelText, category.Name)

	if ev.query == "" {
		for _, variable := range variables {
			if _, err := b.svc.ClearVariable(ctx, ev.channel, game.ID, levelID, category.ID, variable.ID); err != nil {
				return err
			}
		}
		b.say(ev.channel, fmt.Sprintf(
			"Reverted all variables to any value for !wr and !pb in '%s'", title))
		return nil
	}

	search := strings.ToLower(ev.query)
	for _, variable := range variables {
		for valueID, label := range variable.Values {
			if strings.ToLower(label) == search || valueID == search {
				if _, err := b.svc.SetVariable(ctx, ev.channel, game.ID, levelID, category.ID, variable.ID, valueID); err != nil {
					return err
				}
				b.say(ev.channel, fmt.Sprintf(
					"Set the variable '%s' to '%s' for !wr and !pb for '%s'",
					variable.Name, ev.query, title))
				return nil
			}
		}
	}
	b.say(ev.channel, fmt.Sprintf(
		"Cannot find variable value matching '%s' for '%s' on speedrun.com",
		ev.query, title))
	return nil
}

func (b *Bot) cmdRegion(ctx context.Context, ev *event) error {
	game, err := b.resolveChannelGame(ctx, ev)
	if err != nil {
		return err
	}
	if ev.query == "" {
		if _, err := b.svc.ClearRegion(ctx, ev.channel, game.ID); err != nil {
			return err
		}
		b.say(ev.channel, fmt.Sprintf(
			"Set to any region for !wr and !pb in the game '%s'",
			game.InternationalName))
		return nil
	}
	search := strings.ToLower(ev.query)
	regionID := ""
	for _, id := range game.Regions {
		region, ok := b.svc.Store.RegionByID(id)
		if ok && (strings.Contains(strings.ToLower(region.Name), search) || id == search) {
			regionID = id
			break
		}
	}
	if regionID == "" {
		b.say(ev.channel, fmt.Sprintf(
			"Cannot find individual region '%s' for '%s' on speedrun.com",
			ev.query, game.InternationalName))
		return nil
	}
	if _, err := b.svc.SetRegion(ctx, ev.channel, game.ID, regionID); err != nil {
		return err
	}
	region, _ := b.svc.Store.RegionByID(regionID)
	b.say(ev.channel, fmt.Sprintf(
		"Set the region to '%s' for !wr and !pb for the game '%s'",
		region.Name, game.InternationalName))
	return nil
}

func (b *Bot) cmdPlatform(ctx context.Context, ev *event) error {
	game, err := b.resolveChannelGame(ctx, ev)
	if err != nil {
		return err
	}
	if ev.query == "" {
		if _, err := b.svc.ClearPlatform(ctx, ev.channel, game.ID); err != nil {
			return err
		}
		b.say(ev.channel, fmt.Sprintf(
			"Set to any platform for !wr and !pb in the game '%s'",
			game.InternationalName))
		return nil
	}
	search := strings.ToLower(ev.query)
	platformID := ""
	for _, id := range game.Platforms {
		platform, ok := b.svc.Store.PlatformByID(id)
		if ok && (strings.Contains(strings.ToLower(platform.Name), search) || id == search) {
			platformID = id
			break
		}
	}
	if platformID == "" {
		b.say(ev.channel, fmt.Sprintf(
			"Cannot find individual platform '%s' for '%s' on speedrun.com",
			ev.query, game.InternationalName))
		return nil
	}
	if _, err := b.svc.SetPlatform(ctx, ev.channel, game.ID, platformID); err != nil {
		return err
	}
	platform, _ := b.svc.Store.PlatformByID(platformID)
	b.say(ev.channel, fmt.Sprintf(
		"Set the platform to '%s' for !wr and !pb for the game '%s'",
		platform.Name, game.InternationalName))
	return nil
}

func (b *Bot) cmdLeaderboard(ctx context.Context, ev *event) error {
	state := b.channelState(ev.channel)
	game, _, err := b.svc.ResolveGame(ctx, ev.channel, state.TwitchGame, ev.query, ev.now)
	if err != nil {
		return err
	}
	level, pool, err := b.svc.LevelSelection(ctx, ev.channel, game)
	if err != nil {
		return err
	}
	levelText := ""
	if level != nil {
		levelText = " - " + level.Name
	}
	levelID := ""
	if level != nil {
		levelID = level.ID
	}
	categoryID, err := b.svc.ChannelCategoryID(ctx, ev.channel, game.ID, levelID)
	if err != nil {
		return err
	}
	var category *speedrun.Category
	for _, c := range pool {
		if c.ID == categoryID {
			category = c
			break
		}
	}
	if category == nil {
		if level == nil {
			b.say(ev.channel, fmt.Sprintf("%s Leaderboard: %s",
				game.InternationalName, game.Weblink))
		} else {
			b.say(ev.channel, fmt.Sprintf("%s - %s Leaderboard: %s",
				game.InternationalName, level.Name, level.Weblink))
		}
		return nil
	}
	b.say(ev.channel, fmt.Sprintf("%s%s - %s Leaderboard: %s",
		game.InternationalName, levelText, category.Name, category.Weblink))
	return nil
}

func (b *Bot) cmdReload(ctx context.Context, ev *event) error {
	b.say(ev.channel, "Invalidating speedrun.com cache")
	b.svc.Store.Reload()
	b.say(ev.channel, "Done")
	return nil
}
