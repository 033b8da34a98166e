package speedrun

import (
	"context"
	"database/sql"
	"errors"
	"strings"
)

// FeatureSpeedrun gates the whole command surface per channel;
// FeatureSpeedrunLite switches !wr and !pb to their single-line forms.
const (
	FeatureSpeedrun     = "speedrun.com"
	FeatureSpeedrunLite = "speedrun.com-lite"
)

// Per-channel configuration. Every setting lives in Postgres keyed by
// broadcaster (and game where the setting is game-scoped); level and category
// in the variable key use the empty string for "unset" so one primary key
// shape covers every combination.

// ActiveChannels lists the broadcasters with the feature enabled. The refresh
// scheduler uses this to proactively load data for live channels.
func (s *Service) ActiveChannels(ctx context.Context) ([]string, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT broadcaster FROM chat_features WHERE feature=$1`, FeatureSpeedrun)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var channels []string
	for rows.Next() {
		var ch string
		if err := rows.Scan(&ch); err != nil {
			return nil, err
		}
		channels = append(channels, ch)
	}
	return channels, rows.Err()
}

// HasFeature reports whether a channel has a feature enabled.
func (s *Service) HasFeature(ctx context.Context, channel, feature string) (bool, error) {
	var one int
	err := s.DB.QueryRowContext(ctx,
		`SELECT 1 FROM chat_features WHERE broadcaster=$1 AND feature=$2`,
		channel, feature).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

// EnableFeature turns a feature on for a channel.
func (s *Service) EnableFeature(ctx context.Context, channel, feature string) error {
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO chat_features (broadcaster, feature) VALUES ($1, $2)
    ON CONFLICT DO NOTHING`, channel, feature)
	return err
}

// DisableFeature turns a feature off for a channel.
func (s *Service) DisableFeature(ctx context.Context, channel, feature string) error {
	_, err := s.DB.ExecContext(ctx,
		`DELETE FROM chat_features WHERE broadcaster=$1 AND feature=$2`,
		channel, feature)
	return err
}

func (s *Service) queryOne(ctx context.Context, query string, args ...any) (string, error) {
	var value string
	err := s.DB.QueryRowContext(ctx, query, args...).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return value, nil
}

// ChannelUser returns the channel's configured player identifier, defaulting
// to the broadcaster name itself.
func (s *Service) ChannelUser(ctx context.Context, channel string) (string, error) {
	user, err := s.queryOne(ctx,
		`SELECT userid FROM speedruncom_user WHERE broadcaster=$1`, channel)
	if err != nil {
		return "", err
	}
	if user == "" {
		return channel, nil
	}
	return user, nil
}

// ChannelGameID returns the channel's pinned game id, or empty when the
// channel follows its Twitch game.
func (s *Service) ChannelGameID(ctx context.Context, channel string) (string, error) {
	return s.queryOne(ctx,
		`SELECT game FROM speedruncom_game WHERE broadcaster=$1`, channel)
}

// ChannelLevelID returns the channel's default level for a game.
func (s *Service) ChannelLevelID(ctx context.Context, channel, gameID string) (string, error) {
	return s.queryOne(ctx,
		`SELECT level FROM speedruncom_level WHERE broadcaster=$1 AND game=$2`,
		channel, gameID)
}

// ChannelCategoryID returns the channel's default category for a game and
// level selection.
func (s *Service) ChannelCategoryID(ctx context.Context, channel, gameID, levelID string) (string, error) {
	return s.queryOne(ctx,
		`SELECT category FROM speedruncom_category
    WHERE broadcaster=$1 AND game=$2 AND level=$3`,
		channel, gameID, levelID)
}

// ChannelVariable returns the channel's pinned value for one variable.
func (s *Service) ChannelVariable(ctx context.Context, channel, gameID, levelID, categoryID, variableID string) (string, error) {
	return s.queryOne(ctx,
		`SELECT value FROM speedruncom_variable
    WHERE broadcaster=$1 AND game=$2 AND level=$3 AND category=$4
        AND variable=$5`,
		channel, gameID, levelID, categoryID, variableID)
}

// ChannelVariables returns the channel's pinned variable values for a game,
// level and category selection, keeping only variables that apply to that
// selection. Rows referencing variables the store no longer knows are
// skipped; a game resync may have removed them.
func (s *Service) ChannelVariables(ctx context.Context, channel, gameID, levelID, categoryID string) (map[string]string, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT variable, value FROM speedruncom_variable
    WHERE broadcaster=$1 AND game=$2 AND level=$3 AND category=$4`,
		channel, gameID, levelID, categoryID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	values := make(map[string]string)
	for rows.Next() {
		var variableID, value string
		if err := rows.Scan(&variableID, &value); err != nil {
			return nil, err
		}
		variable, ok := s.Store.VariableByID(variableID)
		if !ok {
			continue
		}
		if !variable.AppliesTo(levelID, categoryID) {
			continue
		}
		values[variableID] = value
	}
	return values, rows.Err()
}

// ChannelRegion returns the channel's region filter for a game.
func (s *Service) ChannelRegion(ctx context.Context, channel, gameID string) (string, error) {
	var region sql.NullString
	err := s.DB.QueryRowContext(ctx,
		`SELECT region FROM speedruncom_game_options WHERE broadcaster=$1 AND game=$2`,
		channel, gameID).Scan(&region)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return region.String, nil
}

// ChannelPlatform returns the channel's platform filter for a game.
func (s *Service) ChannelPlatform(ctx context.Context, channel, gameID string) (string, error) {
	var platform sql.NullString
	err := s.DB.QueryRowContext(ctx,
		`SELECT platform FROM speedruncom_game_options WHERE broadcaster=$1 AND game=$2`,
		channel, gameID).Scan(&platform)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return platform.String, nil
}

// TwitchGameID maps a Twitch directory name to a game id, case-insensitively.
func (s *Service) TwitchGameID(ctx context.Context, twitchGame string) (string, error) {
	return s.queryOne(ctx,
		`SELECT game FROM speedruncom_twitch_game WHERE LOWER(twitchgame)=$1`,
		strings.ToLower(twitchGame))
}

// SetTwitchGame records a Twitch directory to game id mapping.
func (s *Service) SetTwitchGame(ctx context.Context, twitchGame, gameID string) (bool, error) {
	res, err := s.DB.ExecContext(ctx,
		`INSERT INTO speedruncom_twitch_game (twitchgame, game) VALUES ($1, $2)
    ON CONFLICT (twitchgame)
    DO UPDATE SET game=$2`, twitchGame, gameID)
	return rowsChanged(res, err)
}

func rowsChanged(res sql.Result, err error) (bool, error) {
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n != 0, nil
}

// SetUser pins the channel's player identifier.
func (s *Service) SetUser(ctx context.Context, channel, userID string) (bool, error) {
	res, err := s.DB.ExecContext(ctx,
		`INSERT INTO speedruncom_user (broadcaster, userid) VALUES ($1, $2)
    ON CONFLICT (broadcaster)
    DO UPDATE SET userid=$2`, channel, userID)
	return rowsChanged(res, err)
}

// ClearUser reverts the channel to looking up its broadcaster name.
func (s *Service) ClearUser(ctx context.Context, channel string) (bool, error) {
	res, err := s.DB.ExecContext(ctx,
		`DELETE FROM speedruncom_user WHERE broadcaster=$1`, channel)
	return rowsChanged(res, err)
}

// SetGame pins the channel to one game id.
func (s *Service) SetGame(ctx context.Context, channel, gameID string) (bool, error) {
	res, err := s.DB.ExecContext(ctx,
		`INSERT INTO speedruncom_game (broadcaster, game) VALUES ($1, $2)
    ON CONFLICT (broadcaster)
    DO UPDATE SET game=$2`, channel, gameID)
	return rowsChanged(res, err)
}

// ClearGame reverts the channel to following its Twitch game.
func (s *Service) ClearGame(ctx context.Context, channel string) (bool, error) {
	res, err := s.DB.ExecContext(ctx,
		`DELETE FROM speedruncom_game WHERE broadcaster=$1`, channel)
	return rowsChanged(res, err)
}

// SetLevel sets the channel's default level for a game.
func (s *Service) SetLevel(ctx context.Context, channel, gameID, levelID string) (bool, error) {
	res, err := s.DB.ExecContext(ctx,
		`INSERT INTO speedruncom_level (broadcaster, game, level) VALUES ($1, $2, $3)
    ON CONFLICT (broadcaster, game)
    DO UPDATE SET level=$3`, channel, gameID, levelID)
	return rowsChanged(res, err)
}

// ClearLevel reverts the channel's level default for a game.
func (s *Service) ClearLevel(ctx context.Context, channel, gameID string) (bool, error) {
	res, err := s.DB.ExecContext(ctx,
		`DELETE FROM speedruncom_level WHERE broadcaster=$1 AND game=$2`,
		channel, gameID)
	return rowsChanged(res, err)
}

// SetCategory sets the channel's default category for a game and level.
func (s *Service) SetCategory(ctx context.Context, channel, gameID, levelID, categoryID string) (bool, error) {
	res, err := s.DB.ExecContext(ctx,
		`INSERT INTO speedruncom_category (broadcaster, game, level, category)
    VALUES ($1, $2, $3, $4)
    ON CONFLICT (broadcaster, game, level)
    DO UPDATE SET category=$4`, channel, gameID, levelID, categoryID)
	return rowsChanged(res, err)
}

// ClearCategory reverts the channel's category default for a game and level.
func (s *Service) ClearCategory(ctx context.Context, channel, gameID, levelID string) (bool, error) {
	res, err := s.DB.ExecContext(ctx,
		`DELETE FROM speedruncom_category
    WHERE broadcaster=$1 AND game=$2 AND level=$3`,
		channel, gameID, levelID)
	return rowsChanged(res, err)
}

// SetVariable pins one variable value for a game, level and category.
func (s *Service) SetVariable(ctx context.Context, channel, gameID, levelID, categoryID, variableID, value string) (bool, error) {
	res, err := s.DB.ExecContext(ctx,
		`INSERT INTO speedruncom_variable
    (broadcaster, game, level, category, variable, value)
    VALUES ($1, $2, $3, $4, $5, $6)
    ON CONFLICT (broadcaster, game, level, category, variable)
    DO UPDATE SET value=$6`, channel, gameID, levelID, categoryID, variableID, value)
	return rowsChanged(res, err)
}

// ClearVariable removes one pinned variable value.
func (s *Service) ClearVariable(ctx context.Context, channel, gameID, levelID, categoryID, variableID string) (bool, error) {
	res, err := s.DB.ExecContext(ctx,
		`DELETE FROM speedruncom_variable
    WHERE broadcaster=$1 AND game=$2 AND level=$3 AND category=$4
        AND variable=$5`, channel, gameID, levelID, categoryID, variableID)
	return rowsChanged(res, err)
}

func (s *Service) ensureGameOptions(ctx context.Context, channel, gameID string) error {
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO speedruncom_game_options (broadcaster, game) VALUES ($1, $2)
    ON CONFLICT DO NOTHING`, channel, gameID)
	return err
}

// SetRegion sets the channel's region filter for a game.
func (s *Service) SetRegion(ctx context.Context, channel, gameID, regionID string) (bool, error) {
	if err := s.ensureGameOptions(ctx, channel, gameID); err != nil {
		return false, err
	}
	res, err := s.DB.ExecContext(ctx,
		`UPDATE speedruncom_game_options SET region=$1
    WHERE broadcaster=$2 AND game=$3`, regionID, channel, gameID)
	return rowsChanged(res, err)
}

// ClearRegion removes the channel's region filter for a game.
func (s *Service) ClearRegion(ctx context.Context, channel, gameID string) (bool, error) {
	if err := s.ensureGameOptions(ctx, channel, gameID); err != nil {
		return false, err
	}
	res, err := s.DB.ExecContext(ctx,
		`UPDATE speedruncom_game_options SET region=NULL
    WHERE broadcaster=$1 AND game=$2`, channel, gameID)
	return rowsChanged(res, err)
}

// SetPlatform sets the channel's platform filter for a game.
func (s *Service) SetPlatform(ctx context.Context, channel, gameID, platformID string) (bool, error) {
	if err := s.ensureGameOptions(ctx, channel, gameID); err != nil {
		return false, err
	}
	res, err := s.DB.ExecContext(ctx,
		`UPDATE speedruncom_game_options SET platform=$1
    WHERE broadcaster=$2 AND game=$3`, platformID, channel, gameID)
	return rowsChanged(res, err)
}

// ClearPlatform removes the channel's platform filter for a game.
func (s *Service) ClearPlatform(ctx context.Context, channel, gameID string) (bool, error) {
	if err := s.ensureGameOptions(ctx, channel, gameID); err != nil {
		return false, err
	}
	res, err := s.DB.ExecContext(ctx,
		`UPDATE speedruncom_game_options SET platform=NULL
    WHERE broadcaster=$1 AND game=$2`, channel, gameID)
	return rowsChanged(res, err)
}
