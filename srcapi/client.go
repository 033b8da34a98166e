// Package srcapi contains a minimal client for the speedrun.com v1 REST API:
// URL construction for every consumed endpoint, single-shot GETs with a fixed
// User-Agent, and envelope decoding. Retrying is not this package's job; the
// refresh scheduler re-checks staleness on a later tick instead.
package srcapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/onnwee/speedbot/telemetry"
)

// ErrUnavailable marks transport failures and non-2xx responses. Callers treat
// it as an empty result and leave the cache entry to be retried later.
var ErrUnavailable = errors.New("speedrun.com unavailable")

// ErrMalformed marks a response body that could not be parsed. Unlike
// ErrUnavailable it aborts the current operation.
var ErrMalformed = errors.New("malformed speedrun.com response")

// Client issues requests against the speedrun.com API.
type Client struct {
	BaseURL    string
	UserAgent  string
	HTTPClient *http.Client
}

// NewClient builds a client with the given base URL and request timeout.
func NewClient(baseURL, userAgent string, timeout time.Duration) *Client {
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		UserAgent:  userAgent,
		HTTPClient: &http.Client{Timeout: timeout},
	}
}

func (c *Client) http() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

// Get fetches one API path and returns the envelope's data field. A missing
// data field, an error status, or a transport failure all yield nil data with
// ErrUnavailable; a body that is not valid JSON yields ErrMalformed.
func (c *Client) Get(ctx context.Context, path string) (json.RawMessage, error) {
	full := c.BaseURL + path
	// Every outgoing URL is logged pre-fetch for audit.
	slog.Info("speedrun.com request", slog.String("url", full), slog.String("component", "srcapi"))
	telemetry.CountUpstreamRequest()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, full, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	req.Header.Set("User-Agent", c.UserAgent)
	resp, err := c.http().Do(req)
	if err != nil {
		telemetry.CountUpstreamFailure()
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		telemetry.CountUpstreamFailure()
		return nil, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		telemetry.CountUpstreamMalformed()
		slog.Error("unparseable speedrun.com response", slog.String("url", full), slog.Any("err", err), slog.String("component", "srcapi"))
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if len(envelope.Data) == 0 {
		return nil, fmt.Errorf("%w: empty envelope", ErrUnavailable)
	}
	return envelope.Data, nil
}

// PlatformsPath lists every platform in one page.
func PlatformsPath() string { return "/platforms?max=200" }

// RegionsPath lists every region.
func RegionsPath() string { return "/regions" }

// GamePath fetches a game by id or abbreviation.
func GamePath(idOrAbbrev string) string {
	return "/games/" + url.PathEscape(idOrAbbrev)
}

// GameSearchPath fetches the single best name match for a search string.
func GameSearchPath(name string) string {
	return "/games?name=" + url.QueryEscape(name) + "&max=1"
}

// GameDetailPath fetches a game with its categories, per-level categories and variables embedded.
func GameDetailPath(gameID string) string {
	return "/games/" + url.PathEscape(gameID) + "?embed=categories,levels.categories,variables"
}

// LeaderboardPath builds the leaderboard endpoint for a full-game or
// individual-level board, with players embedded and any region, platform and
// variable filters appended.
func LeaderboardPath(gameID, levelID, categoryID, regionID, platformID string, variables [][2]string) string {
	var b strings.Builder
	if levelID == "" {
		b.WriteString("/leaderboards/" + url.PathEscape(gameID) + "/category/" + url.PathEscape(categoryID))
	} else {
		b.WriteString("/leaderboards/" + url.PathEscape(gameID) + "/level/" + url.PathEscape(levelID) + "/" + url.PathEscape(categoryID))
	}
	b.WriteString("?embed=players")
	if regionID != "" {
		b.WriteString("&region=" + url.QueryEscape(regionID))
	}
	if platformID != "" {
		b.WriteString("&platform=" + url.QueryEscape(platformID))
	}
	for _, kv := range variables {
		b.WriteString("&var-" + url.QueryEscape(kv[0]) + "=" + url.QueryEscape(kv[1]))
	}
	return b.String()
}

// UserPath fetches a user by id.
func UserPath(id string) string { return "/users/" + url.PathEscape(id) }

// UserByTwitchPath searches users by Twitch account name.
func UserByTwitchPath(handle string) string { return "/users?twitch=" + url.QueryEscape(handle) }

// UserByNamePath searches users by site name.
func UserByNamePath(name string) string { return "/users?name=" + url.QueryEscape(name) }

// UserLookupPath searches users across every name field.
func UserLookupPath(q string) string { return "/users?lookup=" + url.QueryEscape(q) }
