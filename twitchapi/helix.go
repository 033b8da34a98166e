// Package twitchapi contains minimal helpers to interact with Twitch Helix
// APIs for stream status, using an app access token. The chat layer polls
// stream status to know each joined channel's live state and current game.
package twitchapi

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
)

const defaultHelixURL = "https://api.twitch.tv/helix"

// StreamInfo is one channel's live status.
type StreamInfo struct {
	Login    string
	GameName string
	Live     bool
}

// HelixClient provides the single Helix call the bot needs.
type HelixClient struct {
	AppTokenSource *TokenSource
	ClientID       string
	BaseURL        string
	HTTPClient     *http.Client
}

func (hc *HelixClient) http() *http.Client {
	if hc.HTTPClient != nil {
		return hc.HTTPClient
	}
	return http.DefaultClient
}

func (hc *HelixClient) baseURL() string {
	if hc.BaseURL != "" {
		return hc.BaseURL
	}
	return defaultHelixURL
}

// GetStreams reports live status for up to 100 logins. Channels absent from
// the response are offline and get a zero-valued entry.
func (hc *HelixClient) GetStreams(ctx context.Context, logins []string) (map[string]StreamInfo, error) {
	if len(logins) == 0 {
		return map[string]StreamInfo{}, nil
	}
	tok, err := hc.AppTokenSource.Get(ctx)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, hc.baseURL()+"/streams", nil)
	if err != nil {
		return nil, err
	}
	q := req.URL.Query()
	for _, login := range logins {
		q.Add("user_login", login)
	}
	req.URL.RawQuery = q.Encode()
	req.Header.Set("Client-Id", hc.ClientID)
	req.Header.Set("Authorization", "Bearer "+tok)
	resp, err := hc.http().Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("helix streams request failed: %s", resp.Status)
	}
	var body struct {
		Data []struct {
			UserLogin string `json:"user_login"`
			GameName  string `json:"game_name"`
			Type      string `json:"type"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, err
	}
	out := make(map[string]StreamInfo, len(logins))
	for _, login := range logins {
		out[login] = StreamInfo{Login: login}
	}
	for _, s := range body.Data {
		out[s.UserLogin] = StreamInfo{
			Login:    s.UserLogin,
			GameName: s.GameName,
			Live:     s.Type == "live",
		}
	}
	return out, nil
}
