// Package chatbot connects to Twitch chat, tracks each joined channel's live
// status and current game, and dispatches the speedrun.com command surface.
package chatbot

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	twitch "github.com/gempir/go-twitch-irc/v4"

	"github.com/onnwee/speedbot/config"
	"github.com/onnwee/speedbot/speedrun"
	"github.com/onnwee/speedbot/telemetry"
	"github.com/onnwee/speedbot/twitchapi"
)

// sender abstracts the IRC client's outbound side for tests.
type sender interface {
	Say(channel, text string)
}

// Bot is the chat frontend. One instance joins every configured channel.
type Bot struct {
	cfg    *config.Config
	svc    *speedrun.Service
	client *twitch.Client
	out    sender
	helix  *twitchapi.HelixClient // nil disables live-status polling

	mu        sync.Mutex
	channels  map[string]*speedrun.ChannelState
	cooldowns map[string]time.Time

	commands map[string]command
}

func New(cfg *config.Config, svc *speedrun.Service, helix *twitchapi.HelixClient) *Bot {
	b := &Bot{
		cfg:       cfg,
		svc:       svc,
		helix:     helix,
		channels:  make(map[string]*speedrun.ChannelState),
		cooldowns: make(map[string]time.Time),
	}
	for _, ch := range cfg.TwitchChannels {
		b.channels[ch] = &speedrun.ChannelState{Name: ch}
	}
	b.commands = b.commandTable()
	return b
}

// ChannelStates snapshots every joined channel for the refresh scheduler.
func (b *Bot) ChannelStates() []speedrun.ChannelState {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]speedrun.ChannelState, 0, len(b.channels))
	for _, ch := range b.channels {
		out = append(out, *ch)
	}
	return out
}

func (b *Bot) channelState(name string) speedrun.ChannelState {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch, ok := b.channels[name]; ok {
		return *ch
	}
	return speedrun.ChannelState{Name: name}
}

// Run connects to chat and blocks until the context is cancelled. Live-status
// polling runs alongside when Helix credentials are configured.
func (b *Bot) Run(ctx context.Context) error {
	client := twitch.NewClient(b.cfg.TwitchBotUsername, b.cfg.TwitchOAuthToken)
	b.client = client
	b.out = client

	client.OnPrivateMessage(func(msg twitch.PrivateMessage) {
		b.handleMessage(ctx, msg)
	})
	client.Join(b.cfg.TwitchChannels...)

	if b.helix != nil {
		go b.pollStreams(ctx)
	}

	done := make(chan struct{})
	go func() {
		<-ctx.Done()
		if err := client.Disconnect(); err != nil {
			slog.Warn("twitch chat disconnect", slog.Any("err", err))
		}
		close(done)
	}()

	err := client.Connect()
	<-done
	return err
}

// pollStreams keeps each channel's live flag and Twitch game current.
func (b *Bot) pollStreams(ctx context.Context) {
	ticker := time.NewTicker(b.cfg.StreamPollInterval)
	defer ticker.Stop()
	for {
		b.refreshStreams(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (b *Bot) refreshStreams(ctx context.Context) {
	streams, err := b.helix.GetStreams(ctx, b.cfg.TwitchChannels)
	if err != nil {
		slog.Warn("stream status poll failed", slog.Any("err", err),
			slog.String("component", "chatbot"))
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for login, info := range streams {
		ch, ok := b.channels[login]
		if !ok {
			continue
		}
		if ch.Live != info.Live {
			slog.Info("channel live status changed",
				slog.String("channel", login), slog.Bool("live", info.Live),
				slog.String("component", "chatbot"))
		}
		ch.Live = info.Live
		ch.TwitchGame = info.GameName
	}
}

// event is one parsed chat command invocation.
type event struct {
	channel     string
	user        string
	moderator   bool
	broadcaster bool
	owner       bool
	query       string
	now         time.Time
}

func (b *Bot) handleMessage(ctx context.Context, msg twitch.PrivateMessage) {
	text := strings.TrimSpace(msg.Message)
	if !strings.HasPrefix(text, "!") {
		return
	}
	fields := strings.Fields(text)
	name := strings.ToLower(fields[0])
	cmd, ok := b.commands[name]
	if !ok {
		return
	}

	user := strings.ToLower(msg.User.Name)
	channel := strings.ToLower(msg.Channel)
	ev := &event{
		channel:     channel,
		user:        user,
		moderator:   msg.User.Badges["moderator"] > 0,
		broadcaster: msg.User.Badges["broadcaster"] > 0 || user == channel,
		owner:       b.cfg.BotOwner != "" && user == b.cfg.BotOwner,
		query:       strings.Join(fields[1:], " "),
		now:         time.Now(),
	}
	if ev.broadcaster || ev.owner {
		ev.moderator = true
	}
	if !b.allowed(ctx, cmd, name, ev) {
		return
	}

	telemetry.CountCommand(name)
	hctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := cmd.handler(hctx, ev); err != nil {
		var nf *speedrun.NotFoundError
		if errors.As(err, &nf) {
			b.say(ev.channel, nf.Msg)
			return
		}
		slog.Error("command failed", slog.String("command", name),
			slog.String("channel", ev.channel), slog.Any("err", err),
			slog.String("component", "chatbot"))
	}
}

// allowed checks the feature gate, the permission level and the cooldown, in
// that order. Cooldowns are per channel and command group; broadcasters and
// the owner bypass them.
func (b *Bot) allowed(ctx context.Context, cmd command, name string, ev *event) bool {
	if cmd.feature != "" {
		on, err := b.svc.HasFeature(ctx, ev.channel, cmd.feature)
		if err != nil {
			slog.Error("feature check failed", slog.Any("err", err),
				slog.String("component", "chatbot"))
			return false
		}
		if !on {
			return false
		}
	}
	switch cmd.permission {
	case permModerator:
		if !ev.moderator {
			return false
		}
	case permBroadcaster:
		if !ev.broadcaster && !ev.owner {
			return false
		}
	case permOwner:
		if !ev.owner {
			return false
		}
	}
	if cmd.cooldown != "" && !ev.broadcaster && !ev.owner {
		b.mu.Lock()
		key := ev.channel + "\x00" + cmd.cooldown
		if last, ok := b.cooldowns[key]; ok && ev.now.Sub(last) < cooldownDuration {
			b.mu.Unlock()
			return false
		}
		b.cooldowns[key] = ev.now
		b.mu.Unlock()
	}
	return true
}

const cooldownDuration = 60 * time.Second

// say sends messages to a channel, truncating anything a Twitch message
// cannot carry.
func (b *Bot) say(channel string, messages ...string) {
	for _, msg := range messages {
		if len(msg) > 500 {
			msg = msg[:500]
		}
		b.out.Say(channel, msg)
	}
}
