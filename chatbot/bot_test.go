package chatbot

import (
	"context"
	"strings"
	"testing"
	"time"

	twitch "github.com/gempir/go-twitch-irc/v4"

	"github.com/onnwee/speedbot/config"
	"github.com/onnwee/speedbot/speedrun"
	"github.com/onnwee/speedbot/srcapi"
	"github.com/onnwee/speedbot/testutil"
)

type fakeSender struct {
	messages []string
}

func (f *fakeSender) Say(channel, text string) {
	f.messages = append(f.messages, channel+": "+text)
}

func newTestBot(t *testing.T) (*Bot, *fakeSender) {
	t.Helper()
	cfg := &config.Config{
		TwitchChannels: []string{"somechannel"},
		BotOwner:       "theowner",
		CacheTTL:       time.Hour,
		LeaderboardTTL: time.Hour,
	}
	svc := speedrun.NewService(speedrun.NewStore(), nil, nil, cfg)
	b := New(cfg, svc, nil)
	out := &fakeSender{}
	b.out = out
	return b, out
}

func privMsg(channel, user, text string, badges map[string]int) twitch.PrivateMessage {
	return twitch.PrivateMessage{
		Channel: channel,
		Message: text,
		User:    twitch.User{Name: user, Badges: badges},
	}
}

func TestCommandTableAliases(t *testing.T) {
	b, _ := newTestBot(t)
	pairs := map[string]string{
		"!wruser":        "!srcuser",
		"!pbgame":        "!srcgame",
		"!wrlevel":       "!srclevel",
		"!pbcategory":    "!srccategory",
		"!wrsubcategory": "!srcsubcategory",
		"!pbvariable":    "!srcvariable",
		"!wrregion":      "!srcregion",
		"!pbplatform":    "!srcplatform",
	}
	for alias, canonical := range pairs {
		a, ok := b.commands[alias]
		if !ok {
			t.Errorf("alias %s missing", alias)
			continue
		}
		c := b.commands[canonical]
		if a.permission != c.permission || a.feature != c.feature || a.cooldown != c.cooldown {
			t.Errorf("alias %s differs from %s", alias, canonical)
		}
	}
}

func TestCommandTablePermissions(t *testing.T) {
	b, _ := newTestBot(t)
	cases := map[string]string{
		"!wr":          "",
		"!wr-full":     permModerator,
		"!srcuser":     permBroadcaster,
		"!srcgame":     permModerator,
		"!leaderboard": "",
		"!srcreload":   permOwner,
	}
	for name, perm := range cases {
		cmd, ok := b.commands[name]
		if !ok {
			t.Errorf("command %s missing", name)
			continue
		}
		if cmd.permission != perm {
			t.Errorf("%s permission = %q, want %q", name, cmd.permission, perm)
		}
	}
	if b.commands["!srcreload"].feature != "" {
		t.Error("!srcreload must work without the feature gate")
	}
}

func TestHandleMessageDispatchesReload(t *testing.T) {
	b, out := newTestBot(t)
	b.svc.Store.StampPlatforms(time.Now())

	b.handleMessage(context.Background(), privMsg("somechannel", "theowner", "!srcreload", nil))
	if len(out.messages) != 2 {
		t.Fatalf("got %d messages: %v", len(out.messages), out.messages)
	}
	if out.messages[0] != "somechannel: Invalidating speedrun.com cache" || out.messages[1] != "somechannel: Done" {
		t.Errorf("unexpected messages: %v", out.messages)
	}
	if !b.svc.Store.NeedPlatforms() {
		t.Error("reload did not clear the cache")
	}
}

func TestHandleMessageOwnerOnly(t *testing.T) {
	b, out := newTestBot(t)
	b.handleMessage(context.Background(), privMsg("somechannel", "somechannel", "!srcreload",
		map[string]int{"broadcaster": 1}))
	if len(out.messages) != 0 {
		t.Errorf("broadcaster ran an owner command: %v", out.messages)
	}
}

func TestHandleMessageIgnoresChatter(t *testing.T) {
	b, out := newTestBot(t)
	for _, text := range []string{"hello there", "!unknowncommand", "  ", "!"} {
		b.handleMessage(context.Background(), privMsg("somechannel", "viewer", text, nil))
	}
	if len(out.messages) != 0 {
		t.Errorf("plain chat produced output: %v", out.messages)
	}
}

func TestHandleMessageBroadcasterImpliesModerator(t *testing.T) {
	b, out := newTestBot(t)
	b.commands["!echotest"] = command{
		permission: permModerator,
		handler: func(ctx context.Context, ev *event) error {
			b.say(ev.channel, "ran as "+ev.user)
			return nil
		},
	}
	b.handleMessage(context.Background(), privMsg("somechannel", "viewer", "!echotest", nil))
	if len(out.messages) != 0 {
		t.Fatalf("viewer ran a moderator command: %v", out.messages)
	}
	// The broadcaster carries no moderator badge but still passes.
	b.handleMessage(context.Background(), privMsg("somechannel", "somechannel", "!echotest", nil))
	if len(out.messages) != 1 || out.messages[0] != "somechannel: ran as somechannel" {
		t.Errorf("broadcaster dispatch: %v", out.messages)
	}
	b.handleMessage(context.Background(), privMsg("somechannel", "amod", "!echotest",
		map[string]int{"moderator": 1}))
	if len(out.messages) != 2 {
		t.Errorf("moderator dispatch: %v", out.messages)
	}
}

func TestHandleMessagePassesQuery(t *testing.T) {
	b, out := newTestBot(t)
	b.commands["!echotest"] = command{
		handler: func(ctx context.Context, ev *event) error {
			b.say(ev.channel, "query="+ev.query)
			return nil
		},
	}
	b.handleMessage(context.Background(), privMsg("somechannel", "viewer", "!echoTEST  Portal  2", nil))
	if len(out.messages) != 1 || out.messages[0] != "somechannel: query=Portal 2" {
		t.Errorf("query parsing: %v", out.messages)
	}
}

func TestAllowedCooldown(t *testing.T) {
	b, _ := newTestBot(t)
	cmd := command{cooldown: "wr"}
	now := time.Now()
	viewer := &event{channel: "somechannel", user: "viewer", now: now}
	if !b.allowed(context.Background(), cmd, "!wr", viewer) {
		t.Fatal("first invocation blocked")
	}
	soon := &event{channel: "somechannel", user: "viewer2", now: now.Add(10 * time.Second)}
	if b.allowed(context.Background(), cmd, "!wr", soon) {
		t.Error("cooldown not enforced")
	}
	// Same group cools down !wr-full too; other channels are independent.
	elsewhere := &event{channel: "otherchannel", user: "viewer", now: now.Add(10 * time.Second)}
	if !b.allowed(context.Background(), cmd, "!wr-full", elsewhere) {
		t.Error("cooldown leaked across channels")
	}
	later := &event{channel: "somechannel", user: "viewer", now: now.Add(cooldownDuration + time.Second)}
	if !b.allowed(context.Background(), cmd, "!wr", later) {
		t.Error("cooldown never expired")
	}
}

func TestAllowedCooldownBypass(t *testing.T) {
	b, _ := newTestBot(t)
	cmd := command{cooldown: "wr"}
	now := time.Now()
	if !b.allowed(context.Background(), cmd, "!wr",
		&event{channel: "somechannel", user: "viewer", now: now}) {
		t.Fatal("first invocation blocked")
	}
	caster := &event{channel: "somechannel", user: "somechannel",
		broadcaster: true, moderator: true, now: now.Add(time.Second)}
	if !b.allowed(context.Background(), cmd, "!wr", caster) {
		t.Error("broadcaster held to the cooldown")
	}
}

func TestSayTruncates(t *testing.T) {
	b, out := newTestBot(t)
	b.say("somechannel", strings.Repeat("x", 600))
	if len(out.messages) != 1 {
		t.Fatalf("got %d messages", len(out.messages))
	}
	if len(out.messages[0]) != len("somechannel: ")+500 {
		t.Errorf("message not truncated: %d chars", len(out.messages[0]))
	}
}

func TestRecordCommandUnconfiguredChannel(t *testing.T) {
	database := testutil.SetupTestDB(t)
	mock := testutil.NewMockSpeedrunServer(t)
	mock.Respond("/games", []map[string]any{})

	cfg := &config.Config{
		TwitchChannels: []string{"newchannel"},
		BotOwner:       "theowner",
		CacheTTL:       time.Hour,
		LeaderboardTTL: time.Hour,
		CallLimit:      90,
		CallWindow:     time.Minute,
	}
	api := srcapi.NewClient(mock.URL, "test-agent", time.Second)
	svc := speedrun.NewService(speedrun.NewStore(), api, database, cfg)
	b := New(cfg, svc, nil)
	out := &fakeSender{}
	b.out = out

	ctx := context.Background()
	if err := svc.EnableFeature(ctx, "newchannel", speedrun.FeatureSpeedrun); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := svc.DisableFeature(ctx, "newchannel", speedrun.FeatureSpeedrun); err != nil {
			t.Errorf("cleanup: %v", err)
		}
	})

	// A channel with nothing configured gets a plain chat answer, not an
	// unhandled failure.
	b.handleMessage(ctx, privMsg("newchannel", "someviewer", "!wr Celeste", nil))
	want := "newchannel: Cannot find game 'celeste' on speedrun.com"
	if len(out.messages) != 1 || out.messages[0] != want {
		t.Errorf("messages = %q, want [%q]", out.messages, want)
	}
}

func TestChannelStates(t *testing.T) {
	b, _ := newTestBot(t)
	states := b.ChannelStates()
	if len(states) != 1 || states[0].Name != "somechannel" {
		t.Fatalf("states = %+v", states)
	}
	b.mu.Lock()
	b.channels["somechannel"].Live = true
	b.channels["somechannel"].TwitchGame = "Portal"
	b.mu.Unlock()
	state := b.channelState("somechannel")
	if !state.Live || state.TwitchGame != "Portal" {
		t.Errorf("state = %+v", state)
	}
	if unknown := b.channelState("nobody"); unknown.Name != "nobody" || unknown.Live {
		t.Errorf("unknown channel state = %+v", unknown)
	}
}
