package channels

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sipeed/gamemanager/pkg/gamemanager"
	"github.com/sipeed/gamemanager/pkg/logger"
	"github.com/sipeed/gamemanager/pkg/ratelimit"
	"github.com/sipeed/gamemanager/pkg/supervisor"
)

func TestApplyDiscordProxy_CustomProxy(t *testing.T) {
	session, err := discordgo.New("Bot test-token")
	require.NoError(t, err)

	require.NoError(t, applyDiscordProxy(session, "http://127.0.0.1:7890"))

	req, err := http.NewRequest("GET", "https://discord.com/api/v10/gateway", nil)
	require.NoError(t, err)

	restProxy := session.Client.Transport.(*http.Transport).Proxy
	restProxyURL, err := restProxy(req)
	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:7890", restProxyURL.String())

	wsProxyURL, err := session.Dialer.Proxy(req)
	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:7890", wsProxyURL.String())

	assert.NotSame(t, websocket.DefaultDialer, session.Dialer, "shared default dialer must stay untouched")
}

func TestApplyDiscordProxy_FromEnvironment(t *testing.T) {
	t.Setenv("HTTP_PROXY", "http://127.0.0.1:8888")
	t.Setenv("http_proxy", "http://127.0.0.1:8888")
	t.Setenv("HTTPS_PROXY", "http://127.0.0.1:8888")
	t.Setenv("https_proxy", "http://127.0.0.1:8888")
	t.Setenv("ALL_PROXY", "")
	t.Setenv("all_proxy", "")
	t.Setenv("NO_PROXY", "")
	t.Setenv("no_proxy", "")

	session, err := discordgo.New("Bot test-token")
	require.NoError(t, err)
	require.NoError(t, applyDiscordProxy(session, ""))

	req, err := http.NewRequest("GET", "https://discord.com/api/v10/gateway", nil)
	require.NoError(t, err)

	gotURL, err := session.Dialer.Proxy(req)
	require.NoError(t, err)
	wantURL, err := url.Parse("http://127.0.0.1:8888")
	require.NoError(t, err)
	assert.Equal(t, wantURL.String(), gotURL.String())
}

func TestApplyDiscordProxy_InvalidProxyURL(t *testing.T) {
	session, err := discordgo.New("Bot test-token")
	require.NoError(t, err)

	assert.Error(t, applyDiscordProxy(session, "://bad-proxy"))
}

func TestCallWithTimeout(t *testing.T) {
	assert.NoError(t, callWithTimeout(context.Background(), time.Second, func() error { return nil }))

	boom := errors.New("boom")
	assert.ErrorIs(t, callWithTimeout(context.Background(), time.Second, func() error { return boom }), boom)

	block := make(chan struct{})
	defer close(block)
	err := callWithTimeout(context.Background(), 10*time.Millisecond, func() error {
		<-block
		return nil
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

type fakeDiscord struct {
	mu         sync.Mutex
	sent       map[string][]string
	reactions  []string
	roles      []*discordgo.Role
	rolesErr   error
	roleCalls  int
	sendErr    error
	typingSeen int
}

func (f *fakeDiscord) ChannelMessageSend(channelID, content string, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	if f.sent == nil {
		f.sent = map[string][]string{}
	}
	f.sent[channelID] = append(f.sent[channelID], content)
	return &discordgo.Message{ChannelID: channelID, Content: content}, nil
}

func (f *fakeDiscord) MessageReactionAdd(_, _, emojiID string, _ ...discordgo.RequestOption) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reactions = append(f.reactions, emojiID)
	return nil
}

func (f *fakeDiscord) GuildRoles(string, ...discordgo.RequestOption) ([]*discordgo.Role, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.roleCalls++
	return f.roles, f.rolesErr
}

func (f *fakeDiscord) ChannelTyping(string, ...discordgo.RequestOption) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.typingSeen++
	return nil
}

func (f *fakeDiscord) messages(channelID string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent[channelID]...)
}

type fakeMonitor struct {
	mu        sync.Mutex
	restarted []string
}

func (f *fakeMonitor) ListProcesses(context.Context) ([]supervisor.ProcessInfo, error) {
	return []supervisor.ProcessInfo{{"name": "valheim-server", "statename": "RUNNING"}}, nil
}

func (f *fakeMonitor) Restart(_ context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.restarted = append(f.restarted, name)
	return nil
}

const (
	roleStatusID  = "111"
	roleRestartID = "222"
)

func newTestChannel(t *testing.T, api *fakeDiscord, limiter *ratelimit.Limiter, opts DiscordOptions) (*DiscordChannel, *fakeMonitor) {
	t.Helper()
	if api.roles == nil {
		api.roles = []*discordgo.Role{
			{ID: roleStatusID, Name: gamemanager.DefaultStatusRole},
			{ID: roleRestartID, Name: gamemanager.DefaultRestartRole},
		}
	}
	mon := &fakeMonitor{}
	router := gamemanager.NewRouter(mon, gamemanager.DefaultOptions(), logger.Nop())
	c := newDiscordChannel(api, opts, router, limiter, logger.Nop())
	c.running.Store(true)
	c.botID.Store("bot")
	return c, mon
}

func command(text string, roleIDs ...string) inbound {
	return inbound{
		MessageID:  "m1",
		ChannelID:  "c1",
		GuildID:    "g1",
		AuthorID:   "u1",
		AuthorName: "alice",
		Content:    text,
		RoleIDs:    roleIDs,
	}
}

func TestDiscordChannel_RunsStatusCommand(t *testing.T) {
	api := &fakeDiscord{}
	c, _ := newTestChannel(t, api, nil, DiscordOptions{})

	c.process(command("!gamemanager status", roleStatusID))
	c.inflight.Wait()

	msgs := api.messages("c1")
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0], "valheim-server")
	assert.Equal(t, 1, api.typingSeen)
}

func TestDiscordChannel_RestartWithRole(t *testing.T) {
	api := &fakeDiscord{}
	c, mon := newTestChannel(t, api, nil, DiscordOptions{})

	c.process(command("!gamemanager restart valheim-server", roleRestartID))
	c.inflight.Wait()

	assert.Equal(t, []string{"valheim-server"}, mon.restarted)
	assert.Len(t, api.messages("c1"), 2)
}

func TestDiscordChannel_IgnoresBotsAndChatter(t *testing.T) {
	api := &fakeDiscord{}
	c, _ := newTestChannel(t, api, nil, DiscordOptions{})

	fromBot := command("!gamemanager status", roleStatusID)
	fromBot.IsBot = true
	c.process(fromBot)

	fromSelf := command("!gamemanager status", roleStatusID)
	fromSelf.AuthorID = "bot"
	c.process(fromSelf)

	c.process(command("hello there", roleStatusID))
	c.inflight.Wait()

	assert.Empty(t, api.messages("c1"))
	assert.Zero(t, api.typingSeen)
}

func TestDiscordChannel_GuildAllowlist(t *testing.T) {
	api := &fakeDiscord{}
	c, _ := newTestChannel(t, api, nil, DiscordOptions{GuildIDs: []string{"other"}})

	c.process(command("!gamemanager status", roleStatusID))
	c.inflight.Wait()

	assert.Empty(t, api.messages("c1"))
}

func TestDiscordChannel_UnknownSubcommandReacts(t *testing.T) {
	api := &fakeDiscord{}
	c, _ := newTestChannel(t, api, nil, DiscordOptions{})

	c.process(command("!gamemanager oranges", roleStatusID))
	c.inflight.Wait()

	assert.Equal(t, []string{"❓", "❌", "🚫"}, api.reactions)
	assert.Equal(t, []string{"Nice try. This command isn't supported: oranges"}, api.messages("c1"))
}

func TestDiscordChannel_RateLimited(t *testing.T) {
	api := &fakeDiscord{}
	limiter := ratelimit.NewLimiter(ratelimit.Config{CommandsPerMinute: 1, Burst: 1})
	c, _ := newTestChannel(t, api, limiter, DiscordOptions{})

	c.process(command("!gamemanager status", roleStatusID))
	c.inflight.Wait()
	c.process(command("!gamemanager status", roleStatusID))
	c.inflight.Wait()

	msgs := api.messages("c1")
	require.Len(t, msgs, 2)
	assert.True(t, strings.HasPrefix(msgs[1], "Slow down, alice."), msgs[1])
}

func TestDiscordChannel_DirectMessageDenied(t *testing.T) {
	api := &fakeDiscord{}
	c, _ := newTestChannel(t, api, nil, DiscordOptions{})

	dm := command("!gamemanager status")
	dm.GuildID = ""
	c.process(dm)
	c.inflight.Wait()

	assert.Equal(t, []string{"This command cannot be used in private messages."}, api.messages("c1"))
	assert.Zero(t, api.roleCalls)
}

func TestDiscordChannel_RoleNamesPrefersState(t *testing.T) {
	api := &fakeDiscord{roles: []*discordgo.Role{{ID: "2", Name: "From API"}}}
	c := newDiscordChannel(api, DiscordOptions{}, gamemanager.NewRouter(&fakeMonitor{}, gamemanager.Options{}, nil), nil, nil)
	c.state = discordgo.NewState()
	require.NoError(t, c.state.GuildAdd(&discordgo.Guild{
		ID:    "g1",
		Roles: []*discordgo.Role{{ID: "1", Name: "From State"}},
	}))

	names, err := c.roleNames("g1", []string{"1"})
	require.NoError(t, err)
	assert.Equal(t, []string{"From State"}, names)
	assert.Zero(t, api.roleCalls)

	names, err = c.roleNames("g1", []string{"1", "2", "unknown"})
	require.NoError(t, err)
	assert.Equal(t, []string{"From State", "From API"}, names)
	assert.Equal(t, 1, api.roleCalls)

	// Roles fetched from the API are cached in state.
	names, err = c.roleNames("g1", []string{"2"})
	require.NoError(t, err)
	assert.Equal(t, []string{"From API"}, names)
	assert.Equal(t, 1, api.roleCalls)
}

func TestDiscordChannel_RoleLookupFailureDenies(t *testing.T) {
	api := &fakeDiscord{rolesErr: errors.New("discord 500"), roles: []*discordgo.Role{}}
	c, _ := newTestChannel(t, api, nil, DiscordOptions{})

	c.process(command("!gamemanager status", roleStatusID))
	c.inflight.Wait()

	msgs := api.messages("c1")
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0], "You are missing at least one of the required roles")
}

func TestDiscordChannel_SendTextRequiresRunning(t *testing.T) {
	api := &fakeDiscord{}
	c, _ := newTestChannel(t, api, nil, DiscordOptions{})

	assert.Error(t, c.SendText(context.Background(), "", "hi"))
	assert.NoError(t, c.SendText(context.Background(), "c1", "   "))
	assert.Empty(t, api.messages("c1"))

	c.running.Store(false)
	assert.Error(t, c.SendText(context.Background(), "c1", "hi"))
}

func TestDiscordChannel_SendTextSplitsLongMessages(t *testing.T) {
	api := &fakeDiscord{}
	c, _ := newTestChannel(t, api, nil, DiscordOptions{})

	long := strings.Repeat(strings.Repeat("b", 99)+"\n", 40)
	require.NoError(t, c.SendText(context.Background(), "c1", long))
	assert.Len(t, api.messages("c1"), 3)
}

func TestDiscordChannel_SendErrorSurfaces(t *testing.T) {
	api := &fakeDiscord{sendErr: errors.New("403 missing access")}
	c, _ := newTestChannel(t, api, nil, DiscordOptions{})

	err := c.SendText(context.Background(), "c1", "hi")
	assert.ErrorContains(t, err, "missing access")
}

func TestDiscordChannel_HandleMessageConvertsEvent(t *testing.T) {
	api := &fakeDiscord{}
	c, _ := newTestChannel(t, api, nil, DiscordOptions{})

	c.handleMessage(nil, &discordgo.MessageCreate{Message: &discordgo.Message{
		ID:        "m9",
		ChannelID: "c9",
		GuildID:   "g1",
		Content:   "!gamemanager view",
		Author:    &discordgo.User{ID: "u9", Username: "bob", Discriminator: "0"},
		Member:    &discordgo.Member{Roles: []string{roleStatusID}},
	}})
	c.handleMessage(nil, &discordgo.MessageCreate{})
	c.inflight.Wait()

	msgs := api.messages("c9")
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0], "valheim-server")
}

type fakeGateway struct {
	openErr  error
	userErr  error
	closed   int
	handlers int
	removed  int
}

func (g *fakeGateway) Open() error { return g.openErr }

func (g *fakeGateway) Close() error {
	g.closed++
	return nil
}

func (g *fakeGateway) User(string, ...discordgo.RequestOption) (*discordgo.User, error) {
	if g.userErr != nil {
		return nil, g.userErr
	}
	return &discordgo.User{ID: "bot", Username: "gamemanager"}, nil
}

func (g *fakeGateway) AddHandler(interface{}) func() {
	g.handlers++
	return func() { g.removed++ }
}

func TestDiscordChannel_StartClosesSessionWhenIdentityLookupFails(t *testing.T) {
	api := &fakeDiscord{}
	gw := &fakeGateway{userErr: errors.New("401 unauthorized")}
	c, _ := newTestChannel(t, api, nil, DiscordOptions{})
	c.running.Store(false)
	c.session = gw

	err := c.Start(context.Background())
	require.ErrorContains(t, err, "failed to get bot user")
	assert.False(t, c.IsRunning())
	assert.Equal(t, 1, gw.closed)
	assert.Equal(t, 1, gw.removed)
	assert.ErrorIs(t, c.getContext().Err(), context.Canceled)
}

func TestDiscordChannel_StartOpenFailure(t *testing.T) {
	gw := &fakeGateway{openErr: errors.New("gateway down")}
	c, _ := newTestChannel(t, &fakeDiscord{}, nil, DiscordOptions{})
	c.running.Store(false)
	c.session = gw

	require.ErrorContains(t, c.Start(context.Background()), "gateway down")
	assert.False(t, c.IsRunning())
	assert.Equal(t, 1, gw.removed)
}

func TestDiscordChannel_StartStop(t *testing.T) {
	gw := &fakeGateway{}
	c, _ := newTestChannel(t, &fakeDiscord{}, ratelimit.NewLimiter(ratelimit.DefaultConfig()), DiscordOptions{})
	c.running.Store(false)
	c.session = gw

	require.NoError(t, c.Start(context.Background()))
	assert.True(t, c.IsRunning())
	assert.Equal(t, "bot", c.selfID())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, c.Stop(ctx))
	assert.False(t, c.IsRunning())
	assert.Equal(t, 1, gw.closed)
	assert.Equal(t, 1, gw.removed)
}

func TestDiscordChannel_IgnoresCommandsAfterStop(t *testing.T) {
	api := &fakeDiscord{}
	c, mon := newTestChannel(t, api, nil, DiscordOptions{})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, c.Stop(ctx))

	c.process(command("!gamemanager restart valheim-server", roleRestartID))
	c.inflight.Wait()

	assert.Empty(t, api.messages("c1"))
	assert.Empty(t, mon.restarted)
}

func TestDiscordChannel_StopWaitsForInflightCommands(t *testing.T) {
	api := &fakeDiscord{}
	c, _ := newTestChannel(t, api, nil, DiscordOptions{})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.process(command("!gamemanager status", roleStatusID))
		}()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	wg.Wait()
	require.NoError(t, c.Stop(ctx))

	// Every command accepted before Stop got to reply.
	msgs := api.messages("c1")
	require.Len(t, msgs, 20)
	for _, msg := range msgs {
		assert.Contains(t, msg, "valheim-server")
	}
}
