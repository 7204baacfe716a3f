package channels

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/gorilla/websocket"

	"github.com/sipeed/gamemanager/pkg/gamemanager"
	"github.com/sipeed/gamemanager/pkg/logger"
	"github.com/sipeed/gamemanager/pkg/ratelimit"
)

const (
	sendTimeout           = 10 * time.Second
	defaultCommandTimeout = 2 * time.Minute
	limiterCleanupEvery   = 10 * time.Minute
	limiterIdleAfter      = time.Hour

	// Discord allows 2000 characters per message.
	messageChunkLimit = 1500
)

// DiscordAPI is the subset of *discordgo.Session the channel calls while
// handling commands.
type DiscordAPI interface {
	ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	MessageReactionAdd(channelID, messageID, emojiID string, options ...discordgo.RequestOption) error
	GuildRoles(guildID string, options ...discordgo.RequestOption) ([]*discordgo.Role, error)
	ChannelTyping(channelID string, options ...discordgo.RequestOption) error
}

// gateway is the connection side of *discordgo.Session.
type gateway interface {
	Open() error
	Close() error
	User(userID string, options ...discordgo.RequestOption) (*discordgo.User, error)
	AddHandler(handler interface{}) func()
}

// CommandRouter is satisfied by *gamemanager.Router.
type CommandRouter interface {
	Matches(text string) bool
	Handle(ctx context.Context, req gamemanager.Request) gamemanager.Result
}

type DiscordOptions struct {
	Token string
	// Proxy is an optional HTTP proxy URL. Empty uses the environment.
	Proxy string
	// GuildIDs restricts the bot to the listed guilds. Empty means any guild.
	GuildIDs []string
	// CommandTimeout bounds one command, supervisor calls included.
	CommandTimeout time.Duration
}

type DiscordChannel struct {
	session gateway
	api     DiscordAPI
	state   *discordgo.State
	router  CommandRouter
	limiter *ratelimit.Limiter
	opts    DiscordOptions
	log     *logger.Logger

	ctx           context.Context
	cancel        context.CancelFunc
	removeHandler func()
	botID         atomic.Value

	// mu orders inflight.Add against Stop flipping running.
	mu       sync.Mutex
	running  atomic.Bool
	inflight sync.WaitGroup
}

func NewDiscordChannel(opts DiscordOptions, router CommandRouter, limiter *ratelimit.Limiter, log *logger.Logger) (*DiscordChannel, error) {
	if router == nil {
		return nil, errors.New("discord channel needs a command router")
	}

	session, err := discordgo.New("Bot " + opts.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to create discord session: %w", err)
	}
	if err := applyDiscordProxy(session, opts.Proxy); err != nil {
		return nil, err
	}
	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentsMessageContent

	c := newDiscordChannel(session, opts, router, limiter, log)
	c.session = session
	c.state = session.State
	return c, nil
}

func newDiscordChannel(api DiscordAPI, opts DiscordOptions, router CommandRouter, limiter *ratelimit.Limiter, log *logger.Logger) *DiscordChannel {
	if opts.CommandTimeout <= 0 {
		opts.CommandTimeout = defaultCommandTimeout
	}
	return &DiscordChannel{
		api:     api,
		router:  router,
		limiter: limiter,
		opts:    opts,
		log:     log.Component("discord"),
		ctx:     context.Background(),
	}
}

// applyDiscordProxy routes REST and gateway traffic through proxyURL, or
// through the environment's proxy settings when proxyURL is empty.
func applyDiscordProxy(session *discordgo.Session, proxyURL string) error {
	proxy := http.ProxyFromEnvironment
	if proxyURL != "" {
		u, err := url.Parse(proxyURL)
		if err != nil {
			return fmt.Errorf("invalid discord proxy URL %q: %w", proxyURL, err)
		}
		proxy = http.ProxyURL(u)
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = proxy
	if session.Client == nil {
		session.Client = &http.Client{Timeout: 20 * time.Second}
	}
	session.Client.Transport = transport

	// discordgo defaults to the shared websocket.DefaultDialer; never mutate it.
	dialer := websocket.Dialer{}
	if session.Dialer != nil {
		dialer = *session.Dialer
	}
	dialer.Proxy = proxy
	session.Dialer = &dialer
	return nil
}

func (c *DiscordChannel) getContext() context.Context {
	if c.ctx == nil {
		return context.Background()
	}
	return c.ctx
}

func (c *DiscordChannel) IsRunning() bool {
	return c.running.Load()
}

func (c *DiscordChannel) Start(ctx context.Context) error {
	c.log.Info("Starting Discord bot")

	c.ctx, c.cancel = context.WithCancel(ctx)
	c.removeHandler = c.session.AddHandler(c.handleMessage)

	if err := c.session.Open(); err != nil {
		c.abortStart()
		return fmt.Errorf("failed to open discord session: %w", err)
	}

	botUser, err := c.session.User("@me")
	if err != nil {
		c.abortStart()
		if cerr := c.session.Close(); cerr != nil {
			c.log.WarnF("Failed to close discord session", map[string]any{"error": cerr.Error()})
		}
		return fmt.Errorf("failed to get bot user: %w", err)
	}
	c.botID.Store(botUser.ID)
	c.running.Store(true)
	c.log.InfoF("Discord bot connected", map[string]any{
		"username": botUser.Username,
		"user_id":  botUser.ID,
	})

	if c.limiter.Enabled() {
		go c.cleanupLimiter(c.ctx)
	}
	return nil
}

func (c *DiscordChannel) abortStart() {
	if c.removeHandler != nil {
		c.removeHandler()
		c.removeHandler = nil
	}
	c.cancel()
}

// Stop refuses new commands, waits for in-flight ones until ctx is done and
// then closes the gateway.
func (c *DiscordChannel) Stop(ctx context.Context) error {
	c.log.Info("Stopping Discord bot")
	c.mu.Lock()
	c.running.Store(false)
	c.mu.Unlock()
	if c.removeHandler != nil {
		c.removeHandler()
	}

	done := make(chan struct{})
	go func() {
		c.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		c.log.Warn("Stopped with commands still running")
	}
	if c.cancel != nil {
		c.cancel()
	}

	if c.session != nil {
		if err := c.session.Close(); err != nil {
			return fmt.Errorf("failed to close discord session: %w", err)
		}
	}
	return nil
}

func (c *DiscordChannel) cleanupLimiter(ctx context.Context) {
	ticker := time.NewTicker(limiterCleanupEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.limiter.Cleanup(limiterIdleAfter)
			c.log.DebugF("Rate limiter cleaned up", map[string]any{"tracked_users": c.limiter.Size()})
		}
	}
}

// SendText posts content to channelID, split into chunks Discord accepts.
func (c *DiscordChannel) SendText(ctx context.Context, channelID, content string) error {
	if !c.IsRunning() {
		return fmt.Errorf("discord bot not running")
	}
	return c.send(ctx, channelID, content)
}

// send delivers content without the running check, so commands accepted
// before Stop can still answer while it waits for them.
func (c *DiscordChannel) send(ctx context.Context, channelID, content string) error {
	if channelID == "" {
		return fmt.Errorf("channel ID is empty")
	}
	if strings.TrimSpace(content) == "" {
		return nil
	}

	for _, chunk := range chunkText(content, messageChunkLimit) {
		if err := c.sendChunk(ctx, channelID, chunk); err != nil {
			return err
		}
	}
	return nil
}

func (c *DiscordChannel) sendChunk(ctx context.Context, channelID, content string) error {
	err := callWithTimeout(ctx, sendTimeout, func() error {
		_, err := c.api.ChannelMessageSend(channelID, content)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to send discord message: %w", err)
	}
	return nil
}

func (c *DiscordChannel) react(ctx context.Context, channelID, messageID, emoji string) error {
	err := callWithTimeout(ctx, sendTimeout, func() error {
		return c.api.MessageReactionAdd(channelID, messageID, emoji)
	})
	if err != nil {
		return fmt.Errorf("failed to add reaction %s: %w", emoji, err)
	}
	return nil
}

// callWithTimeout abandons fn once ctx or the timeout is done. discordgo REST
// calls take no context, so the call itself keeps running in the background.
func callWithTimeout(ctx context.Context, timeout time.Duration, fn func() error) error {
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- fn()
	}()

	select {
	case err := <-done:
		return err
	case <-callCtx.Done():
		return fmt.Errorf("timeout: %w", callCtx.Err())
	}
}

// inbound is the part of a Discord message the channel acts on.
type inbound struct {
	MessageID  string
	ChannelID  string
	GuildID    string
	AuthorID   string
	AuthorName string
	IsBot      bool
	Content    string
	RoleIDs    []string
}

func (c *DiscordChannel) handleMessage(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m == nil || m.Message == nil || m.Author == nil {
		return
	}
	if s != nil && s.State != nil && s.State.User != nil {
		c.botID.Store(s.State.User.ID)
	}

	in := inbound{
		MessageID:  m.ID,
		ChannelID:  m.ChannelID,
		GuildID:    m.GuildID,
		AuthorID:   m.Author.ID,
		AuthorName: m.Author.Username,
		IsBot:      m.Author.Bot,
		Content:    m.Content,
	}
	if m.Author.Discriminator != "" && m.Author.Discriminator != "0" {
		in.AuthorName += "#" + m.Author.Discriminator
	}
	if m.Member != nil {
		in.RoleIDs = m.Member.Roles
	}

	c.process(in)
}

// process filters a message and, if it is a command, runs it in its own
// goroutine so a slow supervisor never blocks the gateway.
func (c *DiscordChannel) process(in inbound) {
	if !c.IsRunning() || in.IsBot || in.AuthorID == c.selfID() {
		return
	}
	if !c.router.Matches(in.Content) {
		return
	}
	if !c.guildAllowed(in.GuildID) {
		c.log.DebugF("Command from guild outside allowlist ignored", map[string]any{
			"guild_id": in.GuildID,
			"user_id":  in.AuthorID,
		})
		return
	}

	if !c.limiter.Allow(in.AuthorID) {
		wait := c.limiter.RetryAfter(in.AuthorID).Round(time.Second)
		c.log.WarnF("Command rate limited", map[string]any{
			"user_id":     in.AuthorID,
			"retry_after": wait.String(),
		})
		msg := fmt.Sprintf("Slow down, %s. Try again in %s.", in.AuthorName, max(wait, time.Second))
		if err := c.SendText(c.getContext(), in.ChannelID, msg); err != nil {
			c.log.ErrorF("Failed to send rate limit notice", map[string]any{"error": err.Error()})
		}
		return
	}

	c.mu.Lock()
	if !c.IsRunning() {
		c.mu.Unlock()
		return
	}
	c.inflight.Add(1)
	c.mu.Unlock()
	go func() {
		defer c.inflight.Done()
		c.runCommand(in)
	}()
}

func (c *DiscordChannel) runCommand(in inbound) {
	ctx, cancel := context.WithTimeout(c.getContext(), c.opts.CommandTimeout)
	defer cancel()

	if err := c.api.ChannelTyping(in.ChannelID); err != nil {
		c.log.DebugF("Failed to send typing indicator", map[string]any{"error": err.Error()})
	}

	var roles []string
	if in.GuildID != "" {
		var err error
		roles, err = c.roleNames(in.GuildID, in.RoleIDs)
		if err != nil {
			c.log.WarnF("Failed to resolve member roles", map[string]any{
				"guild_id": in.GuildID,
				"user_id":  in.AuthorID,
				"error":    err.Error(),
			})
		}
	}

	res := c.router.Handle(ctx, gamemanager.Request{
		GuildID:    in.GuildID,
		ChannelID:  in.ChannelID,
		MessageID:  in.MessageID,
		AuthorID:   in.AuthorID,
		AuthorName: in.AuthorName,
		Roles:      roles,
		Text:       in.Content,
		Reply: func(text string) error {
			return c.send(ctx, in.ChannelID, text)
		},
		React: func(emoji string) error {
			return c.react(ctx, in.ChannelID, in.MessageID, emoji)
		},
	})
	if res.Err != nil {
		c.log.ErrorF("Command finished with error", map[string]any{
			"command": res.Command,
			"user_id": in.AuthorID,
			"error":   res.Err.Error(),
		})
	}
}

// roleNames maps role IDs to names, from the state cache first and the REST
// API for anything the cache does not know. Unknown IDs are dropped.
func (c *DiscordChannel) roleNames(guildID string, ids []string) ([]string, error) {
	names := make([]string, 0, len(ids))
	var missing []string
	for _, id := range ids {
		if c.state != nil {
			if r, err := c.state.Role(guildID, id); err == nil && r != nil {
				names = append(names, r.Name)
				continue
			}
		}
		missing = append(missing, id)
	}
	if len(missing) == 0 {
		return names, nil
	}

	roles, err := c.api.GuildRoles(guildID)
	if err != nil {
		return names, fmt.Errorf("fetching guild roles: %w", err)
	}
	byID := make(map[string]string, len(roles))
	for _, r := range roles {
		byID[r.ID] = r.Name
		if c.state != nil {
			_ = c.state.RoleAdd(guildID, r)
		}
	}
	for _, id := range missing {
		if name, ok := byID[id]; ok {
			names = append(names, name)
		}
	}
	return names, nil
}

func (c *DiscordChannel) guildAllowed(guildID string) bool {
	if guildID == "" || len(c.opts.GuildIDs) == 0 {
		return true
	}
	return slices.Contains(c.opts.GuildIDs, guildID)
}

func (c *DiscordChannel) selfID() string {
	id, _ := c.botID.Load().(string)
	return id
}
