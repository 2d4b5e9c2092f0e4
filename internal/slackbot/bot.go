// Package slackbot reads the offers channel, posts the weekly report and
// answers app mentions.
package slackbot

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	log "github.com/sirupsen/logrus"
	"github.com/slack-go/slack"
)

const (
	usersCacheSize = 4096
	usersTTL       = 12 * time.Hour

	// loadedMarker is stored first on every load, so it expires before any
	// user and triggers the reload.
	loadedMarker = ""
)

// API is the part of the Slack Web API the bot uses. *slack.Client
// implements it.
type API interface {
	GetUsersContext(ctx context.Context, options ...slack.GetUsersOption) ([]slack.User, error)
	GetConversationHistoryContext(ctx context.Context, params *slack.GetConversationHistoryParameters) (*slack.GetConversationHistoryResponse, error)
	GetConversationRepliesContext(ctx context.Context, params *slack.GetConversationRepliesParameters) ([]slack.Message, bool, string, error)
	PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
}

type Options struct {
	Workspace string
	// BotUser and BotName are kept in the user directory although bots
	// are otherwise skipped.
	BotUser string
	BotName string
	Model   string
}

type Bot struct {
	api  API
	chat ChatCompleter
	opts Options

	mu    sync.Mutex
	names *expirable.LRU[string, string] // user id → display name
	ids   *expirable.LRU[string, string] // display name → user id
	now   func() time.Time
}

func newDirectory(ttl time.Duration) (names, ids *expirable.LRU[string, string]) {
	return expirable.NewLRU[string, string](usersCacheSize, nil, ttl),
		expirable.NewLRU[string, string](usersCacheSize, nil, ttl)
}

// New builds a bot. chat may be nil, in which case app mentions are
// ignored.
func New(api API, chat ChatCompleter, opts Options) (*Bot, error) {
	names, ids := newDirectory(usersTTL)
	if opts.Model == "" {
		opts.Model = defaultModel
	}
	return &Bot{api: api, chat: chat, opts: opts, names: names, ids: ids, now: time.Now}, nil
}

func (b *Bot) loadUsers(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.names.Get(loadedMarker); ok {
		return nil
	}

	users, err := b.api.GetUsersContext(ctx)
	if err != nil {
		return fmt.Errorf("slack users: %w", err)
	}

	b.names.Purge()
	b.ids.Purge()
	b.names.Add(loadedMarker, "")
	for _, u := range users {
		if u.Deleted || u.IsBot || u.IsAppUser {
			continue
		}
		name := u.RealName
		if u.Profile.DisplayName != "" {
			name = u.Profile.DisplayName
		}
		if name == "" {
			log.WithField("user", u.ID).Warn("slack user without a name")
			continue
		}
		if other, ok := b.ids.Peek(name); ok {
			log.WithFields(log.Fields{"name": name, "user": u.ID, "other": other}).Warn("slack display name is not unique")
		}
		b.names.Add(u.ID, name)
		b.ids.Add(name, u.ID)
	}
	if b.opts.BotUser != "" && b.opts.BotName != "" {
		b.names.Add(b.opts.BotUser, b.opts.BotName)
		b.ids.Add(b.opts.BotName, b.opts.BotUser)
	}
	log.WithField("users", b.ids.Len()).Info("slack users loaded")
	return nil
}

// UserByID returns the display name of a user id.
func (b *Bot) UserByID(ctx context.Context, id string) (string, bool, error) {
	if err := b.loadUsers(ctx); err != nil {
		return "", false, err
	}
	if id == loadedMarker {
		return "", false, nil
	}
	name, ok := b.names.Get(id)
	return name, ok, nil
}

// UserByName returns the user id of a display name.
func (b *Bot) UserByName(ctx context.Context, name string) (string, bool, error) {
	if err := b.loadUsers(ctx); err != nil {
		return "", false, err
	}
	id, ok := b.ids.Get(name)
	return id, ok, nil
}

var (
	labelledLink = regexp.MustCompile(`<[^|]*\|([^|]*)>`)
	bold         = regexp.MustCompile(`\*([^*]*)\*`)
	italics      = regexp.MustCompile(`_([^_]*)_`)
	mention      = regexp.MustCompile(`<@([UW][A-Z0-9]+)>`)
)

// Unformat strips link markup down to its label and removes bold and
// italics.
func Unformat(text string) string {
	text = labelledLink.ReplaceAllString(text, "$1")
	text = bold.ReplaceAllString(text, "$1")
	return italics.ReplaceAllString(text, "$1")
}

// UserIDsToNames turns known <@USER> mentions into @name.
func (b *Bot) UserIDsToNames(ctx context.Context, text string) (string, error) {
	if err := b.loadUsers(ctx); err != nil {
		return "", err
	}
	return mention.ReplaceAllStringFunc(text, func(m string) string {
		id := mention.FindStringSubmatch(m)[1]
		if name, ok := b.names.Peek(id); ok {
			return "@" + name
		}
		return m
	}), nil
}

// NamesToUserIDs turns @name of known users into <@USER> mentions. Longer
// names are replaced first so a name that prefixes another does not win.
func (b *Bot) NamesToUserIDs(ctx context.Context, text string) (string, error) {
	if err := b.loadUsers(ctx); err != nil {
		return "", err
	}

	names := b.ids.Keys()
	sort.Slice(names, func(i, j int) bool { return len(names[i]) > len(names[j]) })

	for _, name := range names {
		id, ok := b.ids.Peek(name)
		if !ok {
			continue
		}
		re, err := regexp.Compile(`@` + regexp.QuoteMeta(name) + `\b`)
		if err != nil {
			continue
		}
		text = re.ReplaceAllLiteralString(text, "<@"+id+">")
	}
	return text, nil
}
