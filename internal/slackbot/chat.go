package slackbot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	log "github.com/sirupsen/logrus"
	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
)

const (
	defaultModel   = openai.GPT4
	maxTokens      = 3 * 1024
	temperature    = 0.6
	MentionTimeout = 4 * time.Minute
)

var ErrBadSignature = errors.New("slack request signature mismatch")

// ChatCompleter is implemented by *openai.Client.
type ChatCompleter interface {
	CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

func NewOpenAI(key, org string) *openai.Client {
	cfg := openai.DefaultConfig(key)
	cfg.OrgID = org
	return openai.NewClientWithConfig(cfg)
}

func (b *Bot) systemPrompt() string {
	return fmt.Sprintf("Olet @%s, yrityksen Tietoa Finland Oy Tietomallinnus-yksikön hieman sarkastinen "+
		"keskustelubotti, joka toimii Slackissä. Tietoa Finland Oy on helsinkiläinen rakennusalan ja "+
		"tietomallintamisen konsulttiyhtiö. Pyri käyttämään rentoa puhekieltä ja kevyttä ironiaa.", b.opts.BotName)
}

// Event is a parsed Events API request.
type Event struct {
	Challenge string
	Mention   *slackevents.AppMentionEvent
}

// ParseEvent verifies and parses an Events API request. The signature is
// checked only when signingSecret is set.
func ParseEvent(header http.Header, body []byte, signingSecret string) (Event, error) {
	if signingSecret != "" {
		sv, err := slack.NewSecretsVerifier(header, signingSecret)
		if err != nil {
			return Event{}, fmt.Errorf("%w: %v", ErrBadSignature, err)
		}
		if _, err := sv.Write(body); err != nil {
			return Event{}, err
		}
		if err := sv.Ensure(); err != nil {
			return Event{}, fmt.Errorf("%w: %v", ErrBadSignature, err)
		}
	}

	ev, err := slackevents.ParseEvent(json.RawMessage(body), slackevents.OptionNoVerifyToken())
	if err != nil {
		return Event{}, err
	}

	switch ev.Type {
	case slackevents.URLVerification:
		var challenge slackevents.ChallengeResponse
		if err := json.Unmarshal(body, &challenge); err != nil {
			return Event{}, err
		}
		return Event{Challenge: challenge.Challenge}, nil
	case slackevents.CallbackEvent:
		if mention, ok := ev.InnerEvent.Data.(*slackevents.AppMentionEvent); ok {
			return Event{Mention: mention}, nil
		}
	}
	log.WithField("type", ev.Type).Debug("slack event ignored")
	return Event{}, nil
}

// threadMessages returns the messages of the thread ts belongs to as chat
// messages, oldest first.
func (b *Bot) threadMessages(ctx context.Context, channel, ts string) ([]openai.ChatCompletionMessage, error) {
	var msgs []slack.Message
	params := &slack.GetConversationRepliesParameters{ChannelID: channel, Timestamp: ts}
	for {
		page, hasMore, cursor, err := b.api.GetConversationRepliesContext(ctx, params)
		if err != nil {
			return nil, fmt.Errorf("thread replies: %w", err)
		}
		msgs = append(msgs, page...)
		if !hasMore || cursor == "" {
			break
		}
		params.Cursor = cursor
	}

	if len(msgs) == 1 && msgs[0].ThreadTimestamp != "" && msgs[0].ThreadTimestamp != ts {
		return b.threadMessages(ctx, channel, msgs[0].ThreadTimestamp)
	}

	chat := make([]openai.ChatCompletionMessage, 0, len(msgs))
	for _, msg := range msgs {
		name, _, err := b.UserByID(ctx, msg.User)
		if err != nil {
			return nil, err
		}
		text, err := b.UserIDsToNames(ctx, Unformat(msg.Text))
		if err != nil {
			return nil, err
		}
		role := openai.ChatMessageRoleUser
		if msg.User != "" && msg.User == b.opts.BotUser {
			role = openai.ChatMessageRoleAssistant
		}
		chat = append(chat, openai.ChatCompletionMessage{Role: role, Content: fmt.Sprintf("@%s: %s", name, text)})
	}
	return chat, nil
}

func (b *Bot) complete(ctx context.Context, messages []openai.ChatCompletionMessage) (string, error) {
	resp, err := b.chat.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       b.opts.Model,
		Messages:    messages,
		MaxTokens:   maxTokens,
		Temperature: temperature,
	})
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			log.WithError(err).Error("chat completion failed")
			return fmt.Sprintf("[%v] %s", apiErr.Code, apiErr.Message), nil
		}
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("chat completion without choices")
	}

	choice := resp.Choices[0]
	text := choice.Message.Content
	if choice.FinishReason == openai.FinishReasonLength {
		log.WithField("max_tokens", maxTokens).Warn("chat completion cut off")
		text += "..."
	}
	log.WithField("tokens", resp.Usage.TotalTokens).Info("chat completion ok")
	return strings.TrimSpace(text), nil
}

// AnswerMention replies in thread to an app mention with a chat completion
// over the thread so far.
func (b *Bot) AnswerMention(ctx context.Context, mention *slackevents.AppMentionEvent) error {
	if b.chat == nil {
		log.Warn("app mention ignored, no chat model configured")
		return nil
	}

	thread, err := b.threadMessages(ctx, mention.Channel, mention.TimeStamp)
	if err != nil {
		return err
	}
	messages := append([]openai.ChatCompletionMessage{{Role: openai.ChatMessageRoleSystem, Content: b.systemPrompt()}}, thread...)

	answer, err := b.complete(ctx, messages)
	if err != nil {
		return err
	}
	answer, err = b.NamesToUserIDs(ctx, answer)
	if err != nil {
		return err
	}

	threadTS := mention.ThreadTimeStamp
	if threadTS == "" {
		threadTS = mention.TimeStamp
	}
	_, _, err = b.api.PostMessageContext(ctx, mention.Channel,
		slack.MsgOptionText(answer, false),
		slack.MsgOptionTS(threadTS),
		slack.MsgOptionLinkNames(true),
		slack.MsgOptionDisableLinkUnfurl(),
		slack.MsgOptionDisableMediaUnfurl(),
	)
	return err
}
