package slackbot

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/slack-go/slack"

	"kpi-backend/internal/utils"
)

// Offer is an offer request message that has not been marked handled.
type Offer struct {
	Timestamp string     `json:"timestamp"`
	Message   string     `json:"message"`
	URL       string     `json:"url"`
	Deadline  *time.Time `json:"deadline"`
}

// Posted is the time the offer message was sent.
func (o Offer) Posted() time.Time {
	secs, err := strconv.ParseFloat(o.Timestamp, 64)
	if err != nil {
		return time.Time{}
	}
	return time.UnixMilli(int64(secs * 1000))
}

// Permalink links a message by channel and timestamp.
func Permalink(workspace, channel, ts string) string {
	return fmt.Sprintf("https://%s.slack.com/archives/%s/p%s", workspace, channel, strings.ReplaceAll(ts, ".", ""))
}

func hasReaction(msg slack.Message, reaction string) bool {
	return slices.ContainsFunc(msg.Reactions, func(r slack.ItemReaction) bool { return r.Name == reaction })
}

// OpenOffers lists the messages of channel newer than oldest that nobody
// has reacted to with reaction. Deadlines are searched from the text.
func (b *Bot) OpenOffers(ctx context.Context, channel, reaction string, oldest time.Time) ([]Offer, error) {
	now := b.now()
	offers := []Offer{}
	params := &slack.GetConversationHistoryParameters{
		ChannelID: channel,
		Oldest:    fmt.Sprintf("%d", oldest.Unix()),
		Limit:     200,
	}
	for {
		resp, err := b.api.GetConversationHistoryContext(ctx, params)
		if err != nil {
			return nil, fmt.Errorf("channel history %s: %w", channel, err)
		}
		for _, msg := range resp.Messages {
			if msg.Type != "message" || msg.SubType == "tombstone" || hasReaction(msg, reaction) {
				continue
			}
			offer := Offer{
				Timestamp: msg.Timestamp,
				Message:   Unformat(msg.Text),
				URL:       Permalink(b.opts.Workspace, channel, msg.Timestamp),
			}
			if deadline, ok := utils.SearchDeadline(msg.Text, now); ok {
				offer.Deadline = &deadline
			}
			offers = append(offers, offer)
		}
		if !resp.HasMore || resp.ResponseMetaData.NextCursor == "" {
			return offers, nil
		}
		params.Cursor = resp.ResponseMetaData.NextCursor
	}
}
