package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"kpi-backend/internal/daterange"
	"kpi-backend/internal/slackbot"
)

const maxEventBody = 1 << 20

// SlackOptions are the channels and secrets the Slack routes use.
type SlackOptions struct {
	OffersChannel string
	Reaction      string
	DebugChannel  string
	SigningSecret string
}

type SlackHandler struct {
	Bot      *slackbot.Bot
	Reporter *slackbot.Reporter
	Options  SlackOptions
	Now      func() time.Time
}

func NewSlackHandler(bot *slackbot.Bot, reporter *slackbot.Reporter, opts SlackOptions) *SlackHandler {
	return &SlackHandler{Bot: bot, Reporter: reporter, Options: opts, Now: time.Now}
}

func (h *SlackHandler) available(c *gin.Context) bool {
	if h.Bot == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "slack is not configured"})
		return false
	}
	return true
}

// Offers lists the offer requests without the resolved reaction. By default
// the search starts from the first day of the month two months back.
func (h *SlackHandler) Offers(c *gin.Context) {
	if !h.available(c) {
		return
	}
	oldest := daterange.FloorMonth(h.Now().AddDate(0, -2, 0))
	if raw := firstQuery(c, "oldest", "startDate"); raw != "" {
		t, err := time.Parse(daterange.Layout, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid date, expected YYYY-MM-DD"})
			return
		}
		oldest = t
	}
	channel := h.Options.OffersChannel
	if v := c.Query("channel"); v != "" {
		channel = v
	}
	reaction := h.Options.Reaction
	if v := c.Query("reaction"); v != "" {
		reaction = v
	}

	offers, err := h.Bot.OpenOffers(c.Request.Context(), channel, reaction, oldest)
	if err != nil {
		log.WithError(err).Error("listing offers failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to read slack channel"})
		return
	}
	if offers == nil {
		offers = []slackbot.Offer{}
	}
	c.JSON(http.StatusOK, offers)
}

// Event answers Events API requests. Mentions are answered in the
// background so that Slack gets its acknowledgement in time.
func (h *SlackHandler) Event(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxEventBody))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read body"})
		return
	}
	ev, err := slackbot.ParseEvent(c.Request.Header, body, h.Options.SigningSecret)
	if errors.Is(err, slackbot.ErrBadSignature) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
		return
	}
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid event"})
		return
	}

	if ev.Challenge != "" {
		c.String(http.StatusOK, ev.Challenge)
		return
	}
	if ev.Mention != nil && h.Bot != nil {
		mention := ev.Mention
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), slackbot.MentionTimeout)
			defer cancel()
			if err := h.Bot.AnswerMention(ctx, mention); err != nil {
				log.WithError(err).WithField("channel", mention.Channel).Error("answering mention failed")
			}
		}()
	}
	c.Status(http.StatusOK)
}

// SendDebug posts the weekly report to the debug channel.
func (h *SlackHandler) SendDebug(c *gin.Context) {
	if !h.available(c) {
		return
	}
	if h.Reporter == nil || h.Options.DebugChannel == "" {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "debug channel is not configured"})
		return
	}
	report, err := h.Reporter.Send(c.Request.Context(), h.Options.DebugChannel)
	if err != nil {
		log.WithError(err).Error("sending debug report failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to send report"})
		return
	}
	c.String(http.StatusOK, report.PlainText())
}
