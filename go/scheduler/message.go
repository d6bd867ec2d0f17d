package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/Smarter-Dev/smarter-dev-sub002/go/api"
	"github.com/Smarter-Dev/smarter-dev-sub002/go/discord"
)

// ScheduledMessage is a one-shot message pending delivery. The squad
// fan-out always happens; AnnouncementChannels optionally receive a
// second, mention-free copy with their own message text.
type ScheduledMessage struct {
	ID          string    `json:"id"`
	GuildID     string    `json:"guildId"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	FireAt      time.Time `json:"fireAt"`
	IsSent      bool      `json:"isSent"`
	Pin         bool      `json:"pin,omitempty"`

	AnnouncementChannels []string `json:"announcementChannels,omitempty"`
	// AnnouncementChannelMessage overrides Description for the
	// announcement-channel copies; empty falls back to Description.
	AnnouncementChannelMessage string `json:"announcementChannelMessage,omitempty"`
}

// MessageScheduler delivers scheduled messages.
type MessageScheduler struct {
	*core
	api       *api.Client
	poster    discord.Poster
	squads    SquadLister
	poll      time.Duration
	lookAhead time.Duration
}

// NewMessageScheduler builds the scheduled-message scheduler.
func NewMessageScheduler(client *api.Client, poster discord.Poster, lister SquadLister) *MessageScheduler {
	return &MessageScheduler{
		core:      newCore("scheduled_message"),
		api:       client,
		poster:    poster,
		squads:    lister,
		poll:      DefaultPollInterval,
		lookAhead: DefaultLookAhead,
	}
}

// Start launches the poll loop.
func (s *MessageScheduler) Start(ctx context.Context) {
	s.start(ctx, s.checkAndQueue, func(time.Time) time.Duration { return s.poll })
}

func (s *MessageScheduler) checkAndQueue(ctx context.Context) error {
	var messages, err = fetchWindow[ScheduledMessage](ctx, s.api, "/scheduled-messages/upcoming", s.lookAhead)
	if err != nil {
		return err
	}
	for _, m := range messages {
		var m = m
		s.spawnJob(ctx, m.ID, m.FireAt, func(ctx context.Context) error {
			return s.deliver(ctx, m)
		})
	}
	return nil
}

func (s *MessageScheduler) deliver(ctx context.Context, m ScheduledMessage) error {
	var sent, err = s.announceToSquads(ctx, s.poster, s.squads, announcement{
		guildID:     m.GuildID,
		title:       m.Title,
		description: m.Description,
		pin:         m.Pin,
	})
	if err != nil {
		return err
	}

	if len(m.AnnouncementChannels) > 0 {
		var body = m.AnnouncementChannelMessage
		if body == "" {
			body = m.Description
		}
		var prefix = fmt.Sprintf("# %s\n\n", m.Title)
		var deliveries []delivery
		for _, channelID := range m.AnnouncementChannels {
			deliveries = append(deliveries, delivery{
				channelID: channelID,
				content:   buildContent(prefix, body),
				pin:       m.Pin,
			})
		}
		sent += s.deliverAll(ctx, s.poster, deliveries)
	}

	if sent == 0 {
		return fmt.Errorf("scheduled message %s reached no channels", m.ID)
	}
	if err := markDone(ctx, s.api, fmt.Sprintf("/scheduled-messages/%s/mark-sent", m.ID)); err != nil {
		return fmt.Errorf("marking scheduled message %s sent: %w", m.ID, err)
	}
	return nil
}
