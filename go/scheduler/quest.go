package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/Smarter-Dev/smarter-dev-sub002/go/api"
	"github.com/Smarter-Dev/smarter-dev-sub002/go/discord"
)

// Quest is a quest pending announcement.
type Quest struct {
	ID          string    `json:"id"`
	GuildID     string    `json:"guildId"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	FireAt      time.Time `json:"fireAt"`
	IsAnnounced bool      `json:"isAnnounced"`
}

// QuestScheduler announces quests; identical delivery to challenges
// but with the mark-announced / mark-active transition pair.
type QuestScheduler struct {
	*core
	api       *api.Client
	poster    discord.Poster
	squads    SquadLister
	poll      time.Duration
	lookAhead time.Duration
}

// NewQuestScheduler builds the quest scheduler.
func NewQuestScheduler(client *api.Client, poster discord.Poster, lister SquadLister) *QuestScheduler {
	return &QuestScheduler{
		core:      newCore("quest"),
		api:       client,
		poster:    poster,
		squads:    lister,
		poll:      DefaultPollInterval,
		lookAhead: DefaultLookAhead,
	}
}

// Start launches the poll loop.
func (s *QuestScheduler) Start(ctx context.Context) {
	s.start(ctx, s.checkAndQueue, func(time.Time) time.Duration { return s.poll })
}

func (s *QuestScheduler) checkAndQueue(ctx context.Context) error {
	var quests, err = fetchWindow[Quest](ctx, s.api, "/quests/upcoming-announcements", s.lookAhead)
	if err != nil {
		return err
	}
	for _, q := range quests {
		var q = q
		s.spawnJob(ctx, q.ID, q.FireAt, func(ctx context.Context) error {
			return s.announce(ctx, q)
		})
	}
	return nil
}

func (s *QuestScheduler) announce(ctx context.Context, q Quest) error {
	var sent, err = s.announceToSquads(ctx, s.poster, s.squads, announcement{
		guildID:     q.GuildID,
		title:       q.Title,
		description: q.Description,
		components:  actionButtons("quest", q.ID),
	})
	if err != nil {
		return err
	}
	if sent == 0 {
		return fmt.Errorf("quest %s reached no channels", q.ID)
	}
	if err := markDone(ctx, s.api, fmt.Sprintf("/quests/%s/mark-announced", q.ID)); err != nil {
		return fmt.Errorf("marking quest %s announced: %w", q.ID, err)
	}
	if err := markDone(ctx, s.api, fmt.Sprintf("/quests/%s/mark-active", q.ID)); err != nil {
		return fmt.Errorf("marking quest %s active: %w", q.ID, err)
	}
	return nil
}
