package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/Smarter-Dev/smarter-dev-sub002/go/api"
	"github.com/Smarter-Dev/smarter-dev-sub002/go/discord"
)

// Challenge is a coding challenge pending announcement.
type Challenge struct {
	ID          string    `json:"id"`
	GuildID     string    `json:"guildId"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	FireAt      time.Time `json:"fireAt"`
	IsAnnounced bool      `json:"isAnnounced"`
	IsReleased  bool      `json:"isReleased"`
}

// ChallengeScheduler announces coding challenges to every active
// squad's announcement channel when their fire-at instant arrives.
type ChallengeScheduler struct {
	*core
	api       *api.Client
	poster    discord.Poster
	squads    SquadLister
	poll      time.Duration
	lookAhead time.Duration
}

// NewChallengeScheduler builds the challenge scheduler.
func NewChallengeScheduler(client *api.Client, poster discord.Poster, lister SquadLister) *ChallengeScheduler {
	return &ChallengeScheduler{
		core:      newCore("challenge"),
		api:       client,
		poster:    poster,
		squads:    lister,
		poll:      DefaultPollInterval,
		lookAhead: DefaultLookAhead,
	}
}

// Start launches the poll loop.
func (s *ChallengeScheduler) Start(ctx context.Context) {
	s.start(ctx, s.checkAndQueue, func(time.Time) time.Duration { return s.poll })
}

func (s *ChallengeScheduler) checkAndQueue(ctx context.Context) error {
	var challenges, err = fetchWindow[Challenge](ctx, s.api, "/challenges/upcoming-announcements", s.lookAhead)
	if err != nil {
		return err
	}
	for _, ch := range challenges {
		var ch = ch
		s.spawnJob(ctx, ch.ID, ch.FireAt, func(ctx context.Context) error {
			return s.announce(ctx, ch)
		})
	}
	return nil
}

func (s *ChallengeScheduler) announce(ctx context.Context, ch Challenge) error {
	var sent, err = s.announceToSquads(ctx, s.poster, s.squads, announcement{
		guildID:     ch.GuildID,
		title:       ch.Title,
		description: ch.Description,
		components:  actionButtons("challenge", ch.ID),
	})
	if err != nil {
		return err
	}
	if sent == 0 {
		return fmt.Errorf("challenge %s reached no channels", ch.ID)
	}
	if err := markDone(ctx, s.api, fmt.Sprintf("/challenges/%s/mark-announced", ch.ID)); err != nil {
		return fmt.Errorf("marking challenge %s announced: %w", ch.ID, err)
	}
	if err := markDone(ctx, s.api, fmt.Sprintf("/challenges/%s/mark-released", ch.ID)); err != nil {
		return fmt.Errorf("marking challenge %s released: %w", ch.ID, err)
	}
	return nil
}
