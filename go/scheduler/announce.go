package scheduler

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/Smarter-Dev/smarter-dev-sub002/go/api"
	"github.com/Smarter-Dev/smarter-dev-sub002/go/discord"
	"github.com/Smarter-Dev/smarter-dev-sub002/go/squads"
)

// SquadLister supplies the squads whose announcement channels receive
// fan-outs. Implemented by the squads service.
type SquadLister interface {
	ListSquads(ctx context.Context, guildID string, includeInactive, useCache bool) ([]squads.Squad, error)
}

// announcement is one job's squad fan-out: every active squad with an
// announcement channel gets the content prefixed by its role mention.
type announcement struct {
	guildID     string
	title       string
	description string
	components  []discordgo.MessageComponent
	pin         bool
}

// announceToSquads fans an announcement out and returns how many
// channels received it.
func (c *core) announceToSquads(ctx context.Context, poster discord.Poster, lister SquadLister, a announcement) (int, error) {
	var squadList, err = lister.ListSquads(ctx, a.guildID, false, true)
	if err != nil {
		return 0, fmt.Errorf("listing squads for guild %s: %w", a.guildID, err)
	}

	var deliveries []delivery
	for _, squad := range squadList {
		if !squad.IsActive || squad.AnnouncementChannel == "" {
			continue
		}
		var prefix = fmt.Sprintf("<@&%s>\n\n# %s\n\n", squad.RoleID, a.title)
		deliveries = append(deliveries, delivery{
			channelID:    squad.AnnouncementChannel,
			content:      buildContent(prefix, a.description),
			components:   a.components,
			roleMentions: true,
			pin:          a.pin,
		})
	}
	return c.deliverAll(ctx, poster, deliveries), nil
}

// actionButtons builds the "Get Input" / "Submit Solution" row whose
// custom ids carry the job id back through the interaction.
func actionButtons(kind, jobID string) []discordgo.MessageComponent {
	return []discordgo.MessageComponent{
		discordgo.ActionsRow{
			Components: []discordgo.MessageComponent{
				discordgo.Button{
					Label:    "Get Input",
					Style:    discordgo.PrimaryButton,
					CustomID: kind + "_input:" + jobID,
				},
				discordgo.Button{
					Label:    "Submit Solution",
					Style:    discordgo.SuccessButton,
					CustomID: kind + "_submit:" + jobID,
				},
			},
		},
	}
}

// fetchWindow fetches the jobs due within the look-ahead window.
func fetchWindow[T any](ctx context.Context, client *api.Client, path string, lookAhead time.Duration) ([]T, error) {
	var resp, err = client.Get(ctx, path, &api.Request{
		Query: url.Values{"seconds": {strconv.Itoa(int(lookAhead.Seconds()))}},
	})
	if err != nil {
		return nil, err
	}
	var jobs []T
	if err = resp.Decode(&jobs); err != nil {
		return nil, err
	}
	return jobs, nil
}

// markDone posts an idempotency transition such as mark-announced.
func markDone(ctx context.Context, client *api.Client, path string) error {
	var _, err = client.Post(ctx, path, nil)
	return err
}
