package scheduler

import (
	"context"
	"fmt"
	"sort"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/Smarter-Dev/smarter-dev-sub002/go/api"
	"github.com/Smarter-Dev/smarter-dev-sub002/go/discord"
)

// RepeatingMessage is one due occurrence of a repeating series. The
// content arrives fully formatted, role mention included.
type RepeatingMessage struct {
	ID        string    `json:"id"`
	SeriesID  string    `json:"seriesId"`
	GuildID   string    `json:"guildId"`
	ChannelID string    `json:"channelId"`
	Content   string    `json:"content"`
	FireAt    time.Time `json:"fireAt"`
}

// RepeatingScheduler posts repeating-series occurrences. Polls align
// to minute boundaries because series cadences are whole minutes.
type RepeatingScheduler struct {
	*core
	api    *api.Client
	poster discord.Poster
}

// NewRepeatingScheduler builds the repeating-message scheduler.
func NewRepeatingScheduler(client *api.Client, poster discord.Poster) *RepeatingScheduler {
	return &RepeatingScheduler{
		core:   newCore("repeating_message"),
		api:    client,
		poster: poster,
	}
}

// Start launches the poll loop, waking just past each minute boundary.
func (s *RepeatingScheduler) Start(ctx context.Context) {
	s.start(ctx, s.checkAndPost, nextMinuteDelay)
}

// nextMinuteDelay sleeps to the next minute boundary plus a 100ms
// grace so occurrences stamped exactly on the minute are already due.
func nextMinuteDelay(now time.Time) time.Duration {
	return now.Truncate(time.Minute).Add(time.Minute + 100*time.Millisecond).Sub(now)
}

func (s *RepeatingScheduler) checkAndPost(ctx context.Context) error {
	var resp, err = s.api.Get(ctx, "/repeating-messages/due", nil)
	if err != nil {
		return err
	}
	var due []RepeatingMessage
	if err = resp.Decode(&due); err != nil {
		return err
	}

	for seriesID, occurrences := range groupBySeries(due) {
		var seriesID, occurrences = seriesID, occurrences
		var latest = occurrences[len(occurrences)-1]
		s.spawnJob(ctx, seriesID, latest.FireAt, func(ctx context.Context) error {
			return s.post(ctx, latest, occurrences[:len(occurrences)-1])
		})
	}
	return nil
}

// groupBySeries buckets occurrences by series, oldest first.
func groupBySeries(due []RepeatingMessage) map[string][]RepeatingMessage {
	var bySeries = make(map[string][]RepeatingMessage)
	for _, m := range due {
		bySeries[m.SeriesID] = append(bySeries[m.SeriesID], m)
	}
	for _, occurrences := range bySeries {
		sort.Slice(occurrences, func(i, j int) bool {
			return occurrences[i].FireAt.Before(occurrences[j].FireAt)
		})
	}
	return bySeries
}

// post delivers the latest occurrence of a series. Older past-due
// occurrences are marked sent without posting so a stalled series
// doesn't flood its channel on recovery.
func (s *RepeatingScheduler) post(ctx context.Context, latest RepeatingMessage, skipped []RepeatingMessage) error {
	var sent = s.deliverAll(ctx, s.poster, []delivery{{
		channelID: latest.ChannelID,
		// The series content carries its own mention when one is configured.
		content:      buildContent("", latest.Content),
		roleMentions: true,
	}})
	if sent == 0 {
		return fmt.Errorf("repeating message %s reached no channels", latest.ID)
	}
	if err := markDone(ctx, s.api, fmt.Sprintf("/repeating-messages/%s/mark-sent", latest.ID)); err != nil {
		return fmt.Errorf("marking repeating message %s sent: %w", latest.ID, err)
	}
	for _, m := range skipped {
		if err := markDone(ctx, s.api, fmt.Sprintf("/repeating-messages/%s/mark-sent", m.ID)); err != nil {
			log.WithFields(log.Fields{
				"scheduler": s.name,
				"series":    m.SeriesID,
				"message":   m.ID,
				"err":       err,
			}).Warn("failed to mark skipped occurrence sent")
		}
	}
	return nil
}
