package scheduler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/Smarter-Dev/smarter-dev-sub002/go/api"
	"github.com/Smarter-Dev/smarter-dev-sub002/go/discord"
)

// aocLocation is the timezone whose midnight unlocks new puzzles.
const aocLocation = "America/New_York"

// aocFirstDay and aocLastDay bound the event within December.
const (
	aocFirstDay = 1
	aocLastDay  = 25
)

// aocWake is how early before Eastern midnight the scheduler wakes so
// the new day's thread exists the moment the puzzle unlocks.
const aocWake = 2 * time.Second

// aocMaxSleep caps the idle sleep so config changes are noticed within
// the hour even far outside December.
const aocMaxSleep = time.Hour

// AoCConfig is one guild's Advent of Code forum configuration.
type AoCConfig struct {
	GuildID        string `json:"guildId"`
	ForumChannelID string `json:"forumChannelId"`
	Year           int    `json:"year"`
}

// aocThread records a created discussion thread with the API.
type aocThread struct {
	Year     int    `json:"year"`
	Day      int    `json:"day"`
	ThreadID string `json:"threadId"`
}

// AoCScheduler creates one forum discussion thread per Advent of Code
// day, catching up on any missed days after downtime.
type AoCScheduler struct {
	*core
	api    *api.Client
	poster discord.Poster

	location *time.Location
}

// NewAoCScheduler builds the Advent of Code scheduler.
func NewAoCScheduler(client *api.Client, poster discord.Poster) (*AoCScheduler, error) {
	var loc, err = time.LoadLocation(aocLocation)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", aocLocation, err)
	}
	return &AoCScheduler{
		core:     newCore("advent_of_code"),
		api:      client,
		poster:   poster,
		location: loc,
	}, nil
}

// Start launches the poll loop.
func (s *AoCScheduler) Start(ctx context.Context) {
	s.start(ctx, s.checkAndPost, s.nextWake)
}

// nextWake sleeps until just before the next Eastern midnight, capped
// at an hour.
func (s *AoCScheduler) nextWake(now time.Time) time.Duration {
	var eastern = now.In(s.location)
	var midnight = time.Date(eastern.Year(), eastern.Month(), eastern.Day()+1, 0, 0, 0, 0, s.location)
	var delay = midnight.Add(-aocWake).Sub(now)
	if delay <= 0 {
		// Already inside the wake window; go around after midnight.
		delay = midnight.Add(aocWake).Sub(now)
	}
	if delay > aocMaxSleep {
		return aocMaxSleep
	}
	return delay
}

// currentDay reports the event day now, or 0 outside the event. The
// wake offset is added so the 23:59:58 wake evaluates the day about to
// unlock rather than the one ending.
func (s *AoCScheduler) currentDay(year int) int {
	var eastern = s.now().Add(aocWake).In(s.location)
	if eastern.Year() != year || eastern.Month() != time.December {
		return 0
	}
	var day = eastern.Day()
	if day < aocFirstDay || day > aocLastDay {
		return 0
	}
	return day
}

func (s *AoCScheduler) checkAndPost(ctx context.Context) error {
	var resp, err = s.api.Get(ctx, "/advent-of-code/active-configs", nil)
	if err != nil {
		return err
	}
	var configs []AoCConfig
	if err = resp.Decode(&configs); err != nil {
		return err
	}

	for _, cfg := range configs {
		var day = s.currentDay(cfg.Year)
		if day == 0 {
			continue
		}
		if err := s.catchUp(ctx, cfg, day); err != nil {
			log.WithFields(log.Fields{
				"scheduler": s.name,
				"guild":     cfg.GuildID,
				"year":      cfg.Year,
				"err":       err,
			}).Error("advent of code catch-up failed")
		}
	}
	return nil
}

// catchUp creates threads for every event day up to and including
// today that doesn't have one yet, oldest first.
func (s *AoCScheduler) catchUp(ctx context.Context, cfg AoCConfig, today int) error {
	for day := aocFirstDay; day <= today; day++ {
		var exists, err = s.threadExists(ctx, cfg, day)
		if err != nil {
			return err
		}
		if exists {
			continue
		}
		if err = s.createThread(ctx, cfg, day); err != nil {
			return err
		}
	}
	return nil
}

func (s *AoCScheduler) threadExists(ctx context.Context, cfg AoCConfig, day int) (bool, error) {
	var _, err = s.api.Get(ctx, fmt.Sprintf("/advent-of-code/%s/threads/%d/%d", cfg.GuildID, cfg.Year, day), nil)
	if err == nil {
		return true, nil
	}
	var apiErr *api.APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
		return false, nil
	}
	return false, err
}

func (s *AoCScheduler) createThread(ctx context.Context, cfg AoCConfig, day int) error {
	var title = fmt.Sprintf("Day %d - Advent of Code", day)
	var body = fmt.Sprintf(
		"Discussion thread for **[Day %d](https://adventofcode.com/%d/day/%d)** of Advent of Code %d.\n\n"+
			"Share your approaches and solutions here. Please wrap spoilers in ||spoiler tags|| for folks still working on the puzzle!",
		day, cfg.Year, day, cfg.Year)

	var threadID, err = s.poster.CreateForumPost(ctx, cfg.ForumChannelID, title, body)
	if err != nil {
		return fmt.Errorf("creating day %d thread: %w", day, err)
	}
	channelSendsTotal.WithLabelValues(s.name, "sent").Inc()
	log.WithFields(log.Fields{
		"scheduler": s.name,
		"guild":     cfg.GuildID,
		"year":      cfg.Year,
		"day":       day,
		"thread":    threadID,
	}).Info("created advent of code thread")

	_, err = s.api.Post(ctx, fmt.Sprintf("/advent-of-code/%s/threads", cfg.GuildID), &api.Request{
		Body: aocThread{Year: cfg.Year, Day: day, ThreadID: threadID},
	})
	if err != nil {
		return fmt.Errorf("recording day %d thread: %w", day, err)
	}
	return nil
}
