package squads

import (
	"context"
	"net/url"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/Smarter-Dev/smarter-dev-sub002/go/api"
)

type campaignInfo struct {
	IsActive            bool      `json:"isActive"`
	StartTime           time.Time `json:"startTime"`
	NumChallenges       int       `json:"numChallenges"`
	ReleaseCadenceHours int       `json:"releaseCadenceHours"`
}

type scoreboardResponse struct {
	Campaign *campaignInfo `json:"campaign,omitempty"`
}

// running reports whether now falls inside the campaign's window:
// [startTime, startTime + numChallenges * releaseCadenceHours).
func (c *campaignInfo) running(now time.Time) bool {
	if c == nil || !c.IsActive {
		return false
	}
	var end = c.StartTime.Add(time.Duration(c.NumChallenges*c.ReleaseCadenceHours) * time.Hour)
	return !now.Before(c.StartTime) && now.Before(end)
}

// campaignRunning checks the challenge scoreboard for a running
// campaign. Any failure is treated as "not running": squad mutations
// must stay available when the scoreboard is down.
func (s *Service) campaignRunning(ctx context.Context, guildID string) bool {
	var resp, err = s.API().Get(ctx, "/challenges/scoreboard", &api.Request{
		Query: url.Values{"guildId": {guildID}},
	})
	if err != nil {
		log.WithFields(log.Fields{"guild": guildID, "err": err}).
			Warn("campaign check failed, assuming no campaign")
		return false
	}
	var sb scoreboardResponse
	if err = resp.Decode(&sb); err != nil {
		log.WithFields(log.Fields{"guild": guildID, "err": err}).
			Warn("campaign check returned malformed scoreboard, assuming no campaign")
		return false
	}
	return sb.Campaign.running(s.now())
}
