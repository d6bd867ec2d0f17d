package scheduler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	log "github.com/sirupsen/logrus"

	"github.com/Smarter-Dev/smarter-dev-sub002/go/discord"
)

// maxContentLength is Discord's message content limit.
const maxContentLength = 2000

const truncationSuffix = "..."

// coolOff separates the first delivery pass from the retry pass for
// channels which failed every first-pass attempt.
const coolOff = 30 * time.Second

const (
	firstPassRetries  = 3
	secondPassRetries = 5
)

// buildContent assembles prefix (mention and header) plus body,
// truncating the body so the whole message fits Discord's limit.
func buildContent(prefix, body string) string {
	var content = prefix + body
	if len(content) <= maxContentLength {
		return content
	}
	var budget = maxContentLength - len(prefix) - len(truncationSuffix)
	if budget <= 0 {
		// Pathological prefix; keep what fits of it and nothing else.
		return (prefix + body)[:maxContentLength-len(truncationSuffix)] + truncationSuffix
	}
	return prefix + strings.TrimRight(body[:budget], " \n") + truncationSuffix
}

// delivery is one channel's worth of content for a job. Squad
// fan-outs give each channel its own role mention prefix.
type delivery struct {
	channelID    string
	content      string
	components   []discordgo.MessageComponent
	roleMentions bool
	pin          bool
}

// deliverAll sends every delivery, retrying per channel with
// exponential delays, then gives failed channels one more pass after a
// cool-off. Returns how many channels succeeded; a job is marked done
// if any channel succeeded.
func (c *core) deliverAll(ctx context.Context, poster discord.Poster, deliveries []delivery) int {
	var succeeded int
	var failed []delivery

	for _, d := range deliveries {
		if err := c.sendToChannel(ctx, poster, d, firstPassRetries); err != nil {
			if discord.IsTerminal(err) || ctx.Err() != nil {
				channelSendsTotal.WithLabelValues(c.name, "skipped").Inc()
				continue
			}
			failed = append(failed, d)
			continue
		}
		succeeded++
	}

	if len(failed) == 0 {
		return succeeded
	}
	if !c.sleep(ctx, coolOff) {
		return succeeded
	}
	for _, d := range failed {
		if err := c.sendToChannel(ctx, poster, d, secondPassRetries); err != nil {
			channelSendsTotal.WithLabelValues(c.name, "failed").Inc()
			log.WithFields(log.Fields{
				"scheduler": c.name,
				"channel":   d.channelID,
				"err":       err,
			}).Warn("channel delivery failed after retry pass")
			continue
		}
		succeeded++
	}
	return succeeded
}

// sendToChannel posts one message with up to maxRetries attempts,
// delays 1.5 * 2^n seconds. Terminal errors (missing channel, missing
// permission, overlong rate limit) abort immediately.
func (c *core) sendToChannel(ctx context.Context, poster discord.Poster, d delivery, maxRetries int) error {
	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			var delay = time.Duration(1.5 * float64(int(1)<<(attempt-1)) * float64(time.Second))
			if !c.sleep(ctx, delay) {
				return ctx.Err()
			}
		}
		var messageID, err = poster.CreateMessage(ctx, d.channelID, d.content, d.components, d.roleMentions)
		if err == nil {
			channelSendsTotal.WithLabelValues(c.name, "sent").Inc()
			if d.pin {
				c.pinWithRetry(ctx, poster, d.channelID, messageID)
			}
			return nil
		}
		if discord.IsTerminal(err) {
			log.WithFields(log.Fields{
				"scheduler": c.name,
				"channel":   d.channelID,
				"err":       err,
			}).Warn("channel delivery hit a terminal error, skipping channel")
			return err
		}
		lastErr = err
		log.WithFields(log.Fields{
			"scheduler": c.name,
			"channel":   d.channelID,
			"attempt":   attempt,
			"err":       err,
		}).Warn("channel delivery failed (will retry)")
	}
	return fmt.Errorf("channel %s: %w", d.channelID, lastErr)
}

// pinWithRetry pins with up to 3 retries at 2s/4s/8s. A failed pin
// never fails the job: the message is already posted.
func (c *core) pinWithRetry(ctx context.Context, poster discord.Poster, channelID, messageID string) {
	for attempt := 0; attempt <= 3; attempt++ {
		if attempt > 0 {
			var delay = time.Duration(int(1)<<(attempt-1)) * 2 * time.Second // 2s, 4s, 8s
			if !c.sleep(ctx, delay) {
				return
			}
		}
		var err = poster.PinMessage(ctx, channelID, messageID)
		if err == nil {
			return
		}
		if discord.IsForbidden(err) || discord.IsRateLimitTooLong(err) {
			log.WithFields(log.Fields{
				"scheduler": c.name,
				"channel":   channelID,
				"err":       err,
			}).Warn("pin not permitted, giving up")
			return
		}
		log.WithFields(log.Fields{
			"scheduler": c.name,
			"channel":   channelID,
			"attempt":   attempt,
			"err":       err,
		}).Warn("pin failed (will retry)")
	}
}
