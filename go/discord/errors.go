package discord

import (
	"errors"
	"net/http"
	"time"

	"github.com/bwmarrin/discordgo"
)

// rateLimitTooLong is the cutoff past which a rate limit is treated as
// terminal for the current job rather than waited out.
const rateLimitTooLong = 5 * time.Minute

// IsNotFound reports an invalid or deleted channel/message.
func IsNotFound(err error) bool {
	return restStatus(err) == http.StatusNotFound
}

// IsForbidden reports a missing permission. Retrying can't help.
func IsForbidden(err error) bool {
	return restStatus(err) == http.StatusForbidden
}

// IsRateLimited reports a 429 which is short enough to wait out.
func IsRateLimited(err error) bool {
	var rl *discordgo.RateLimitError
	if errors.As(err, &rl) {
		return rl.RetryAfter <= rateLimitTooLong
	}
	return restStatus(err) == http.StatusTooManyRequests
}

// IsRateLimitTooLong reports a 429 whose retry-after exceeds what a
// scheduled post can reasonably wait for.
func IsRateLimitTooLong(err error) bool {
	var rl *discordgo.RateLimitError
	return errors.As(err, &rl) && rl.RetryAfter > rateLimitTooLong
}

// IsServerError reports a Discord-side 5xx.
func IsServerError(err error) bool {
	return restStatus(err) >= 500
}

// IsTerminal reports errors no amount of retrying will fix: missing
// channels, missing permissions, and overlong rate limits.
func IsTerminal(err error) bool {
	return IsNotFound(err) || IsForbidden(err) || IsRateLimitTooLong(err)
}

func restStatus(err error) int {
	var rest *discordgo.RESTError
	if errors.As(err, &rest) && rest.Response != nil {
		return rest.Response.StatusCode
	}
	return 0
}
