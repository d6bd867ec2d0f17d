package economy

import (
	"strconv"
	"strings"
)

// parseCooldown splits a cooldown message of the form
// "Transfer cooldown active. Please wait 3 hours.|1705320000" into the
// human message and the unix-seconds end timestamp. When the suffix
// doesn't parse, the original message is kept and the timestamp is zero.
func parseCooldown(message string) (string, int64) {
	var i = strings.LastIndexByte(message, '|')
	if i < 0 {
		return message, 0
	}
	var ts, err = strconv.ParseInt(strings.TrimSpace(message[i+1:]), 10, 64)
	if err != nil || ts <= 0 {
		return message, 0
	}
	return message[:i], ts
}
