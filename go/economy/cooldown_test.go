package economy

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseCooldown(t *testing.T) {
	msg, ts := parseCooldown("Transfer cooldown active. Please wait 3 hours.|1705320000")
	require.Equal(t, "Transfer cooldown active. Please wait 3 hours.", msg)
	require.Equal(t, int64(1705320000), ts)

	msg, ts = parseCooldown("Transfer cooldown active. Please wait 3 hours.")
	require.Equal(t, "Transfer cooldown active. Please wait 3 hours.", msg)
	require.Zero(t, ts)

	// Unparseable suffix keeps the whole message.
	msg, ts = parseCooldown("cooldown active|soonish")
	require.Equal(t, "cooldown active|soonish", msg)
	require.Zero(t, ts)

	// Only the final pipe delimits the timestamp.
	msg, ts = parseCooldown("wait|a|bit|1705320000")
	require.Equal(t, "wait|a|bit", msg)
	require.Equal(t, int64(1705320000), ts)
}

func TestValidateID(t *testing.T) {
	require.NoError(t, ValidateID("userId", "222222222222222222"))

	require.Error(t, ValidateID("userId", ""))
	require.Error(t, ValidateID("userId", "12345"))
	require.Error(t, ValidateID("userId", "abc222222222222222"))
	require.Error(t, ValidateID("userId", "1234567890'; DROP TABLE users;--"))

	var err = ValidateID("guildId", "not-numeric-at-all")
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	require.Equal(t, "guildId", vErr.Field)
}
