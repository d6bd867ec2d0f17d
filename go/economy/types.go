package economy

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Date is a civil date (no time-of-day), serialized as "2006-01-02".
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// DateOf truncates an instant to its civil date in UTC.
func DateOf(t time.Time) Date {
	var y, m, d = t.UTC().Date()
	return Date{Year: y, Month: m, Day: d}
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, d.Month, d.Day)
}

// AddDays returns the date shifted by n civil days.
func (d Date) AddDays(n int) Date {
	return DateOf(time.Date(d.Year, d.Month, d.Day+n, 0, 0, 0, 0, time.UTC))
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	// Tolerate a full instant by keeping only the date part.
	if i := strings.IndexByte(s, 'T'); i > 0 {
		s = s[:i]
	}
	var t, err = time.Parse("2006-01-02", s)
	if err != nil {
		return fmt.Errorf("invalid civil date %q: %w", s, err)
	}
	*d = DateOf(t)
	return nil
}

// Balance is a user's per-guild bytes account.
type Balance struct {
	GuildID       string     `json:"guildId"`
	UserID        string     `json:"userId"`
	Balance       int        `json:"balance"`
	TotalReceived int        `json:"totalReceived"`
	TotalSent     int        `json:"totalSent"`
	StreakCount   int        `json:"streakCount"`
	LastDaily     *Date      `json:"lastDaily,omitempty"`
	CreatedAt     *time.Time `json:"createdAt,omitempty"`
	UpdatedAt     *time.Time `json:"updatedAt,omitempty"`
}

// Transaction is an immutable ledger entry.
type Transaction struct {
	ID               string    `json:"id"`
	GuildID          string    `json:"guildId"`
	GiverID          string    `json:"giverId"`
	GiverUsername    string    `json:"giverUsername"`
	ReceiverID       string    `json:"receiverId"`
	ReceiverUsername string    `json:"receiverUsername"`
	Amount           int       `json:"amount"`
	Reason           string    `json:"reason,omitempty"`
	CreatedAt        time.Time `json:"createdAt"`
}

// GuildConfig holds a guild's economy knobs. StreakBonuses maps a
// streak-day threshold to the multiplier unlocked at that threshold.
type GuildConfig struct {
	GuildID               string      `json:"guildId"`
	StartingBalance       int         `json:"startingBalance"`
	DailyAmount           int         `json:"dailyAmount"`
	MaxTransfer           int         `json:"maxTransfer"`
	TransferCooldownHours int         `json:"transferCooldownHours"`
	StreakBonuses         map[int]int `json:"streakBonuses"`
}

// LeaderboardEntry is one row of a guild's top-N, rank 1-based.
type LeaderboardEntry struct {
	Rank          int    `json:"rank"`
	UserID        string `json:"userId"`
	Balance       int    `json:"balance"`
	TotalReceived int    `json:"totalReceived"`
	StreakCount   int    `json:"streakCount"`
}

// SquadAssignment describes a default squad granted on first claim.
type SquadAssignment struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	RoleID string `json:"roleId"`
}

// DailyClaimResult is a successful daily claim.
type DailyClaimResult struct {
	Balance       Balance          `json:"balance"`
	Reward        int              `json:"reward"`
	Streak        int              `json:"streak"`
	Multiplier    int              `json:"multiplier"`
	NextClaimAt   time.Time        `json:"nextClaimAt"`
	AssignedSquad *SquadAssignment `json:"assignedSquad,omitempty"`
}

// TransferResult is the outcome of a transfer attempt. Expected
// failures (cooldowns, server-side limits) are data, not errors.
type TransferResult struct {
	Success         bool
	Reason          string
	IsCooldownError bool
	// CooldownEndsAt is unix seconds; zero when the server didn't say.
	CooldownEndsAt  int64
	Transaction     *Transaction
	NewGiverBalance int
}

// User is anything with a Discord id and a display name; the transfer
// path accepts members, users, and test fakes alike.
type User interface {
	ID() string
	DisplayName() string
}
