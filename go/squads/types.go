package squads

import (
	"fmt"
	"time"
)

// Squad is a named, role-backed grouping of users within a guild.
type Squad struct {
	ID          string `json:"id"`
	GuildID     string `json:"guildId"`
	RoleID      string `json:"roleId"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	JoinCost    int    `json:"joinCost"`
	SwitchCost  int    `json:"switchCost"`
	MaxMembers  int    `json:"maxMembers"`
	MemberCount int    `json:"memberCount"`
	IsActive    bool   `json:"isActive"`
	// IsDefault squads are assigned automatically and can't be joined
	// by hand.
	IsDefault bool `json:"isDefault"`
	// Sale discounts are whole percentages off the respective cost.
	JoinSaleDiscount   int `json:"joinSaleDiscount,omitempty"`
	SwitchSaleDiscount int `json:"switchSaleDiscount,omitempty"`
	// AnnouncementChannel receives scheduled content for this squad.
	AnnouncementChannel string `json:"announcementChannel,omitempty"`
}

// CurrentJoinCost is the join cost after any active sale.
func (s *Squad) CurrentJoinCost() int {
	return discounted(s.JoinCost, s.JoinSaleDiscount)
}

// CurrentSwitchCost is the switch cost after any active sale.
func (s *Squad) CurrentSwitchCost() int {
	return discounted(s.SwitchCost, s.SwitchSaleDiscount)
}

func discounted(cost, percentOff int) int {
	if percentOff <= 0 || percentOff > 100 {
		return cost
	}
	return cost * (100 - percentOff) / 100
}

// costDisplay renders a cost for users, striking through the original
// when a sale applies.
func costDisplay(original, current, percentOff int) string {
	if current == original {
		return fmt.Sprintf("**%d**", original)
	}
	return fmt.Sprintf("~~%d~~ **%d** (%d%% off sale!)", original, current, percentOff)
}

// UserSquadResponse reports a user's squad membership; Squad is nil
// when the user isn't in any squad.
type UserSquadResponse struct {
	UserID      string     `json:"userId"`
	Squad       *Squad     `json:"squad,omitempty"`
	MemberSince *time.Time `json:"memberSince,omitempty"`
}

// InSquad reports whether the user belongs to any squad.
func (u *UserSquadResponse) InSquad() bool { return u.Squad != nil }

// Member is one row of a squad's member list.
type Member struct {
	UserID   string    `json:"userId"`
	Username string    `json:"username,omitempty"`
	JoinedAt time.Time `json:"joinedAt"`
}

// JoinResult is the outcome of a join attempt. Expected refusals
// (campaign windows, capacity, cost) are data, not errors.
type JoinResult struct {
	Success       bool
	Reason        string
	Squad         *Squad
	PreviousSquad *Squad
	Cost          int
	CostDisplay   string
	NewBalance    int
}
