// Package squads implements squad membership: listing, joining with
// costs and campaign-window exclusions, leaving, and member rosters.
package squads

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/Smarter-Dev/smarter-dev-sub002/go/api"
	"github.com/Smarter-Dev/smarter-dev-sub002/go/cache"
	"github.com/Smarter-Dev/smarter-dev-sub002/go/economy"
	"github.com/Smarter-Dev/smarter-dev-sub002/go/service"
)

const (
	listTTL      = 5 * time.Minute
	squadTTL     = 5 * time.Minute
	userSquadTTL = 3 * time.Minute
	membersTTL   = 2 * time.Minute
)

// Keys owned by the bytes service which squad mutations must also
// invalidate (join costs drain balances).
const bytesServicePrefix = "bytesservice"

// Service is the squads service.
type Service struct {
	*service.Base
	now func() time.Time
}

// NewService builds the squads service. cache may be nil.
func NewService(client *api.Client, c cache.Cache) *Service {
	return &Service{
		Base: service.NewBase("SquadsService", client, c),
		now:  time.Now,
	}
}

// ListSquads returns a guild's squads ordered by name.
func (s *Service) ListSquads(ctx context.Context, guildID string, includeInactive, useCache bool) ([]Squad, error) {
	if err := s.EnsureInitialized(); err != nil {
		return nil, err
	}
	if err := economy.ValidateID("guildId", guildID); err != nil {
		return nil, err
	}

	var key = s.CacheKey("list", guildID, strconv.FormatBool(includeInactive))
	if useCache {
		var cached []Squad
		if s.GetCached(ctx, key, &cached) {
			return cached, nil
		}
	}

	var query = url.Values{}
	if includeInactive {
		query.Set("include_inactive", "true")
	}
	resp, err := s.API().Get(ctx, fmt.Sprintf("/guilds/%s/squads", guildID), &api.Request{Query: query})
	if err != nil {
		return nil, err
	}
	var squads []Squad
	if err = resp.Decode(&squads); err != nil {
		return nil, service.WrapInternal(err)
	}
	sort.Slice(squads, func(i, j int) bool { return squads[i].Name < squads[j].Name })

	s.SetCached(ctx, key, squads, listTTL)
	return squads, nil
}

// GetSquad fetches one squad by id.
func (s *Service) GetSquad(ctx context.Context, guildID, squadID string, useCache bool) (*Squad, error) {
	if err := s.EnsureInitialized(); err != nil {
		return nil, err
	}
	if err := economy.ValidateID("guildId", guildID); err != nil {
		return nil, err
	}

	var key = s.CacheKey("squad", guildID, squadID)
	if useCache {
		var cached Squad
		if s.GetCached(ctx, key, &cached) {
			return &cached, nil
		}
	}

	resp, err := s.API().Get(ctx, fmt.Sprintf("/guilds/%s/squads/%s", guildID, squadID), nil)
	if err != nil {
		return nil, mapNotFound(err, "squad", squadID)
	}
	var squad Squad
	if err = resp.Decode(&squad); err != nil {
		return nil, service.WrapInternal(err)
	}
	s.SetCached(ctx, key, &squad, squadTTL)
	return &squad, nil
}

// GetUserSquad returns the user's membership. A 404 from the API is a
// valid "not in any squad" answer, cached like any other.
func (s *Service) GetUserSquad(ctx context.Context, guildID, userID string, useCache bool) (*UserSquadResponse, error) {
	if err := s.EnsureInitialized(); err != nil {
		return nil, err
	}
	if err := economy.ValidateID("guildId", guildID); err != nil {
		return nil, err
	}
	if err := economy.ValidateID("userId", userID); err != nil {
		return nil, err
	}

	var key = s.CacheKey("user", guildID, userID)
	if useCache {
		var cached UserSquadResponse
		if s.GetCached(ctx, key, &cached) {
			return &cached, nil
		}
	}

	var result = UserSquadResponse{UserID: userID}
	resp, err := s.API().Get(ctx, fmt.Sprintf("/guilds/%s/squads/members/%s", guildID, userID), nil)
	switch {
	case err == nil:
		if err = resp.Decode(&result); err != nil {
			return nil, service.WrapInternal(err)
		}
		result.UserID = userID
	case isNotFound(err):
		// Not in any squad.
	default:
		return nil, err
	}

	s.SetCached(ctx, key, &result, userSquadTTL)
	return &result, nil
}

// JoinSquad moves a user into a squad, charging the join or switch
// cost against currentBalance. Expected refusals come back as an
// unsuccessful JoinResult.
func (s *Service) JoinSquad(ctx context.Context, guildID, userID, squadID string, currentBalance int, username string) (*JoinResult, error) {
	if err := s.EnsureInitialized(); err != nil {
		return nil, err
	}
	if err := economy.ValidateID("guildId", guildID); err != nil {
		return nil, err
	}
	if err := economy.ValidateID("userId", userID); err != nil {
		return nil, err
	}

	current, err := s.GetUserSquad(ctx, guildID, userID, false)
	if err != nil {
		return nil, err
	}

	// Campaign windows freeze the squad roster; the only movement
	// allowed is out of an auto-assigned default squad.
	if s.campaignRunning(ctx, guildID) {
		switch {
		case current.InSquad() && !current.Squad.IsDefault:
			return &JoinResult{Reason: "Squad switching is disabled during campaigns."}, nil
		case !current.InSquad():
			return &JoinResult{Reason: "Joining squads is disabled during campaigns."}, nil
		}
	}

	target, err := s.GetSquad(ctx, guildID, squadID, false)
	if err != nil {
		var nf *economy.ResourceNotFoundError
		if errors.As(err, &nf) {
			return &JoinResult{Reason: "Squad not found!"}, nil
		}
		return nil, err
	}

	switch {
	case !target.IsActive:
		return &JoinResult{Reason: "That squad is not active."}, nil
	case target.IsDefault:
		return &JoinResult{Reason: "Default squads are assigned automatically and can't be joined."}, nil
	case current.InSquad() && current.Squad.ID == target.ID:
		return &JoinResult{Reason: "You're already in that squad!"}, nil
	case target.MaxMembers > 0 && target.MemberCount >= target.MaxMembers:
		return &JoinResult{Reason: "That squad is full!"}, nil
	}

	var cost, display = joinCost(target, current.InSquad())
	if cost > currentBalance {
		return &JoinResult{
			Reason: fmt.Sprintf("You need %s bytes to join **%s**, but you only have **%d**.",
				display, target.Name, currentBalance),
			Cost:        cost,
			CostDisplay: display,
		}, nil
	}

	if result, handled, err := s.postJoin(ctx, guildID, userID, squadID, username, current); err != nil {
		return nil, err
	} else if handled {
		return result, nil
	}

	var newBalance = currentBalance - cost
	if cost > 0 {
		if fetched, err := s.fetchBytesBalance(ctx, guildID, userID); err == nil {
			newBalance = fetched
		}
	}

	s.invalidateMembershipCaches(ctx, guildID, userID, squadID)

	log.WithFields(log.Fields{
		"guild": guildID,
		"user":  userID,
		"squad": target.Name,
		"cost":  cost,
	}).Info("user joined squad")

	return &JoinResult{
		Success:       true,
		Squad:         target,
		PreviousSquad: current.Squad,
		Cost:          cost,
		CostDisplay:   display,
		NewBalance:    newBalance,
	}, nil
}

// postJoin issues the join POST, leaving and retrying once when the
// API reports a stale membership. handled=true means the returned
// result (a refusal) should go straight to the caller.
func (s *Service) postJoin(ctx context.Context, guildID, userID, squadID, username string, current *UserSquadResponse) (*JoinResult, bool, error) {
	var body = map[string]string{"userId": userID}
	if username != "" {
		body["username"] = username
	}

	for attempt := 0; ; attempt++ {
		var _, err = s.API().Post(ctx,
			fmt.Sprintf("/guilds/%s/squads/%s/join", guildID, squadID),
			&api.Request{Body: body})
		if err == nil {
			return nil, false, nil
		}

		var apiErr *api.APIError
		if !errors.As(err, &apiErr) {
			return nil, false, err
		}
		var detail = strings.ToLower(apiErr.Detail())

		switch {
		case strings.Contains(detail, "already in squad") && current.InSquad() && attempt == 0:
			if err := s.LeaveSquad(ctx, guildID, userID); err != nil {
				var notIn *NotInSquadError
				if !errors.As(err, &notIn) {
					return nil, false, err
				}
			}
			continue // retry the join once
		case strings.Contains(detail, "squad is full"):
			return &JoinResult{Reason: "That squad is full!"}, true, nil
		case strings.Contains(detail, "insufficient"):
			return &JoinResult{Reason: "You don't have enough bytes to join that squad."}, true, nil
		default:
			return nil, false, err
		}
	}
}

// joinCost picks switch or join cost depending on existing membership
// and renders the sale display form.
func joinCost(target *Squad, switching bool) (int, string) {
	if switching {
		return target.CurrentSwitchCost(),
			costDisplay(target.SwitchCost, target.CurrentSwitchCost(), target.SwitchSaleDiscount)
	}
	return target.CurrentJoinCost(),
		costDisplay(target.JoinCost, target.CurrentJoinCost(), target.JoinSaleDiscount)
}

// LeaveSquad removes the user's membership.
func (s *Service) LeaveSquad(ctx context.Context, guildID, userID string) error {
	if err := s.EnsureInitialized(); err != nil {
		return err
	}
	if err := economy.ValidateID("guildId", guildID); err != nil {
		return err
	}
	if err := economy.ValidateID("userId", userID); err != nil {
		return err
	}

	current, err := s.GetUserSquad(ctx, guildID, userID, false)
	if err != nil {
		return err
	}
	if !current.InSquad() {
		return &NotInSquadError{UserID: userID}
	}

	_, err = s.API().Delete(ctx, fmt.Sprintf("/guilds/%s/squads/leave", guildID), &api.Request{
		Body: map[string]string{"userId": userID},
	})
	if err != nil {
		if isNotFound(err) {
			return &NotInSquadError{UserID: userID}
		}
		return err
	}

	s.invalidateMembershipCaches(ctx, guildID, userID, current.Squad.ID)
	log.WithFields(log.Fields{"guild": guildID, "user": userID, "squad": current.Squad.Name}).
		Info("user left squad")
	return nil
}

// GetSquadMembers lists a squad's members ordered by join date.
func (s *Service) GetSquadMembers(ctx context.Context, guildID, squadID string, useCache bool) ([]Member, error) {
	if err := s.EnsureInitialized(); err != nil {
		return nil, err
	}
	if err := economy.ValidateID("guildId", guildID); err != nil {
		return nil, err
	}

	var key = s.CacheKey("members", guildID, squadID)
	if useCache {
		var cached []Member
		if s.GetCached(ctx, key, &cached) {
			return cached, nil
		}
	}

	resp, err := s.API().Get(ctx, fmt.Sprintf("/guilds/%s/squads/%s/members", guildID, squadID), nil)
	if err != nil {
		return nil, mapNotFound(err, "squad", squadID)
	}
	var members []Member
	if err = resp.Decode(&members); err != nil {
		return nil, service.WrapInternal(err)
	}
	sort.Slice(members, func(i, j int) bool { return members[i].JoinedAt.Before(members[j].JoinedAt) })

	s.SetCached(ctx, key, members, membersTTL)
	return members, nil
}

// invalidateMembershipCaches clears everything a membership change can
// stale: this service's own keys plus the bytes service's balance and
// leaderboard (join costs move bytes).
func (s *Service) invalidateMembershipCaches(ctx context.Context, guildID, userID, squadID string) {
	s.Invalidate(ctx,
		s.CacheKey("user", guildID, userID),
		s.CacheKey("squad", guildID, squadID),
	)
	s.InvalidatePattern(ctx, s.CacheKey("list", guildID, "*"))
	s.InvalidatePattern(ctx, s.CacheKey("members", guildID, "*"))
	s.Invalidate(ctx, bytesServicePrefix+":balance:"+guildID+":"+userID)
	s.InvalidatePattern(ctx, bytesServicePrefix+":leaderboard:"+guildID+":*")
}

// fetchBytesBalance reads the user's post-join balance directly from
// the bytes endpoint.
func (s *Service) fetchBytesBalance(ctx context.Context, guildID, userID string) (int, error) {
	resp, err := s.API().Get(ctx, fmt.Sprintf("/guilds/%s/bytes/balance/%s", guildID, userID), nil)
	if err != nil {
		return 0, err
	}
	var balance struct {
		Balance int `json:"balance"`
	}
	if err = resp.Decode(&balance); err != nil {
		return 0, err
	}
	return balance.Balance, nil
}

func isNotFound(err error) bool {
	var apiErr *api.APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

func mapNotFound(err error, resourceType, id string) error {
	if isNotFound(err) {
		return &economy.ResourceNotFoundError{Type: resourceType, ID: id}
	}
	return err
}
