// Package economy implements the bytes economy: balances, daily claims
// with streak multipliers, peer transfers, leaderboards, and the pure
// streak arithmetic behind them. All state lives behind the backend
// API; this layer adds validation, caching, and error mapping.
package economy

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/Smarter-Dev/smarter-dev-sub002/go/api"
	"github.com/Smarter-Dev/smarter-dev-sub002/go/cache"
	"github.com/Smarter-Dev/smarter-dev-sub002/go/service"
)

// Cache TTLs per entity kind.
const (
	balanceTTL     = 5 * time.Minute
	configTTL      = 10 * time.Minute
	leaderboardTTL = time.Minute
	historyTTL     = 2 * time.Minute
)

// MaxTransferAmount is the hard per-transfer ceiling, independent of
// any per-guild maxTransfer knob.
const MaxTransferAmount = 10_000

// MaxReasonLength truncates transfer reasons.
const MaxReasonLength = 200

// Service is the bytes economy service.
type Service struct {
	*service.Base
}

// NewService builds the economy service. cache may be nil.
func NewService(client *api.Client, c cache.Cache) *Service {
	return &Service{Base: service.NewBase("BytesService", client, c)}
}

// GetBalance fetches a user's balance, optionally serving a fresh
// cached copy.
func (s *Service) GetBalance(ctx context.Context, guildID, userID string, useCache bool) (*Balance, error) {
	if err := s.EnsureInitialized(); err != nil {
		return nil, err
	}
	if err := ValidateID("guildId", guildID); err != nil {
		return nil, err
	}
	if err := ValidateID("userId", userID); err != nil {
		return nil, err
	}

	var key = s.CacheKey("balance", guildID, userID)
	if useCache {
		var cached Balance
		if s.GetCached(ctx, key, &cached) {
			return &cached, nil
		}
	}

	var out, err = s.Single(key, func() (interface{}, error) {
		resp, err := s.API().Get(ctx, fmt.Sprintf("/guilds/%s/bytes/balance/%s", guildID, userID), nil)
		if err != nil {
			return nil, mapNotFound(err, "user_balance", guildID+":"+userID)
		}
		var balance Balance
		if err = resp.Decode(&balance); err != nil {
			return nil, service.WrapInternal(err)
		}
		s.SetCached(ctx, key, &balance, balanceTTL)
		return &balance, nil
	})
	if err != nil {
		return nil, err
	}
	return out.(*Balance), nil
}

// ClaimDaily performs the atomic daily claim. Any 409, or an error
// body mentioning an existing claim, maps to AlreadyClaimedError.
func (s *Service) ClaimDaily(ctx context.Context, guildID, userID, username string) (*DailyClaimResult, error) {
	if err := s.EnsureInitialized(); err != nil {
		return nil, err
	}
	if err := ValidateID("guildId", guildID); err != nil {
		return nil, err
	}
	if err := ValidateID("userId", userID); err != nil {
		return nil, err
	}

	resp, err := s.API().Post(ctx, fmt.Sprintf("/guilds/%s/bytes/daily", guildID), &api.Request{
		Body: map[string]string{"userId": userID, "username": username},
	})
	if err != nil {
		var apiErr *api.APIError
		if errors.As(err, &apiErr) {
			if apiErr.StatusCode == http.StatusConflict ||
				strings.Contains(apiErr.Detail(), "already been claimed") {
				return nil, &AlreadyClaimedError{NextClaimAt: nextUTCMidnight(time.Now())}
			}
		}
		return nil, err
	}

	var result DailyClaimResult
	if err = resp.Decode(&result); err != nil {
		return nil, service.WrapInternal(err)
	}
	if result.NextClaimAt.IsZero() {
		result.NextClaimAt = nextUTCMidnight(time.Now())
	}

	s.Invalidate(ctx, s.CacheKey("balance", guildID, userID))
	s.InvalidatePattern(ctx, s.CacheKey("leaderboard", guildID, "*"))

	log.WithFields(log.Fields{
		"guild":  guildID,
		"user":   userID,
		"reward": result.Reward,
		"streak": result.Streak,
	}).Info("daily bytes claimed")
	return &result, nil
}

// Transfer moves bytes between two users. Expected refusals (self
// transfer, bad amount, cooldowns, server-side limits) come back as an
// unsuccessful TransferResult; only hard failures return an error.
func (s *Service) Transfer(ctx context.Context, guildID string, giver, receiver User, amount int, reason string) (*TransferResult, error) {
	if err := s.EnsureInitialized(); err != nil {
		return nil, err
	}
	if err := ValidateID("guildId", guildID); err != nil {
		return nil, err
	}

	if giver.ID() == receiver.ID() {
		return &TransferResult{Reason: "You can't send bytes to yourself!"}, nil
	}
	if amount <= 0 {
		return &TransferResult{Reason: "Amount must be a positive number of bytes."}, nil
	}
	if amount > MaxTransferAmount {
		return &TransferResult{
			Reason: fmt.Sprintf("Amount can't exceed %d bytes.", MaxTransferAmount),
		}, nil
	}
	if len(reason) > MaxReasonLength {
		reason = reason[:MaxReasonLength]
	}

	giverBalance, err := s.GetBalance(ctx, guildID, giver.ID(), false)
	if err != nil {
		return nil, err
	}
	if giverBalance.Balance < amount {
		return nil, &InsufficientBalanceError{
			Required:  amount,
			Available: giverBalance.Balance,
			Operation: "transfer",
		}
	}

	resp, err := s.API().Post(ctx, fmt.Sprintf("/guilds/%s/bytes/transactions", guildID), &api.Request{
		Body: map[string]interface{}{
			"giverId":          giver.ID(),
			"giverUsername":    giver.DisplayName(),
			"receiverId":       receiver.ID(),
			"receiverUsername": receiver.DisplayName(),
			"amount":           amount,
			"reason":           reason,
		},
	})
	if err != nil {
		if result, mapped := mapTransferFailure(err); mapped {
			return result, nil
		}
		var apiErr *api.APIError
		if errors.As(err, &apiErr) &&
			strings.Contains(strings.ToLower(apiErr.Detail()), "insufficient balance") {
			return nil, &InsufficientBalanceError{
				Required:  amount,
				Available: giverBalance.Balance,
				Operation: "transfer",
			}
		}
		return nil, err
	}

	var tx Transaction
	if err = resp.Decode(&tx); err != nil {
		return nil, service.WrapInternal(err)
	}

	s.Invalidate(ctx,
		s.CacheKey("balance", guildID, giver.ID()),
		s.CacheKey("balance", guildID, receiver.ID()),
	)
	s.InvalidatePattern(ctx, s.CacheKey("leaderboard", guildID, "*"))
	s.InvalidatePattern(ctx, s.CacheKey("history", guildID, "*"))

	log.WithFields(log.Fields{
		"guild":    guildID,
		"giver":    giver.ID(),
		"receiver": receiver.ID(),
		"amount":   amount,
	}).Info("bytes transferred")

	return &TransferResult{
		Success:         true,
		Transaction:     &tx,
		NewGiverBalance: giverBalance.Balance - amount,
	}, nil
}

// mapTransferFailure translates API error bodies into transfer
// outcomes. The second return is false when the error isn't a known
// transfer refusal.
func mapTransferFailure(err error) (*TransferResult, bool) {
	var apiErr *api.APIError
	if !errors.As(err, &apiErr) {
		return nil, false
	}
	var detail = apiErr.Detail()
	var lowered = strings.ToLower(detail)

	switch {
	case strings.Contains(lowered, "cooldown active"):
		var message, endsAt = parseCooldown(detail)
		return &TransferResult{
			Reason:          message,
			IsCooldownError: true,
			CooldownEndsAt:  endsAt,
		}, true
	case strings.Contains(lowered, "exceeds maximum limit"):
		return &TransferResult{Reason: detail}, true
	default:
		return nil, false
	}
}

// GetConfig fetches a guild's economy configuration.
func (s *Service) GetConfig(ctx context.Context, guildID string, useCache bool) (*GuildConfig, error) {
	if err := s.EnsureInitialized(); err != nil {
		return nil, err
	}
	if err := ValidateID("guildId", guildID); err != nil {
		return nil, err
	}

	var key = s.CacheKey("config", guildID)
	if useCache {
		var cached GuildConfig
		if s.GetCached(ctx, key, &cached) {
			return &cached, nil
		}
	}

	var out, err = s.Single(key, func() (interface{}, error) {
		resp, err := s.API().Get(ctx, fmt.Sprintf("/guilds/%s/bytes/config", guildID), nil)
		if err != nil {
			return nil, mapNotFound(err, "guild_config", guildID)
		}
		var cfg GuildConfig
		if err = resp.Decode(&cfg); err != nil {
			return nil, service.WrapInternal(err)
		}
		s.SetCached(ctx, key, &cfg, configTTL)
		return &cfg, nil
	})
	if err != nil {
		return nil, err
	}
	return out.(*GuildConfig), nil
}

// GetLeaderboard fetches a guild's top balances with 1-based ranks.
func (s *Service) GetLeaderboard(ctx context.Context, guildID string, limit int, useCache bool) ([]LeaderboardEntry, error) {
	if err := s.EnsureInitialized(); err != nil {
		return nil, err
	}
	if err := ValidateID("guildId", guildID); err != nil {
		return nil, err
	}
	if limit == 0 {
		limit = 10
	}
	if limit < 1 || limit > 100 {
		return nil, &ValidationError{Field: "limit", Message: "must be between 1 and 100"}
	}

	var key = s.CacheKey("leaderboard", guildID, strconv.Itoa(limit))
	if useCache {
		var cached []LeaderboardEntry
		if s.GetCached(ctx, key, &cached) {
			return cached, nil
		}
	}

	resp, err := s.API().Get(ctx, fmt.Sprintf("/guilds/%s/bytes/leaderboard", guildID), &api.Request{
		Query: url.Values{"limit": {strconv.Itoa(limit)}},
	})
	if err != nil {
		return nil, err
	}
	var entries []LeaderboardEntry
	if err = resp.Decode(&entries); err != nil {
		return nil, service.WrapInternal(err)
	}
	for i := range entries {
		entries[i].Rank = i + 1
	}
	s.SetCached(ctx, key, entries, leaderboardTTL)
	return entries, nil
}

// GetTransactionHistory fetches a guild's ledger, newest first.
// userID may be empty for guild-wide history.
func (s *Service) GetTransactionHistory(ctx context.Context, guildID, userID string, limit int, useCache bool) ([]Transaction, error) {
	if err := s.EnsureInitialized(); err != nil {
		return nil, err
	}
	if err := ValidateID("guildId", guildID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 20
	}

	var userSegment = "all"
	if userID != "" {
		if err := ValidateID("userId", userID); err != nil {
			return nil, err
		}
		userSegment = userID
	}

	var key = s.CacheKey("history", guildID, userSegment, strconv.Itoa(limit))
	if useCache {
		var cached []Transaction
		if s.GetCached(ctx, key, &cached) {
			return cached, nil
		}
	}

	var query = url.Values{"limit": {strconv.Itoa(limit)}}
	if userID != "" {
		query.Set("userId", userID)
	}
	resp, err := s.API().Get(ctx, fmt.Sprintf("/guilds/%s/bytes/transactions", guildID), &api.Request{Query: query})
	if err != nil {
		return nil, err
	}
	var txs []Transaction
	if err = resp.Decode(&txs); err != nil {
		return nil, service.WrapInternal(err)
	}
	s.SetCached(ctx, key, txs, historyTTL)
	return txs, nil
}

// ResetStreak zeroes a user's streak on behalf of an admin. Authority
// is the API's to enforce; this layer only forwards.
func (s *Service) ResetStreak(ctx context.Context, guildID, userID, adminID string) (*Balance, error) {
	if err := s.EnsureInitialized(); err != nil {
		return nil, err
	}
	if err := ValidateID("guildId", guildID); err != nil {
		return nil, err
	}
	if err := ValidateID("userId", userID); err != nil {
		return nil, err
	}

	resp, err := s.API().Post(ctx, fmt.Sprintf("/guilds/%s/bytes/reset-streak/%s", guildID, userID), &api.Request{
		Body: map[string]string{"adminId": adminID},
	})
	if err != nil {
		return nil, mapNotFound(err, "user_balance", guildID+":"+userID)
	}
	var balance Balance
	if err = resp.Decode(&balance); err != nil {
		return nil, service.WrapInternal(err)
	}

	s.Invalidate(ctx, s.CacheKey("balance", guildID, userID))
	log.WithFields(log.Fields{"guild": guildID, "user": userID, "admin": adminID}).
		Info("streak reset")
	return &balance, nil
}

// mapNotFound converts a 404 into ResourceNotFoundError, passing other
// errors through.
func mapNotFound(err error, resourceType, id string) error {
	var apiErr *api.APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
		return &ResourceNotFoundError{Type: resourceType, ID: id}
	}
	return err
}

func nextUTCMidnight(now time.Time) time.Time {
	var y, m, d = now.UTC().Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, time.UTC)
}
