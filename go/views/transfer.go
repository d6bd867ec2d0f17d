package views

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	log "github.com/sirupsen/logrus"

	"github.com/Smarter-Dev/smarter-dev-sub002/go/economy"
	"github.com/Smarter-Dev/smarter-dev-sub002/go/service"
)

// TransferModalPrefix prefixes the modal custom id; the receiver's
// Discord id follows it.
const TransferModalPrefix = "transfer_modal:"

const maxReasonLength = 200

// genericErrorMessage hides unexpected failures from users.
const genericErrorMessage = "An unexpected error occurred"

// BytesService is the economy surface the transfer handler needs.
type BytesService interface {
	GetConfig(ctx context.Context, guildID string, useCache bool) (*economy.GuildConfig, error)
	Transfer(ctx context.Context, guildID string, giver, receiver economy.User, amount int, reason string) (*economy.TransferResult, error)
}

// Responder delivers an interaction response. Implemented by a
// discordgo session; faked in tests.
type Responder interface {
	Respond(i *discordgo.Interaction, r *discordgo.InteractionResponse) error
}

// MemberNamer resolves a guild member's display name. Failures fall
// back to a plain mention, so implementations may be best-effort.
type MemberNamer interface {
	MemberDisplayName(ctx context.Context, guildID, userID string) (string, error)
}

// SessionResponder adapts a discordgo session to Responder and
// MemberNamer.
type SessionResponder struct {
	Session *discordgo.Session
}

func (s *SessionResponder) Respond(i *discordgo.Interaction, r *discordgo.InteractionResponse) error {
	return s.Session.InteractionRespond(i, r)
}

func (s *SessionResponder) MemberDisplayName(ctx context.Context, guildID, userID string) (string, error) {
	var member, err = s.Session.GuildMember(guildID, userID, discordgo.WithContext(ctx))
	if err != nil {
		return "", err
	}
	return memberName(member), nil
}

func memberName(m *discordgo.Member) string {
	if m.Nick != "" {
		return m.Nick
	}
	if m.User == nil {
		return ""
	}
	if m.User.GlobalName != "" {
		return m.User.GlobalName
	}
	return m.User.Username
}

// TransferModal builds the two-field modal shown when a user chooses
// to send bytes to receiverID.
func TransferModal(receiverID string) *discordgo.InteractionResponse {
	return &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseModal,
		Data: &discordgo.InteractionResponseData{
			CustomID: TransferModalPrefix + receiverID,
			Title:    "Send Bytes",
			Components: []discordgo.MessageComponent{
				discordgo.ActionsRow{
					Components: []discordgo.MessageComponent{
						discordgo.TextInput{
							CustomID:    "amount",
							Label:       "Amount",
							Style:       discordgo.TextInputShort,
							Placeholder: "How many bytes to send",
							Required:    true,
							MaxLength:   10,
						},
					},
				},
				discordgo.ActionsRow{
					Components: []discordgo.MessageComponent{
						discordgo.TextInput{
							CustomID:  "reason",
							Label:     "Reason (optional)",
							Style:     discordgo.TextInputParagraph,
							Required:  false,
							MaxLength: maxReasonLength,
						},
					},
				},
			},
		},
	}
}

// IsTransferModal reports whether a modal submit belongs to the
// transfer flow.
func IsTransferModal(customID string) bool {
	return strings.HasPrefix(customID, TransferModalPrefix)
}

// TransferHandler processes transfer modal submissions.
type TransferHandler struct {
	bytes  BytesService
	embeds EmbedGenerator
	names  MemberNamer

	now func() time.Time
}

// NewTransferHandler builds the handler. names may be nil, in which
// case all names render as mentions.
func NewTransferHandler(bytes BytesService, embeds EmbedGenerator, names MemberNamer) *TransferHandler {
	return &TransferHandler{
		bytes:  bytes,
		embeds: embeds,
		names:  names,
		now:    time.Now,
	}
}

// modalUser implements economy.User for the transfer call.
type modalUser struct {
	id   string
	name string
}

func (u modalUser) ID() string          { return u.id }
func (u modalUser) DisplayName() string { return u.name }

// HandleSubmit validates the modal's fields, runs the transfer, and
// responds with the matching embed.
func (h *TransferHandler) HandleSubmit(ctx context.Context, responder Responder, i *discordgo.Interaction) error {
	var data = i.ModalSubmitData()
	var receiverID = strings.TrimPrefix(data.CustomID, TransferModalPrefix)
	if receiverID == data.CustomID || receiverID == "" {
		return fmt.Errorf("unexpected modal custom id %q", data.CustomID)
	}

	var fields = modalFields(data.Components)
	var amount, problem = h.parseAmount(ctx, i.GuildID, fields["amount"])
	if problem != "" {
		return h.respondEphemeral(responder, i, h.embeds.Error(problem))
	}
	var reason = strings.TrimSpace(fields["reason"])
	if len(reason) > maxReasonLength {
		reason = reason[:maxReasonLength]
	}

	var giver = h.resolveUser(ctx, i.GuildID, i)
	var receiver = modalUser{id: receiverID, name: h.displayName(ctx, i.GuildID, receiverID)}

	var result, err = h.bytes.Transfer(ctx, i.GuildID, giver, receiver, amount, reason)
	if err != nil {
		return h.respondEphemeral(responder, i, h.embeds.Error(transferErrorMessage(err)))
	}

	switch {
	case result.Success:
		return h.respondSuccess(responder, i, giver, receiver, amount, reason)
	case result.IsCooldownError:
		return h.respondEphemeral(responder, i, h.embeds.Cooldown(h.cooldownMessage(result)))
	default:
		return h.respondEphemeral(responder, i, h.embeds.Error(result.Reason))
	}
}

// parseAmount validates the raw amount field; a non-empty problem
// string is the user-facing rejection.
func (h *TransferHandler) parseAmount(ctx context.Context, guildID, raw string) (int, string) {
	var amount, err = strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, "Amount must be a whole number of bytes."
	}
	if amount < 1 {
		return 0, "Amount must be at least 1 byte."
	}

	var maxTransfer = economy.MaxTransferAmount
	if cfg, err := h.bytes.GetConfig(ctx, guildID, true); err == nil && cfg.MaxTransfer > 0 && cfg.MaxTransfer < maxTransfer {
		maxTransfer = cfg.MaxTransfer
	}
	if amount > maxTransfer {
		return 0, fmt.Sprintf("Amount can't exceed %s bytes.", formatAmount(maxTransfer))
	}
	return amount, ""
}

func (h *TransferHandler) respondSuccess(responder Responder, i *discordgo.Interaction, giver, receiver economy.User, amount int, reason string) error {
	var description = fmt.Sprintf("%s sent %s bytes to %s",
		giver.DisplayName(), formatAmount(amount), receiver.DisplayName())
	if reason != "" {
		description += fmt.Sprintf("\n\n**Reason:** %s", reason)
	}
	return responder.Respond(i, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Embeds: []*discordgo.MessageEmbed{h.embeds.Success("BYTES SENT", description)},
		},
	})
}

func (h *TransferHandler) respondEphemeral(responder Responder, i *discordgo.Interaction, embed *discordgo.MessageEmbed) error {
	return responder.Respond(i, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Embeds: []*discordgo.MessageEmbed{embed},
			Flags:  discordgo.MessageFlagsEphemeral,
		},
	})
}

func (h *TransferHandler) cooldownMessage(result *economy.TransferResult) string {
	var message = result.Reason
	if message == "" {
		message = "You're sending bytes too fast."
	}
	if result.CooldownEndsAt > 0 {
		var remaining = time.Unix(result.CooldownEndsAt, 0).Sub(h.now())
		if remaining > 0 {
			message += fmt.Sprintf("\n\nTry again in **%s** (<t:%d:t>).",
				humanizeDuration(remaining), result.CooldownEndsAt)
		}
	}
	return message
}

// resolveUser derives the giver from the interaction payload, which
// carries a member in guilds and a bare user in DMs.
func (h *TransferHandler) resolveUser(ctx context.Context, guildID string, i *discordgo.Interaction) economy.User {
	if i.Member != nil {
		return modalUser{id: i.Member.User.ID, name: memberName(i.Member)}
	}
	if i.User != nil {
		var name = i.User.GlobalName
		if name == "" {
			name = i.User.Username
		}
		return modalUser{id: i.User.ID, name: name}
	}
	return modalUser{}
}

func (h *TransferHandler) displayName(ctx context.Context, guildID, userID string) string {
	if h.names != nil {
		if name, err := h.names.MemberDisplayName(ctx, guildID, userID); err == nil && name != "" {
			return name
		} else if err != nil {
			log.WithFields(log.Fields{"guild": guildID, "user": userID, "err": err}).
				Debug("member name lookup failed, using mention")
		}
	}
	return "<@" + userID + ">"
}

// transferErrorMessage maps domain errors to their user-facing text.
func transferErrorMessage(err error) string {
	var insufficient *economy.InsufficientBalanceError
	if errors.As(err, &insufficient) {
		return fmt.Sprintf("You don't have enough bytes! You need **%s** but only have **%s**.",
			formatAmount(insufficient.Required), formatAmount(insufficient.Available))
	}
	var validation *economy.ValidationError
	if errors.As(err, &validation) {
		return validation.Message
	}
	var svcErr *service.Error
	if errors.As(err, &svcErr) {
		return svcErr.Message
	}
	log.WithField("err", err).Error("transfer failed unexpectedly")
	return genericErrorMessage
}

// humanizeDuration renders a duration as "2h 15m", "45m", or "30s".
func humanizeDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Round(time.Second).Seconds()))
	}
	d = d.Round(time.Minute)
	var hours = int(d.Hours())
	var minutes = int(d.Minutes()) % 60
	if hours == 0 {
		return fmt.Sprintf("%dm", minutes)
	}
	if minutes == 0 {
		return fmt.Sprintf("%dh", hours)
	}
	return fmt.Sprintf("%dh %dm", hours, minutes)
}

// modalFields flattens the modal's rows into custom-id keyed values.
func modalFields(components []discordgo.MessageComponent) map[string]string {
	var fields = make(map[string]string)
	for _, component := range components {
		var row *discordgo.ActionsRow
		switch c := component.(type) {
		case *discordgo.ActionsRow:
			row = c
		case discordgo.ActionsRow:
			row = &c
		default:
			continue
		}
		for _, inner := range row.Components {
			switch input := inner.(type) {
			case *discordgo.TextInput:
				fields[input.CustomID] = input.Value
			case discordgo.TextInput:
				fields[input.CustomID] = input.Value
			}
		}
	}
	return fields
}
