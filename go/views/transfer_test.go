package views

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/require"

	"github.com/Smarter-Dev/smarter-dev-sub002/go/economy"
	"github.com/Smarter-Dev/smarter-dev-sub002/go/service"
)

const (
	testGuild    = "111111111111111111"
	testGiver    = "222222222222222222"
	testReceiver = "333333333333333333"
)

type fakeBytes struct {
	config      *economy.GuildConfig
	configErr   error
	result      *economy.TransferResult
	transferErr error

	gotGiver    economy.User
	gotReceiver economy.User
	gotAmount   int
	gotReason   string
}

func (f *fakeBytes) GetConfig(context.Context, string, bool) (*economy.GuildConfig, error) {
	if f.config == nil && f.configErr == nil {
		return &economy.GuildConfig{MaxTransfer: economy.MaxTransferAmount}, nil
	}
	return f.config, f.configErr
}

func (f *fakeBytes) Transfer(_ context.Context, _ string, giver, receiver economy.User, amount int, reason string) (*economy.TransferResult, error) {
	f.gotGiver, f.gotReceiver = giver, receiver
	f.gotAmount, f.gotReason = amount, reason
	return f.result, f.transferErr
}

type fakeResponder struct {
	responses []*discordgo.InteractionResponse
}

func (f *fakeResponder) Respond(_ *discordgo.Interaction, r *discordgo.InteractionResponse) error {
	f.responses = append(f.responses, r)
	return nil
}

func (f *fakeResponder) last(t *testing.T) *discordgo.InteractionResponseData {
	t.Helper()
	require.Len(t, f.responses, 1)
	return f.responses[0].Data
}

type fakeNamer struct {
	names map[string]string
}

func (f *fakeNamer) MemberDisplayName(_ context.Context, _, userID string) (string, error) {
	if name, ok := f.names[userID]; ok {
		return name, nil
	}
	return "", errors.New("unknown member")
}

func submitInteraction(amount, reason string) *discordgo.Interaction {
	return &discordgo.Interaction{
		Type:    discordgo.InteractionModalSubmit,
		GuildID: testGuild,
		Member: &discordgo.Member{
			Nick: "Alice",
			User: &discordgo.User{ID: testGiver, Username: "alice"},
		},
		Data: discordgo.ModalSubmitInteractionData{
			CustomID: TransferModalPrefix + testReceiver,
			Components: []discordgo.MessageComponent{
				discordgo.ActionsRow{Components: []discordgo.MessageComponent{
					discordgo.TextInput{CustomID: "amount", Value: amount},
				}},
				discordgo.ActionsRow{Components: []discordgo.MessageComponent{
					discordgo.TextInput{CustomID: "reason", Value: reason},
				}},
			},
		},
	}
}

func newTestHandler(bytes *fakeBytes) (*TransferHandler, *fakeResponder) {
	var h = NewTransferHandler(bytes, NewEmbeds(), &fakeNamer{
		names: map[string]string{testReceiver: "Bob"},
	})
	h.now = func() time.Time { return time.Unix(1_700_000_000, 0) }
	return h, &fakeResponder{}
}

func TestTransferModalShape(t *testing.T) {
	var modal = TransferModal(testReceiver)
	require.Equal(t, discordgo.InteractionResponseModal, modal.Type)
	require.Equal(t, TransferModalPrefix+testReceiver, modal.Data.CustomID)
	require.Len(t, modal.Data.Components, 2)

	var amount = modal.Data.Components[0].(discordgo.ActionsRow).
		Components[0].(discordgo.TextInput)
	require.Equal(t, "amount", amount.CustomID)
	require.Equal(t, discordgo.TextInputShort, amount.Style)
	require.True(t, amount.Required)

	var reason = modal.Data.Components[1].(discordgo.ActionsRow).
		Components[0].(discordgo.TextInput)
	require.Equal(t, "reason", reason.CustomID)
	require.Equal(t, discordgo.TextInputParagraph, reason.Style)
	require.False(t, reason.Required)
	require.Equal(t, maxReasonLength, reason.MaxLength)
}

func TestIsTransferModal(t *testing.T) {
	require.True(t, IsTransferModal(TransferModalPrefix+testReceiver))
	require.False(t, IsTransferModal("challenge_input:abc"))
}

func TestHandleSubmitSuccess(t *testing.T) {
	var bytes = &fakeBytes{result: &economy.TransferResult{
		Success:         true,
		NewGiverBalance: 400,
	}}
	h, responder := newTestHandler(bytes)

	var err = h.HandleSubmit(context.Background(), responder, submitInteraction("1500", "great code review"))
	require.NoError(t, err)

	require.Equal(t, 1500, bytes.gotAmount)
	require.Equal(t, "great code review", bytes.gotReason)
	require.Equal(t, testGiver, bytes.gotGiver.ID())
	require.Equal(t, "Alice", bytes.gotGiver.DisplayName())
	require.Equal(t, testReceiver, bytes.gotReceiver.ID())
	require.Equal(t, "Bob", bytes.gotReceiver.DisplayName())

	var data = responder.last(t)
	require.Zero(t, data.Flags&discordgo.MessageFlagsEphemeral, "success must be public")
	require.Len(t, data.Embeds, 1)
	require.Equal(t, "BYTES SENT", data.Embeds[0].Title)
	require.Contains(t, data.Embeds[0].Description, "Alice sent 1,500 bytes to Bob")
	require.Contains(t, data.Embeds[0].Description, "**Reason:** great code review")
}

func TestHandleSubmitRejectsBadAmounts(t *testing.T) {
	var cases = []struct {
		name, amount, wantMessage string
	}{
		{"non-numeric", "lots", "whole number"},
		{"zero", "0", "at least 1"},
		{"negative", "-5", "at least 1"},
		{"over guild max", "6000", "can't exceed 5,000 bytes"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var bytes = &fakeBytes{config: &economy.GuildConfig{MaxTransfer: 5000}}
			h, responder := newTestHandler(bytes)

			require.NoError(t, h.HandleSubmit(context.Background(), responder, submitInteraction(tc.amount, "")))
			require.Zero(t, bytes.gotAmount, "transfer must not run")

			var data = responder.last(t)
			require.NotZero(t, data.Flags&discordgo.MessageFlagsEphemeral)
			require.Contains(t, data.Embeds[0].Description, tc.wantMessage)
		})
	}
}

func TestHandleSubmitCooldown(t *testing.T) {
	var endsAt = int64(1_700_000_000 + 2*3600 + 15*60)
	var bytes = &fakeBytes{result: &economy.TransferResult{
		Reason:          "Transfer cooldown active.",
		IsCooldownError: true,
		CooldownEndsAt:  endsAt,
	}}
	h, responder := newTestHandler(bytes)

	require.NoError(t, h.HandleSubmit(context.Background(), responder, submitInteraction("100", "")))

	var data = responder.last(t)
	require.NotZero(t, data.Flags&discordgo.MessageFlagsEphemeral)
	require.Equal(t, "Slow Down", data.Embeds[0].Title)
	require.Contains(t, data.Embeds[0].Description, "2h 15m")
	require.Contains(t, data.Embeds[0].Description, fmt.Sprintf("<t:%d:t>", endsAt))
}

func TestHandleSubmitRefusalReason(t *testing.T) {
	var bytes = &fakeBytes{result: &economy.TransferResult{
		Reason: "You can't send bytes to yourself!",
	}}
	h, responder := newTestHandler(bytes)

	require.NoError(t, h.HandleSubmit(context.Background(), responder, submitInteraction("100", "")))

	var data = responder.last(t)
	require.NotZero(t, data.Flags&discordgo.MessageFlagsEphemeral)
	require.Equal(t, "You can't send bytes to yourself!", data.Embeds[0].Description)
}

func TestHandleSubmitErrorMapping(t *testing.T) {
	var cases = []struct {
		name        string
		err         error
		wantMessage string
	}{
		{
			"insufficient balance",
			&economy.InsufficientBalanceError{Required: 1500, Available: 200, Operation: "transfer"},
			"You need **1,500** but only have **200**",
		},
		{
			"validation",
			&economy.ValidationError{Field: "userId", Message: "Invalid user id."},
			"Invalid user id.",
		},
		{
			"service",
			&service.Error{Code: service.CodeInternal, Message: "Service temporarily unavailable"},
			"Service temporarily unavailable",
		},
		{
			"unexpected",
			errors.New("dial tcp: connection refused"),
			genericErrorMessage,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var bytes = &fakeBytes{transferErr: tc.err}
			h, responder := newTestHandler(bytes)

			require.NoError(t, h.HandleSubmit(context.Background(), responder, submitInteraction("100", "")))

			var data = responder.last(t)
			require.NotZero(t, data.Flags&discordgo.MessageFlagsEphemeral)
			require.Contains(t, data.Embeds[0].Description, tc.wantMessage)
		})
	}
}

func TestHandleSubmitUnknownCustomID(t *testing.T) {
	var bytes = &fakeBytes{}
	h, responder := newTestHandler(bytes)

	var i = submitInteraction("100", "")
	i.Data = discordgo.ModalSubmitInteractionData{CustomID: "something_else"}
	require.Error(t, h.HandleSubmit(context.Background(), responder, i))
	require.Empty(t, responder.responses)
}

func TestReceiverNameFallsBackToMention(t *testing.T) {
	var bytes = &fakeBytes{result: &economy.TransferResult{Success: true}}
	var h = NewTransferHandler(bytes, NewEmbeds(), &fakeNamer{})
	var responder = &fakeResponder{}

	require.NoError(t, h.HandleSubmit(context.Background(), responder, submitInteraction("100", "")))
	require.Equal(t, "<@"+testReceiver+">", bytes.gotReceiver.DisplayName())
}

func TestFormatAmount(t *testing.T) {
	require.Equal(t, "0", formatAmount(0))
	require.Equal(t, "999", formatAmount(999))
	require.Equal(t, "1,000", formatAmount(1000))
	require.Equal(t, "12,500", formatAmount(12500))
	require.Equal(t, "1,234,567", formatAmount(1234567))
	require.Equal(t, "-1,000", formatAmount(-1000))
}

func TestHumanizeDuration(t *testing.T) {
	require.Equal(t, "30s", humanizeDuration(30*time.Second))
	require.Equal(t, "45m", humanizeDuration(45*time.Minute))
	require.Equal(t, "2h", humanizeDuration(2*time.Hour))
	require.Equal(t, "2h 15m", humanizeDuration(2*time.Hour+15*time.Minute))
}
