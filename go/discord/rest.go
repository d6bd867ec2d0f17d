// Package discord is the minimal Discord REST surface the schedulers
// and views depend on: message creation, pinning, and forum posts,
// plus the error classification the retry policies are written
// against. It wraps a discordgo session.
package discord

import (
	"context"

	"github.com/bwmarrin/discordgo"
)

// Poster is the capability handed to schedulers. Implementations must
// be safe for concurrent use.
type Poster interface {
	// CreateMessage posts content to a channel and returns the new
	// message id. roleMentions controls whether <@&role> tokens ping.
	CreateMessage(ctx context.Context, channelID, content string, components []discordgo.MessageComponent, roleMentions bool) (string, error)
	// CreateForumPost opens a new forum thread with an initial message.
	CreateForumPost(ctx context.Context, channelID, name, content string) (string, error)
	// PinMessage pins a previously created message.
	PinMessage(ctx context.Context, channelID, messageID string) error
}

// Rest implements Poster over a discordgo session.
type Rest struct {
	session *discordgo.Session
}

// NewRest wraps a connected session.
func NewRest(session *discordgo.Session) *Rest {
	return &Rest{session: session}
}

func (r *Rest) CreateMessage(ctx context.Context, channelID, content string, components []discordgo.MessageComponent, roleMentions bool) (string, error) {
	var allowed = &discordgo.MessageAllowedMentions{}
	if roleMentions {
		allowed.Parse = []discordgo.AllowedMentionType{discordgo.AllowedMentionTypeRoles}
	}
	var msg, err = r.session.ChannelMessageSendComplex(channelID, &discordgo.MessageSend{
		Content:         content,
		Components:      components,
		AllowedMentions: allowed,
	}, discordgo.WithContext(ctx))
	if err != nil {
		return "", err
	}
	return msg.ID, nil
}

func (r *Rest) CreateForumPost(ctx context.Context, channelID, name, content string) (string, error) {
	var thread, err = r.session.ForumThreadStart(channelID, name, 0, content,
		discordgo.WithContext(ctx))
	if err != nil {
		return "", err
	}
	return thread.ID, nil
}

func (r *Rest) PinMessage(ctx context.Context, channelID, messageID string) error {
	return r.session.ChannelMessagePin(channelID, messageID, discordgo.WithContext(ctx))
}
