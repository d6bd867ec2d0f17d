// Package views renders Discord interactions for the bytes economy:
// the transfer modal, its submit handler, and the embed vocabulary the
// handlers respond with.
package views

import (
	"strconv"
	"strings"

	"github.com/bwmarrin/discordgo"
)

// Embed colors.
const (
	colorSuccess  = 0x22C55E
	colorError    = 0xEF4444
	colorCooldown = 0xF59E0B
)

// EmbedGenerator builds the styled embeds handlers respond with. It's
// a constructor dependency so tests and themed deployments can swap it.
type EmbedGenerator interface {
	Success(title, description string) *discordgo.MessageEmbed
	Error(description string) *discordgo.MessageEmbed
	Cooldown(description string) *discordgo.MessageEmbed
}

// Embeds is the stock EmbedGenerator. Image URLs are optional banners
// placed on the matching embed kind.
type Embeds struct {
	SuccessImage  string
	ErrorImage    string
	CooldownImage string
}

// NewEmbeds returns the stock generator without banner images.
func NewEmbeds() *Embeds { return &Embeds{} }

func (e *Embeds) Success(title, description string) *discordgo.MessageEmbed {
	return embed(title, description, colorSuccess, e.SuccessImage)
}

func (e *Embeds) Error(description string) *discordgo.MessageEmbed {
	return embed("Error", description, colorError, e.ErrorImage)
}

func (e *Embeds) Cooldown(description string) *discordgo.MessageEmbed {
	return embed("Slow Down", description, colorCooldown, e.CooldownImage)
}

func embed(title, description string, color int, image string) *discordgo.MessageEmbed {
	var em = &discordgo.MessageEmbed{
		Title:       title,
		Description: description,
		Color:       color,
	}
	if image != "" {
		em.Image = &discordgo.MessageEmbedImage{URL: image}
	}
	return em
}

// formatAmount renders an integer with thousands separators, as in
// "12,500 bytes".
func formatAmount(n int) string {
	var s = strconv.Itoa(n)
	var negative bool
	if strings.HasPrefix(s, "-") {
		negative = true
		s = s[1:]
	}
	for i := len(s) - 3; i > 0; i -= 3 {
		s = s[:i] + "," + s[i:]
	}
	if negative {
		return "-" + s
	}
	return s
}
