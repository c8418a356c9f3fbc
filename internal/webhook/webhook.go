// ABOUTME: Outbound Discord webhook messages
// ABOUTME: Builds the message body and executes it through discordgo
package webhook

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"

	"github.com/bwmarrin/discordgo"
)

// MaxFields is the number of fields Discord accepts on one embed.
const MaxFields = 25

// ErrInvalidURL is returned when a webhook URL has no id and token.
var ErrInvalidURL = errors.New("invalid webhook url")

// Field is one embed field.
type Field struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

// Embed is the single embed a message may carry.
type Embed struct {
	Color         int     `json:"color"`
	AuthorName    string  `json:"author_name"`
	AuthorURL     string  `json:"author_url"`
	AuthorIconURL string  `json:"author_icon_url"`
	Title         string  `json:"title"`
	URL           string  `json:"url"`
	Description   string  `json:"description"`
	Fields        []Field `json:"fields"`
	ThumbnailURL  string  `json:"thumbnail_url"`
	ImageURL      string  `json:"image_url"`
	Footer        string  `json:"footer"`
	FooterIconURL string  `json:"footer_icon_url"`
	Timestamp     string  `json:"timestamp"`
}

// AllowedMentions holds space separated lists.
type AllowedMentions struct {
	Parse string `json:"parse"`
	Roles string `json:"roles"`
	Users string `json:"users"`
}

// Message is a webhook message as configured on a button. Text fields may
// contain $(discord:<name>) placeholders.
type Message struct {
	URL             string           `json:"url"`
	Username        string           `json:"username"`
	AvatarURL       string           `json:"avatar_url"`
	Content         string           `json:"content"`
	TTS             bool             `json:"tts"`
	Embed           *Embed           `json:"embed,omitempty"`
	AllowedMentions *AllowedMentions `json:"allowed_mentions,omitempty"`
}

// ParseURL extracts the webhook id and token from
// https://discord.com/api/webhooks/{id}/{token}.
func ParseURL(raw string) (id, token string, err error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return "", "", ErrInvalidURL
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i, p := range parts {
		if p != "webhooks" || i+2 >= len(parts) {
			continue
		}
		id, token = parts[i+1], parts[i+2]
		if id != "" && token != "" {
			return id, token, nil
		}
	}
	return "", "", ErrInvalidURL
}

// Params builds the discordgo request body with placeholders expanded.
func (m Message) Params(vars map[string]string) *discordgo.WebhookParams {
	params := &discordgo.WebhookParams{
		Content:   Expand(m.Content, vars),
		Username:  Expand(m.Username, vars),
		AvatarURL: Expand(m.AvatarURL, vars),
		TTS:       m.TTS,
	}
	if m.Embed != nil {
		params.Embeds = []*discordgo.MessageEmbed{m.Embed.build(vars)}
	}
	if am := m.AllowedMentions; am != nil {
		mentions := &discordgo.MessageAllowedMentions{}
		for _, p := range strings.Fields(Expand(am.Parse, vars)) {
			mentions.Parse = append(mentions.Parse, discordgo.AllowedMentionType(p))
		}
		mentions.Roles = strings.Fields(Expand(am.Roles, vars))
		mentions.Users = strings.Fields(Expand(am.Users, vars))
		params.AllowedMentions = mentions
	}
	return params
}

func (e *Embed) build(vars map[string]string) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{
		Color:       e.Color,
		Title:       Expand(e.Title, vars),
		URL:         Expand(e.URL, vars),
		Description: Expand(e.Description, vars),
		Timestamp:   Expand(e.Timestamp, vars),
	}
	if e.AuthorName != "" {
		embed.Author = &discordgo.MessageEmbedAuthor{
			Name:    Expand(e.AuthorName, vars),
			URL:     Expand(e.AuthorURL, vars),
			IconURL: Expand(e.AuthorIconURL, vars),
		}
	}
	// Fields stop at the first one without a name.
	for _, f := range e.Fields {
		if f.Name == "" || len(embed.Fields) == MaxFields {
			break
		}
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:   Expand(f.Name, vars),
			Value:  Expand(f.Value, vars),
			Inline: f.Inline,
		})
	}
	if e.ThumbnailURL != "" {
		embed.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: Expand(e.ThumbnailURL, vars)}
	}
	if e.ImageURL != "" {
		embed.Image = &discordgo.MessageEmbedImage{URL: Expand(e.ImageURL, vars)}
	}
	if e.Footer != "" {
		embed.Footer = &discordgo.MessageEmbedFooter{
			Text:    Expand(e.Footer, vars),
			IconURL: Expand(e.FooterIconURL, vars),
		}
	}
	return embed
}

// Config holds sender configuration
type Config struct {
	// HTTPClient replaces discordgo's default client.
	HTTPClient *http.Client
	Debug      bool
}

// Sender executes webhooks. It needs no bot token.
type Sender struct {
	session *discordgo.Session
	debug   bool
}

// NewSender creates a webhook sender
func NewSender(config Config) (*Sender, error) {
	s, err := discordgo.New("")
	if err != nil {
		return nil, fmt.Errorf("failed to create discord session: %w", err)
	}
	if config.HTTPClient != nil {
		s.Client = config.HTTPClient
	}
	return &Sender{session: s, debug: config.Debug}, nil
}

// Send posts m to its webhook URL.
func (s *Sender) Send(ctx context.Context, m Message, vars map[string]string) error {
	id, token, err := ParseURL(Expand(m.URL, vars))
	if err != nil {
		return err
	}

	params := m.Params(vars)
	if s.debug {
		log.Printf("webhook: executing %s with %d embed(s)", id, len(params.Embeds))
	}

	if _, err := s.session.WebhookExecute(id, token, false, params, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("webhook %s: %w", id, err)
	}
	return nil
}
