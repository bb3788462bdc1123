package domain

import (
	"fmt"
	"maps"
	"strings"
	"unicode/utf8"
)

// Channel identifies the communication medium an input arrived on.
type Channel string

const (
	ChannelURL   Channel = "url"
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
	ChannelVoice Channel = "voice"
)

// Channels returns every supported channel in a stable order.
func Channels() []Channel {
	return []Channel{ChannelURL, ChannelEmail, ChannelSMS, ChannelVoice}
}

// Valid reports whether c is one of the supported channels.
func (c Channel) Valid() bool {
	switch c {
	case ChannelURL, ChannelEmail, ChannelSMS, ChannelVoice:
		return true
	}
	return false
}

// RawInput is the unprocessed payload handed to the engine.
// Build it with one of the New*Input constructors and treat it as read-only afterwards.
type RawInput struct {
	Channel Channel `json:"channel"`

	// Text is the URL, email body, SMS content or call transcript.
	Text string `json:"text"`

	// Metadata
	Sender          string  `json:"sender,omitempty"`
	Subject         string  `json:"subject,omitempty"`
	RawHeaders      string  `json:"rawHeaders,omitempty"`
	DurationSeconds float64 `json:"durationSeconds,omitempty"`

	// Voice only
	AudioFeatures map[string]any `json:"audioFeatures,omitempty"`
	VoiceAnalysis map[string]any `json:"voiceAnalysis,omitempty"`
}

// NewURLInput wraps a URL string for analysis.
func NewURLInput(url string) RawInput {
	return RawInput{Channel: ChannelURL, Text: url}
}

// NewEmailInput wraps an email for analysis. rawHeaders may be empty.
func NewEmailInput(sender, subject, body, rawHeaders string) RawInput {
	return RawInput{
		Channel:    ChannelEmail,
		Text:       body,
		Sender:     sender,
		Subject:    subject,
		RawHeaders: rawHeaders,
	}
}

// NewSMSInput wraps an SMS for analysis. sender may be empty.
func NewSMSInput(content, sender string) RawInput {
	return RawInput{Channel: ChannelSMS, Text: content, Sender: sender}
}

// NewVoiceInput wraps a call transcript and its optional audio measurements.
// The maps are copied so later changes by the caller do not leak into the input.
func NewVoiceInput(durationSeconds float64, transcript string, audioFeatures, voiceAnalysis map[string]any) RawInput {
	return RawInput{
		Channel:         ChannelVoice,
		Text:            transcript,
		DurationSeconds: durationSeconds,
		AudioFeatures:   maps.Clone(audioFeatures),
		VoiceAnalysis:   maps.Clone(voiceAnalysis),
	}
}

const previewRunes = 80

// Summary is a short human-readable label for history listings:
// the URL, the sender, or a preview of the content.
func (in RawInput) Summary() string {
	switch {
	case in.Channel == ChannelURL:
		return preview(in.Text)
	case in.Sender != "":
		return in.Sender
	case in.Channel == ChannelVoice && in.Text == "":
		return fmt.Sprintf("call (%.0fs)", in.DurationSeconds)
	}
	return preview(in.Text)
}

func preview(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if utf8.RuneCountInString(s) <= previewRunes {
		return s
	}
	r := []rune(s)
	return string(r[:previewRunes]) + "..."
}
