package chat

import (
	"context"
	"errors"

	"harold-bot/metrics"

	"go.uber.org/zap"
)

// ErrNotConfigured is returned by Ask when no API key is set.
var ErrNotConfigured = errors.New("chat completion is not configured")

// Service answers prompts with the channel's conversation as context.
type Service struct {
	completer Completer
	history   *History
	enabled   bool
	metrics   *metrics.Metrics
	log       *zap.Logger
}

// NewService builds the conversation service. A nil completer disables Ask.
func NewService(c Completer, h *History, m *metrics.Metrics, log *zap.Logger) *Service {
	return &Service{
		completer: c,
		history:   h,
		enabled:   c != nil,
		metrics:   m,
		log:       log.With(zap.String("module", "chat")),
	}
}

// Ask sends the prompt with the channel history. The history only changes
// when a reply comes back.
func (s *Service) Ask(ctx context.Context, channelID, prompt string) (string, error) {
	if !s.enabled {
		return "", ErrNotConfigured
	}

	user := Message{Role: RoleUser, Content: prompt}
	turns := s.history.trim(append(s.history.Snapshot(channelID), user))
	messages := append([]Message{Persona}, turns...)

	reply, err := s.completer.Complete(ctx, messages)
	if err != nil {
		s.metrics.ObserveChat("error")
		s.log.Warn("completion failed", zap.String("channel", channelID), zap.Error(err))
		return "", err
	}

	s.history.Append(channelID, user, Message{Role: RoleAssistant, Content: reply})
	s.metrics.ObserveChat("ok")
	return reply, nil
}

// Clear forgets the channel's conversation.
func (s *Service) Clear(channelID string) {
	s.history.Clear(channelID)
}

// Channels returns how many channels hold a conversation.
func (s *Service) Channels() int {
	return s.history.Channels()
}
