// Package chat keeps per-channel conversations with the completion API.
package chat

import (
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Persona is prepended to every completion request.
var Persona = Message{
	Role: RoleSystem,
	Content: "You are Harold, a witty and helpful Discord bot. " +
		"Keep your responses short, no more than 5 to 6 sentences at most, " +
		"but shorter is usually better. Be concise and conversational. " +
		"Always finish your thoughts completely and never leave a sentence unfinished.",
}

// History holds the most recent turns of each channel. The number of
// channels is bounded; the least recently used channel is forgotten first.
type History struct {
	mu       sync.Mutex
	maxTurns int
	channels *lru.Cache[string, []Message]
}

func NewHistory(maxTurns, maxChannels int) (*History, error) {
	if maxTurns <= 0 {
		return nil, fmt.Errorf("max history must be positive, got %d", maxTurns)
	}
	cache, err := lru.New[string, []Message](maxChannels)
	if err != nil {
		return nil, fmt.Errorf("create history cache: %w", err)
	}
	return &History{maxTurns: maxTurns, channels: cache}, nil
}

// Snapshot returns a copy of the channel's turns, oldest first.
func (h *History) Snapshot(channelID string) []Message {
	h.mu.Lock()
	defer h.mu.Unlock()
	turns, _ := h.channels.Get(channelID)
	return append([]Message(nil), turns...)
}

// Append adds turns and drops the oldest beyond the limit.
func (h *History) Append(channelID string, msgs ...Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	turns, _ := h.channels.Get(channelID)
	turns = h.trim(append(append([]Message(nil), turns...), msgs...))
	h.channels.Add(channelID, turns)
}

// Clear forgets the channel's conversation.
func (h *History) Clear(channelID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.channels.Remove(channelID)
}

func (h *History) Len(channelID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	turns, _ := h.channels.Peek(channelID)
	return len(turns)
}

// Channels returns how many channels have a conversation.
func (h *History) Channels() int {
	return h.channels.Len()
}

func (h *History) trim(turns []Message) []Message {
	if len(turns) > h.maxTurns {
		return turns[len(turns)-h.maxTurns:]
	}
	return turns
}
