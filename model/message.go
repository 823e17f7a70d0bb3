package model

// InboundMessage is a message event as seen by the moderation pipeline
// and the command surface.
type InboundMessage struct {
	ID         string
	GuildID    string
	ChannelID  string
	AuthorID   string
	AuthorName string
	AuthorBot  bool
	// IsMember is false for direct messages and webhook posts.
	IsMember bool
	Content  string
	Mentions []string
}

// Mention returns the author mention markup.
func (m InboundMessage) Mention() string {
	return "<@" + m.AuthorID + ">"
}
