// Package platformtest provides an in-memory model.Platform for tests.
package platformtest

import (
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"harold-bot/model"

	"github.com/bwmarrin/discordgo"
)

// SentMessage is one message posted through the fake.
type SentMessage struct {
	ChannelID string
	ID        string
	Msg       *discordgo.MessageSend
}

// Call records one platform invocation.
type Call struct {
	Op     string
	Target string
}

var readOnlyOps = map[string]bool{
	"FetchMessage":  true,
	"InVoice":       true,
	"GuildRoles":    true,
	"MemberRoles":   true,
	"GuildChannels": true,
	"GuildOwnerID":  true,

	"ClearMemberOverwrite.missing": true,
}

// Fake is a goroutine-safe model.Platform backed by maps.
type Fake struct {
	mu     sync.Mutex
	nextID int

	sent       []SentMessage
	messages   map[string]*discordgo.Message
	deleted    []string
	timeouts   map[string]*time.Time
	voice      map[string]bool
	voiceState map[string][2]bool
	roles      map[string][]*discordgo.Role
	members    map[string][]string
	channels   map[string][]*discordgo.Channel
	overwrites map[string]model.Overwrite
	owners     map[string]string
	errs       map[string]error
	calls      []Call
}

func New() *Fake {
	return &Fake{
		messages:   make(map[string]*discordgo.Message),
		timeouts:   make(map[string]*time.Time),
		voice:      make(map[string]bool),
		voiceState: make(map[string][2]bool),
		roles:      make(map[string][]*discordgo.Role),
		members:    make(map[string][]string),
		channels:   make(map[string][]*discordgo.Channel),
		overwrites: make(map[string]model.Overwrite),
		owners:     make(map[string]string),
		errs:       make(map[string]error),
	}
}

func key(a, b string) string { return a + "/" + b }

// FailWith makes op fail with err. target narrows the failure to one
// channel, member or message ("" matches every target).
func (f *Fake) FailWith(op, target string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if target == "" {
		f.errs[op] = err
		return
	}
	f.errs[op+":"+target] = err
}

func (f *Fake) failure(op, target string) error {
	if err, ok := f.errs[op+":"+target]; ok {
		return err
	}
	return f.errs[op]
}

func (f *Fake) record(op, target string) error {
	f.calls = append(f.calls, Call{Op: op, Target: target})
	return f.failure(op, target)
}

// Seeding helpers.

func (f *Fake) AddGuildRole(guildID, roleID, name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.roles[guildID] = append(f.roles[guildID], &discordgo.Role{ID: roleID, Name: name})
}

func (f *Fake) AddChannel(guildID, channelID, name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.channels[guildID] = append(f.channels[guildID], &discordgo.Channel{ID: channelID, GuildID: guildID, Name: name})
}

func (f *Fake) SetMemberRoles(guildID, userID string, roleIDs ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.members[key(guildID, userID)] = slices.Clone(roleIDs)
}

func (f *Fake) SetInVoice(guildID, userID string, in bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.voice[key(guildID, userID)] = in
}

func (f *Fake) SetOwner(guildID, userID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.owners[guildID] = userID
}

func (f *Fake) SetOverwrite(channelID, userID string, ow model.Overwrite) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.overwrites[key(channelID, userID)] = ow
}

// React adds n user reactions with emoji to a stored message.
func (f *Fake) React(messageID, emoji string, n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	msg, ok := f.messages[messageID]
	if !ok {
		return
	}
	for _, r := range msg.Reactions {
		if r.Emoji != nil && r.Emoji.Name == emoji {
			r.Count += n
			return
		}
	}
	msg.Reactions = append(msg.Reactions, &discordgo.MessageReactions{Count: n, Emoji: &discordgo.Emoji{Name: emoji}})
}

// ClearReaction removes every reaction with emoji from a stored message.
func (f *Fake) ClearReaction(messageID, emoji string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	msg, ok := f.messages[messageID]
	if !ok {
		return
	}
	msg.Reactions = slices.DeleteFunc(msg.Reactions, func(r *discordgo.MessageReactions) bool {
		return r.Emoji != nil && r.Emoji.Name == emoji
	})
}

// RemoveMessage deletes a stored message as if a moderator removed it.
func (f *Fake) RemoveMessage(messageID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.messages, messageID)
}

// Inspection helpers.

func (f *Fake) Sent() []SentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.sent)
}

// SentContents returns the text of every message posted to channelID,
// including embed titles and descriptions.
func (f *Fake) SentContents(channelID string) []string {
	var out []string
	for _, s := range f.Sent() {
		if s.ChannelID != channelID {
			continue
		}
		if s.Msg.Content != "" {
			out = append(out, s.Msg.Content)
		}
		for _, e := range s.Msg.Embeds {
			out = append(out, e.Title+"\n"+e.Description)
		}
	}
	return out
}

func (f *Fake) Reactions(messageID string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	msg, ok := f.messages[messageID]
	if !ok {
		return nil
	}
	var out []string
	for _, r := range msg.Reactions {
		out = append(out, r.Emoji.Name)
	}
	return out
}

func (f *Fake) Deleted() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.deleted)
}

func (f *Fake) Timeout(guildID, userID string) *time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.timeouts[key(guildID, userID)]
}

func (f *Fake) MemberRoleIDs(guildID, userID string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.members[key(guildID, userID)])
}

func (f *Fake) VoiceState(guildID, userID string) (mute, deafen bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	st := f.voiceState[key(guildID, userID)]
	return st[0], st[1]
}

func (f *Fake) Overwrite(channelID, userID string) (model.Overwrite, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ow, ok := f.overwrites[key(channelID, userID)]
	return ow, ok
}

func (f *Fake) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.calls)
}

// MutatingCalls returns the calls that would change platform state.
func (f *Fake) MutatingCalls() []Call {
	var out []Call
	for _, c := range f.Calls() {
		if !readOnlyOps[c.Op] {
			out = append(out, c)
		}
	}
	return out
}

// model.Platform implementation.

func (f *Fake) Send(channelID string, msg *discordgo.MessageSend) (*discordgo.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("Send", channelID); err != nil {
		return nil, err
	}
	f.nextID++
	id := fmt.Sprintf("m%d", f.nextID)
	f.sent = append(f.sent, SentMessage{ChannelID: channelID, ID: id, Msg: msg})
	stored := &discordgo.Message{ID: id, ChannelID: channelID, Content: msg.Content, Embeds: msg.Embeds}
	f.messages[id] = stored
	return &discordgo.Message{ID: id, ChannelID: channelID, Content: msg.Content, Embeds: msg.Embeds}, nil
}

func (f *Fake) AddReaction(channelID, messageID, emoji string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("AddReaction", messageID); err != nil {
		return err
	}
	msg, ok := f.messages[messageID]
	if !ok {
		return model.ErrNotFound
	}
	for _, r := range msg.Reactions {
		if r.Emoji != nil && r.Emoji.Name == emoji {
			if !r.Me {
				r.Me = true
				r.Count++
			}
			return nil
		}
	}
	msg.Reactions = append(msg.Reactions, &discordgo.MessageReactions{Count: 1, Me: true, Emoji: &discordgo.Emoji{Name: emoji}})
	return nil
}

func (f *Fake) FetchMessage(channelID, messageID string) (*discordgo.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("FetchMessage", messageID); err != nil {
		return nil, err
	}
	msg, ok := f.messages[messageID]
	if !ok {
		return nil, fmt.Errorf("message %s: %w", messageID, model.ErrNotFound)
	}
	cp := *msg
	cp.Reactions = make([]*discordgo.MessageReactions, 0, len(msg.Reactions))
	for _, r := range msg.Reactions {
		rc := *r
		cp.Reactions = append(cp.Reactions, &rc)
	}
	return &cp, nil
}

func (f *Fake) DeleteMessage(channelID, messageID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("DeleteMessage", messageID); err != nil {
		return err
	}
	delete(f.messages, messageID)
	f.deleted = append(f.deleted, messageID)
	return nil
}

func (f *Fake) TimeoutMember(guildID, userID string, until *time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("TimeoutMember", userID); err != nil {
		return err
	}
	f.timeouts[key(guildID, userID)] = until
	return nil
}

func (f *Fake) InVoice(guildID, userID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, Call{Op: "InVoice", Target: userID})
	return f.voice[key(guildID, userID)]
}

func (f *Fake) SetVoiceState(guildID, userID string, mute, deafen bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("SetVoiceState", userID); err != nil {
		return err
	}
	f.voiceState[key(guildID, userID)] = [2]bool{mute, deafen}
	return nil
}

func (f *Fake) GuildRoles(guildID string) ([]*discordgo.Role, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("GuildRoles", guildID); err != nil {
		return nil, err
	}
	return slices.Clone(f.roles[guildID]), nil
}

func (f *Fake) MemberRoles(guildID, userID string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("MemberRoles", userID); err != nil {
		return nil, err
	}
	return slices.Clone(f.members[key(guildID, userID)]), nil
}

func (f *Fake) AddRole(guildID, userID, roleID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("AddRole", roleID); err != nil {
		return err
	}
	k := key(guildID, userID)
	if !slices.Contains(f.members[k], roleID) {
		f.members[k] = append(f.members[k], roleID)
	}
	return nil
}

func (f *Fake) RemoveRole(guildID, userID, roleID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("RemoveRole", roleID); err != nil {
		return err
	}
	k := key(guildID, userID)
	f.members[k] = slices.DeleteFunc(f.members[k], func(id string) bool { return id == roleID })
	return nil
}

func (f *Fake) GuildChannels(guildID string) ([]*discordgo.Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("GuildChannels", guildID); err != nil {
		return nil, err
	}
	out := make([]*discordgo.Channel, 0, len(f.channels[guildID]))
	for _, ch := range f.channels[guildID] {
		cp := *ch
		cp.PermissionOverwrites = f.memberOverwrites(ch.ID)
		out = append(out, &cp)
	}
	return out, nil
}

// memberOverwrites lists the overwrites of channelID ordered by member ID,
// as the API reports them.
func (f *Fake) memberOverwrites(channelID string) []*discordgo.PermissionOverwrite {
	var out []*discordgo.PermissionOverwrite
	for k, ow := range f.overwrites {
		ch, userID, _ := strings.Cut(k, "/")
		if ch != channelID {
			continue
		}
		out = append(out, &discordgo.PermissionOverwrite{
			ID:    userID,
			Type:  discordgo.PermissionOverwriteTypeMember,
			Allow: ow.Allow,
			Deny:  ow.Deny,
		})
	}
	slices.SortFunc(out, func(a, b *discordgo.PermissionOverwrite) int {
		return strings.Compare(a.ID, b.ID)
	})
	return out
}

func (f *Fake) SetMemberOverwrite(channelID, userID string, overwrite model.Overwrite) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("SetMemberOverwrite", channelID); err != nil {
		return err
	}
	f.overwrites[key(channelID, userID)] = overwrite
	return nil
}

// ClearMemberOverwrite behaves like the real API: clearing an overwrite
// that does not exist reports ErrNotFound.
func (f *Fake) ClearMemberOverwrite(channelID, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := key(channelID, userID)
	if _, ok := f.overwrites[k]; !ok {
		f.calls = append(f.calls, Call{Op: "ClearMemberOverwrite.missing", Target: channelID})
		return fmt.Errorf("overwrite %s: %w", k, model.ErrNotFound)
	}
	if err := f.record("ClearMemberOverwrite", channelID); err != nil {
		return err
	}
	delete(f.overwrites, k)
	return nil
}

func (f *Fake) GuildOwnerID(guildID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("GuildOwnerID", guildID); err != nil {
		return "", err
	}
	owner, ok := f.owners[guildID]
	if !ok {
		return "", fmt.Errorf("guild %s: %w", guildID, model.ErrNotFound)
	}
	return owner, nil
}

var _ model.Platform = (*Fake)(nil)
