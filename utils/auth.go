package utils

import "harold-bot/model"

// IsGuildOwner reports whether userID owns the guild. Privileged commands
// are restricted to the owner identity.
func IsGuildOwner(p model.Platform, guildID, userID string) (bool, error) {
	ownerID, err := p.GuildOwnerID(guildID)
	if err != nil {
		return false, err
	}
	return ownerID != "" && ownerID == userID, nil
}
