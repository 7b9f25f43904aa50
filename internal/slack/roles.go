package slack

import "github.com/p-blackswan/chatkeeper/internal/commands"

// Roles maps Slack user IDs to command levels. Everyone else is a viewer.
type Roles struct {
	Broadcaster string
	Moderators  []string
	Subscribers []string
}

// LevelFor returns the highest level userID holds.
func (r Roles) LevelFor(userID string) commands.Level {
	if userID != "" && userID == r.Broadcaster {
		return commands.LevelBroadcaster
	}
	for _, id := range r.Moderators {
		if id == userID {
			return commands.LevelMod
		}
	}
	for _, id := range r.Subscribers {
		if id == userID {
			return commands.LevelSubscriber
		}
	}
	return commands.LevelNone
}
