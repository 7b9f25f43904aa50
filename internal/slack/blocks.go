package slack

import (
	"fmt"
	"time"

	"github.com/slack-go/slack"
)

// TimeoutSummary is the plain-text fallback for a timeout notice.
func TimeoutSummary(user string, d time.Duration) string {
	return fmt.Sprintf("Timeout: %s for %s (strike threshold reached)", user, d)
}

// TimeoutBlocks builds the moderator notice posted when a user reaches the
// strike threshold. userID may be empty when the user was never seen.
func TimeoutBlocks(user, userID, channel string, d time.Duration) []slack.Block {
	who := user
	if userID != "" {
		who = fmt.Sprintf("<@%s> (%s)", userID, user)
	}
	text := fmt.Sprintf("⏱ *Timeout*\n*User:* %s\n*Duration:* %s", who, d)

	blocks := []slack.Block{
		slack.NewSectionBlock(
			slack.NewTextBlockObject("mrkdwn", text, false, false),
			nil, nil,
		),
	}
	if channel != "" {
		blocks = append(blocks, slack.NewContextBlock("",
			slack.NewTextBlockObject("mrkdwn", fmt.Sprintf("Strike threshold reached in <#%s>", channel), false, false),
		))
	}
	return blocks
}
