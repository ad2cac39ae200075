package pipeline

import (
	"fmt"
	"time"
)

// Comment is one chat message received from the stream.
type Comment struct {
	Identity   string
	Text       string
	ReceivedAt time.Time
}

// NewComment stamps a comment with the current UTC time.
func NewComment(identity, text string) Comment {
	return Comment{Identity: identity, Text: text, ReceivedAt: time.Now().UTC()}
}

// Line renders the comment the way prompts list it: "identity: text".
func (c Comment) Line() string { return fmt.Sprintf("%s: %s", c.Identity, c.Text) }

// Connect is emitted once per stream session before any comment.
type Connect struct {
	ChannelID string
	RoomID    string
}
