package pipeline

import "strings"

// RouteKind is the downstream path chosen for a comment.
type RouteKind int

const (
	// RouteNone: history and moderation only.
	RouteNone RouteKind = iota
	// RouteDirect: reader persona on the comment alone, delivered as a notification.
	RouteDirect
	// RouteBroadcast: responder persona with history, delivered into the chat.
	RouteBroadcast
)

func (r RouteKind) String() string {
	switch r {
	case RouteDirect:
		return "direct"
	case RouteBroadcast:
		return "broadcast"
	default:
		return "none"
	}
}

// Tokens holds the fixed literals that address a comment.
type Tokens struct {
	// OwnerHandle is the owner mention, e.g. "@SamLePirate".
	OwnerHandle string
	// Assistant is the assistant invocation, e.g. "Gentil Robot".
	Assistant string
}

// Route decides the path for c. A comment starting with the owner handle is
// direct, even though it also satisfies the broadcast condition.
func Route(c Comment, t Tokens) RouteKind {
	text := c.Text
	if t.OwnerHandle != "" && strings.HasPrefix(text, t.OwnerHandle) {
		return RouteDirect
	}
	if affixed(text, t.OwnerHandle) || affixed(text, t.Assistant) {
		return RouteBroadcast
	}
	return RouteNone
}

func affixed(text, token string) bool {
	if token == "" {
		return false
	}
	return strings.HasPrefix(text, token) || strings.HasSuffix(text, token)
}
