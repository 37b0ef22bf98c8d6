package dispatch

import (
	"github.com/mattjoyce/herald/internal/transport"
)

//go:generate mockgen -destination=mocks/mock_bridge.go -package=mocks github.com/mattjoyce/herald/internal/dispatch Bridge,Blocklist

// Bridge is the slice of the transport the dispatcher talks to.
type Bridge interface {
	transport.Sender
	transport.GroupInspector
	SelfID() string
}

// Blocklist answers whether a sender or chat is ignored.
type Blocklist interface {
	Blocked(senderID, chatID string) bool
}
