// Package notify publishes member status transitions to interested
// observers without binding the engine to any rendering technology.
package notify

import (
	"github.com/anemtools/rdvwatcher/internal/core/domain"
)

// Event is one member status transition.
type Event struct {
	MemberID string        `json:"member_id"`
	Status   domain.Status `json:"status"`
	Detail   string        `json:"detail"`
	Icon     string        `json:"icon"`
}

// NameEvent reports newly fetched identity data for a member.
type NameEvent struct {
	MemberID string `json:"member_id"`
	NomAr    string `json:"nom_ar"`
	PrenomAr string `json:"prenom_ar"`
}

// Notifier receives engine events. Implementations must not block; slow
// consumers are expected to drop.
type Notifier interface {
	MemberUpdated(Event)
	NameFetched(NameEvent)
	Log(message string)
}

// Nop discards all events.
type Nop struct{}

func (Nop) MemberUpdated(Event)   {}
func (Nop) NameFetched(NameEvent) {}
func (Nop) Log(string)            {}

// Chan forwards events onto buffered channels, dropping when a consumer
// falls behind.
type Chan struct {
	Events chan Event
	Names  chan NameEvent
	Lines  chan string
}

// NewChan creates a channel notifier with the given buffer size.
func NewChan(buffer int) *Chan {
	return &Chan{
		Events: make(chan Event, buffer),
		Names:  make(chan NameEvent, buffer),
		Lines:  make(chan string, buffer),
	}
}

func (c *Chan) MemberUpdated(e Event) {
	select {
	case c.Events <- e:
	default:
	}
}

func (c *Chan) NameFetched(e NameEvent) {
	select {
	case c.Names <- e:
	default:
	}
}

func (c *Chan) Log(message string) {
	select {
	case c.Lines <- message:
	default:
	}
}

// Multi fans out to several notifiers.
type Multi []Notifier

func (m Multi) MemberUpdated(e Event) {
	for _, n := range m {
		n.MemberUpdated(e)
	}
}

func (m Multi) NameFetched(e NameEvent) {
	for _, n := range m {
		n.NameFetched(e)
	}
}

func (m Multi) Log(message string) {
	for _, n := range m {
		n.Log(message)
	}
}
