package bus

import "context"

// Publisher sends envelopes to a named channel.
type Publisher interface {
	Publish(ctx context.Context, channel string, msg Message) error
}

// Subscriber delivers envelopes from channels matching the given
// patterns until ctx is canceled, at which point the channel closes.
type Subscriber interface {
	Subscribe(ctx context.Context, patterns ...string) (<-chan Inbound, error)
}

// Inbound pairs a received envelope with the concrete channel it
// arrived on; pattern subscriptions need it for routing.
type Inbound struct {
	Channel string
	Message Message
}

// Bus is a full duplex transport.
type Bus interface {
	Publisher
	Subscriber
	Close() error
}
