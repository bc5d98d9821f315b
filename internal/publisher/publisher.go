// Package publisher announces finished exports to downstream consumers.
package publisher

import "context"

// Publisher sends payload, JSON encoded, to topic and returns the message id.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}
