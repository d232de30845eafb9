package events

import "context"

// NoopPublisher drops every event. It is used when BRIDGE_NATS_URL is unset.
type NoopPublisher struct{}

var _ Publisher = (*NoopPublisher)(nil)

func (n *NoopPublisher) Publish(context.Context, string, any) error { return nil }

func (n *NoopPublisher) Close() error { return nil }
