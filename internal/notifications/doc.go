// Package notifications publishes job events to an ntfy topic.
//
// NewService returns a noop implementation when no topic is configured, so
// callers can publish unconditionally. Individual events are toggled through
// the [notifications] config section.
package notifications
