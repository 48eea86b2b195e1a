// Package notifications delivers push notifications about batch lifecycle
// events via ntfy, degrading to a noop service when no topic is configured.
package notifications
