// Package notifications delivers job milestones via pluggable notifiers.
//
// The default implementation publishes to ntfy using the topic configured in
// config.toml and gracefully degrades to a no-op when notifications are
// disabled. Workflow code depends only on the Service interface, so alternate
// transports can be added without touching stage handlers.
package notifications
