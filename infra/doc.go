// Package infra holds the adapters behind the core interfaces: the MQTT
// bridge to the myenergi hub, the Octopus price client, the key/value
// stores, metrics sinks, Sentry reporting and the HTTP API.
package infra
