// Package config loads the gateway configuration from a YAML file and
// environment variables. It describes the listen address, the backend
// services and their route prefixes, forwarding and probe timeouts, and the
// cross-origin policy.
package config
