// Package healthcheck probes backend liveness on demand. Every backend is
// probed concurrently, first on its dedicated health path and then on its
// root path, and each probe yields a fresh Result.
package healthcheck
