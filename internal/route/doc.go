// Package route resolves request paths to backends by longest matching
// prefix. Tables are built once at startup and never change afterwards.
package route
