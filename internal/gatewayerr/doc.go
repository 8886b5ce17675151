// Package gatewayerr translates forwarding failures into the gateway's fixed
// JSON error shapes. Raw network errors are classified and logged by callers;
// only the translated fields are ever written to a client.
package gatewayerr
