// Package server contains the UDP datagram receiver that drives the
// reassembly core and the HTTP API for monitoring.
package server
