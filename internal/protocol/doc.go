// Package protocol implements the fixed-layout binary datagram codec.
// It decodes and validates chunk headers in both the legacy 32-byte and
// extended 36-byte wire variants and encodes outgoing datagrams.
package protocol
