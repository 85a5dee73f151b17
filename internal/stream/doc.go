// Package stream owns the table of concurrently in-flight frame assemblies:
// chunk routing by frame identity, capacity-gated eviction of stale
// assemblies, and throughput tracking over completion events.
package stream
