// Package frame implements per-frame chunk reassembly: a fixed-size
// reconstruction buffer plus a received-chunk bitset with duplicate and
// out-of-range rejection.
package frame
