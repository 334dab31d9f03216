// Package fpm provides the host side of the fingerprint module protocol.
package fpm

// The fingerprint module is driven over a serial link with fixed 8-byte
// frames in both directions:
//
//	[0xF5][cmd][p1][p2][p3][0x00][checksum][0xF5]
//
// The checksum is the XOR of bytes 1 to 5. The host computes it for every
// request but never checks it on replies: the module is trusted and a
// mismatch is only reported as a diagnostic.
//
// Every operation is a single synchronous request/reply. Enrollment is the
// only multi-frame flow and is driven by the caller as three independent
// steps with a settle delay between them.
//
// Producer: fingerprint module
// Consumer: host
