// Package util contains misc internal utilities.
package util

import (
	"net"
	"time"
)

// SetBit returns b with the given bit set to on
func SetBit(b byte, bitIndex uint, on bool) byte {
	if on {
		return b | (1 << bitIndex)
	}
	return b &^ (1 << bitIndex)
}

// GetBit returns the value of a given bit in a byte
func GetBit(b byte, bitIndex uint) bool {
	return (b>>bitIndex)&1 == 1
}

// Clamp restricts x to the range [low, high]
func Clamp(x, low, high float64) float64 {
	if x < low {
		return low
	}
	if x > high {
		return high
	}
	return x
}

// TCPSetup opens a new TCP connection and sets a timeout on connect, read, and write
func TCPSetup(addr string, timeout time.Duration) (net.Conn, error) {
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, err
	}
	deadline := time.Now().Add(timeout)
	conn.SetReadDeadline(deadline)
	conn.SetWriteDeadline(deadline)
	return conn, nil
}
