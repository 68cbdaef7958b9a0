package random

import (
	cryptorand "crypto/rand"
	"encoding/binary"
	mathrand "math/rand"
	"time"
)

// Source produces uniform floats in [0, 1). Implementations carry no
// state between calls; tests inject a deterministic fake.
type Source interface {
	Float64() float64
}

// CryptoTimeSource mixes a cryptographically secure draw with a
// time-derived perturbation, so two draws issued in the same
// microsecond by different operations still diverge.
type CryptoTimeSource struct{}

// NewCryptoTimeSource returns the default production source.
func NewCryptoTimeSource() CryptoTimeSource {
	return CryptoTimeSource{}
}

// Float64 returns a uniform value in [0, 1).
func (CryptoTimeSource) Float64() float64 {
	cryptoVal := secureFloat()

	// Sub-millisecond clock phase folded into [0, 1).
	timeEntropy := float64(time.Now().UnixNano()%1e6) / 1e6

	v := cryptoVal + timeEntropy
	if v >= 1 {
		v -= 1
	}
	return v
}

// secureFloat reads 53 random bits from crypto/rand. On reader failure
// it falls back to math/rand rather than blocking a draw.
func secureFloat() float64 {
	var buf [8]byte
	if _, err := cryptorand.Read(buf[:]); err != nil {
		return mathrand.Float64()
	}
	u := binary.BigEndian.Uint64(buf[:]) >> 11
	return float64(u) / (1 << 53)
}
