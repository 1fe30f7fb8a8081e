// Package entropy expands one externally verified random word into the
// sequence of draws a level settlement needs, via salted Keccak-256
// re-hashing. Every draw is a pure function of (word, salt), so a
// settlement is replayable byte-for-byte from the word alone.
package entropy

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/sha3"
)

// Word is the 32-byte verified random value supplied for one level.
type Word [32]byte

// WordFromHex parses a 64-digit hex string, with or without 0x prefix.
func WordFromHex(s string) (Word, error) {
	var w Word
	s = strings.TrimPrefix(strings.TrimSpace(s), "0x")
	raw, err := hex.DecodeString(s)
	if err != nil {
		return w, fmt.Errorf("entropy word is not hex: %w", err)
	}
	if len(raw) != len(w) {
		return w, fmt.Errorf("entropy word is %d bytes, want %d", len(raw), len(w))
	}
	copy(w[:], raw)
	return w, nil
}

func (w Word) Hex() string { return hex.EncodeToString(w[:]) }

func (w Word) IsZero() bool { return w == Word{} }

func (w Word) MarshalText() ([]byte, error) { return []byte(w.Hex()), nil }

func (w *Word) UnmarshalText(b []byte) error {
	parsed, err := WordFromHex(string(b))
	if err != nil {
		return err
	}
	*w = parsed
	return nil
}

// Salts below sequentialBase are reserved for fixed-purpose draws (the
// winning-subbucket draw for denominator d uses salt d). Sequential draws
// issued through Next/NextWord start above the reserved range so the two
// families never collide within one settlement.
const sequentialBase = 32

// Stream derives values from one seed word. At and WordAt are pure;
// Next and NextWord advance an internal salt counter.
type Stream struct {
	seed Word
	next uint64
}

func NewStream(seed Word) *Stream {
	return &Stream{seed: seed, next: sequentialBase}
}

// At returns the uint64 derived from (seed, salt).
func (s *Stream) At(salt uint64) uint64 {
	d := s.digest(salt)
	return binary.BigEndian.Uint64(d[:8])
}

// WordAt returns the full 32-byte digest for (seed, salt), used where a
// collaborator consumes entropy itself.
func (s *Stream) WordAt(salt uint64) Word {
	return s.digest(salt)
}

// Next returns the next sequential value and advances the counter.
func (s *Stream) Next() uint64 {
	v := s.At(s.next)
	s.next++
	return v
}

// NextWord returns the next sequential 32-byte word and advances the counter.
func (s *Stream) NextWord() Word {
	w := s.WordAt(s.next)
	s.next++
	return w
}

func (s *Stream) digest(salt uint64) Word {
	h := sha3.NewLegacyKeccak256()
	h.Write(s.seed[:])
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], salt)
	h.Write(buf[:])
	var out Word
	h.Sum(out[:0])
	return out
}
