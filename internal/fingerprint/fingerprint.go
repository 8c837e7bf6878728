// Package fingerprint keeps luce from applying the same remediation twice for
// one source revision.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
)

// Fingerprint identifies one (source revision, instruction) pair.
type Fingerprint struct {
	SourceRef       string `json:"sourceRef"`
	InstructionHash string `json:"instructionHash"`
}

// Compute hashes the instruction with surrounding whitespace removed.
func Compute(sourceRef, instruction string) Fingerprint {
	sum := sha256.Sum256([]byte(strings.TrimSpace(instruction)))
	return Fingerprint{SourceRef: sourceRef, InstructionHash: hex.EncodeToString(sum[:])}
}

// IsZero reports whether f is the empty sentinel.
func (f Fingerprint) IsZero() bool {
	return f.SourceRef == "" && f.InstructionHash == ""
}

func (f Fingerprint) String() string {
	h := f.InstructionHash
	if len(h) > 12 {
		h = h[:12]
	}
	return fmt.Sprintf("%s/%s", f.SourceRef, h)
}

// Store persists the last recorded fingerprint.
type Store interface {
	Load() (Fingerprint, error)
	Save(Fingerprint) error
}

// Tracker answers "has this already been applied?".
type Tracker struct {
	store Store
	log   zerolog.Logger
}

func NewTracker(store Store, log zerolog.Logger) *Tracker {
	return &Tracker{store: store, log: log}
}

// ShouldSkip is true iff the stored fingerprint equals cur. Unreadable state
// is treated as empty.
func (t *Tracker) ShouldSkip(cur Fingerprint) bool {
	prev, err := t.store.Load()
	if err != nil {
		t.log.Warn().Err(err).Msg("fingerprint state unreadable, treating as empty")
		return false
	}
	if prev.IsZero() {
		return false
	}
	return prev == cur
}

// Record stores cur. Callers invoke it before committing.
func (t *Tracker) Record(cur Fingerprint) error {
	if err := t.store.Save(cur); err != nil {
		return fmt.Errorf("record fingerprint: %w", err)
	}
	t.log.Debug().Str("fingerprint", cur.String()).Msg("fingerprint recorded")
	return nil
}
