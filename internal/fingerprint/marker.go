package fingerprint

import (
	"bufio"
	"strings"
)

const (
	SourceTrailer      = "Luce-Source"
	InstructionTrailer = "Luce-Instruction"
)

// Marker returns the commit trailer block tying a commit to its fingerprint.
func Marker(f Fingerprint) string {
	h := f.InstructionHash
	if len(h) > 12 {
		h = h[:12]
	}
	return SourceTrailer + ": " + f.SourceRef + "\n" + InstructionTrailer + ": " + h
}

// HasMarker reports whether a commit message carries the source trailer for
// sourceRef.
func HasMarker(message, sourceRef string) bool {
	if sourceRef == "" {
		return false
	}
	sc := bufio.NewScanner(strings.NewReader(message))
	for sc.Scan() {
		key, val, ok := strings.Cut(sc.Text(), ":")
		if !ok {
			continue
		}
		if strings.TrimSpace(key) == SourceTrailer && strings.TrimSpace(val) == sourceRef {
			return true
		}
	}
	return false
}
