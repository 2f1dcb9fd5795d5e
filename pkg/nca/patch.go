package nca

// PatchEntry is one (ciphertext, absolute archive offset, size) tuple a
// patch set produces. written latches true the first time an Apply call
// consumes its tail, making repeated application idempotent per spec.md
// §4.5 / §8 invariant 6.
type PatchEntry struct {
	Ciphertext []byte
	Offset     int64
	Size       int64

	written bool
}

// Apply overlays the overlapping portion of e onto buf, where buf
// represents the archive byte range [bufOffset, bufOffset+len(buf)). It
// reports whether this call (or a prior one) has consumed the entry's
// final byte — the entry is "fully applied" once that happens, and
// further calls are no-ops that just report the latched result.
func (e *PatchEntry) Apply(buf []byte, bufOffset int64) bool {
	if e.written {
		return true
	}

	bufSize := int64(len(buf))
	bufEnd := bufOffset + bufSize
	entryEnd := e.Offset + e.Size

	if entryEnd <= bufOffset || e.Offset >= bufEnd || bufSize == 0 || e.Size == 0 {
		return false
	}

	srcStart := maxInt64(0, bufOffset-e.Offset)
	dstStart := maxInt64(0, e.Offset-bufOffset)
	remainingPatch := e.Size - srcStart
	remainingBuf := bufSize - dstStart
	n := remainingPatch
	if remainingBuf < n {
		n = remainingBuf
	}
	copy(buf[dstStart:dstStart+n], e.Ciphertext[srcStart:srcStart+n])

	if srcStart+n == e.Size {
		e.written = true
	}
	return e.written
}

// PatchSet is the full set of re-encrypted spans produced by one
// hash-tree patch generation: every rewritten hash layer, the section
// header whose master hash changed, and the archive header whose
// section-header-hash slot changed.
type PatchSet struct {
	ContentID    [16]byte
	ContentIDHex string

	Entries []*PatchEntry
}

// Apply overlays every entry of p onto buf, representing the archive
// byte range [bufOffset, bufOffset+len(buf)). Entries are independent
// and unordered; each is applied at most once across repeated calls.
func (p *PatchSet) Apply(buf []byte, bufOffset int64) {
	for _, e := range p.Entries {
		e.Apply(buf, bufOffset)
	}
}

// Written reports whether every entry in p has been fully applied across
// one or more prior Apply calls.
func (p *PatchSet) Written() bool {
	for _, e := range p.Entries {
		if !e.written {
			return false
		}
	}
	return true
}

func maxInt64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
