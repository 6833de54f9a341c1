// Package oneshot implements OneShotDiffer: a content-addressed filesystem
// scan against a persisted database, used in place of the live watcher for
// a single invocation.
package oneshot

import (
	"io"
	"os"
	"sync"

	"github.com/cespare/xxhash/v2"
)

// checksumChunkSize bounds the read buffer used to stream a file through
// the checksum, so memory use stays flat regardless of file size.
const checksumChunkSize = 64 * 1024

// Fingerprint identifies a file's content-relevant state: modification time
// and size cheaply, and a checksum computed lazily (and then cached) only
// when mtime+size alone can't settle whether the file changed.
type Fingerprint struct {
	Path string
	Mtime int64 // Unix seconds
	Size  int64

	mu            sync.Mutex
	checksum      uint64
	checksumKnown bool
}

// NewFingerprint stats path and returns its mtime/size fingerprint, without
// reading the file's content.
func NewFingerprint(path string) (Fingerprint, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Fingerprint{}, err
	}
	fp := Fingerprint{Path: path, Mtime: info.ModTime().Unix(), Size: info.Size()}
	if fp.Size == 0 {
		fp.checksum = 0
		fp.checksumKnown = true
	}
	return fp, nil
}

// Checksum returns the 64-bit non-cryptographic content hash, computing and
// caching it on first call. A zero-size file's checksum is always 0,
// without ever opening it.
func (fp *Fingerprint) Checksum() (uint64, error) {
	fp.mu.Lock()
	defer fp.mu.Unlock()
	if fp.checksumKnown {
		return fp.checksum, nil
	}

	f, err := os.Open(fp.Path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	h := xxhash.New()
	buf := make([]byte, checksumChunkSize)
	if _, err := io.CopyBuffer(h, f, buf); err != nil {
		return 0, err
	}

	fp.checksum = h.Sum64()
	fp.checksumKnown = true
	return fp.checksum, nil
}

// withCachedChecksum returns a copy of fp carrying a known checksum value,
// used when propagating an unchanged entry's prior checksum forward without
// recomputation.
func withCachedChecksum(path string, mtime, size int64, checksum uint64) Fingerprint {
	return Fingerprint{
		Path:          path,
		Mtime:         mtime,
		Size:          size,
		checksum:      checksum,
		checksumKnown: true,
	}
}
