package oneshot

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// wireFile is the on-disk representation of a single Fingerprint: all
// numeric members are encoded as strings, per the persisted schema, so the
// file is trivially diffable and immune to JSON-number precision games
// across implementations.
type wireFile struct {
	Path     string `json:"p"`
	Mtime    string `json:"t"`
	Size     string `json:"s"`
	Checksum string `json:"c"`
}

// wireDb is the top-level on-disk shape: the fingerprinted files plus the
// canonical command string array the database was built against.
type wireDb struct {
	Files []wireFile `json:"files"`
	Cmd   []string   `json:"cmd"`
}

// FileDb is the in-memory mapping from relative path to Fingerprint, plus
// the command array it was last built under. It is owned exclusively by
// OneShotDiffer; its on-disk representation is mutated only via
// temp-write-then-rename.
type FileDb struct {
	Cmd   []string
	Files map[string]Fingerprint
}

// NewFileDb returns an empty database for cmd.
func NewFileDb(cmd []string) *FileDb {
	return &FileDb{Cmd: cmd, Files: make(map[string]Fingerprint)}
}

// LoadFileDb reads path and decodes it into a FileDb. A missing file is not
// an error: it yields an empty db with ok=false ("treat as empty, a fresh
// baseline"), so a first run or a hand-deleted db file doesn't abort the
// invocation. An unreadable or malformed file also yields an empty db with
// ok=false, together with an error describing the problem.
func LoadFileDb(path string) (db *FileDb, ok bool, loadErr error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return NewFileDb(nil), false, nil
		}
		return NewFileDb(nil), false, fmt.Errorf("unable to read db %q: %w", path, err)
	}

	var wire wireDb
	if err := json.Unmarshal(data, &wire); err != nil {
		return NewFileDb(nil), false, fmt.Errorf("malformed db %q: %w", path, err)
	}

	out := NewFileDb(wire.Cmd)
	for _, wf := range wire.Files {
		mtime, err := strconv.ParseInt(wf.Mtime, 10, 64)
		if err != nil {
			continue
		}
		size, err := strconv.ParseInt(wf.Size, 10, 64)
		if err != nil {
			continue
		}
		checksum, err := strconv.ParseUint(wf.Checksum, 10, 64)
		if err != nil {
			continue
		}
		out.Files[wf.Path] = withCachedChecksum(wf.Path, mtime, size, checksum)
	}
	return out, true, nil
}

// WriteTemp serializes db to a new temp file in path's directory (so a
// later rename stays on the same filesystem) and returns its path. The db
// is not advanced until CommitTemp is called; a caller that decides not to
// commit should remove the temp file itself.
func (db *FileDb) WriteTemp(path string) (tmpPath string, err error) {
	wire := wireDb{Cmd: db.Cmd}
	for p, fp := range db.Files {
		fp.mu.Lock()
		checksum := fp.checksum
		known := fp.checksumKnown
		fp.mu.Unlock()
		if !known {
			// An entry should never reach WriteTemp without a resolved
			// checksum; treat this defensively as zero rather than panic
			// mid-write.
			checksum = 0
		}
		wire.Files = append(wire.Files, wireFile{
			Path:     p,
			Mtime:    strconv.FormatInt(fp.Mtime, 10),
			Size:     strconv.FormatInt(fp.Size, 10),
			Checksum: strconv.FormatUint(checksum, 10),
		})
	}

	data, err := json.MarshalIndent(wire, "", "  ")
	if err != nil {
		return "", fmt.Errorf("unable to encode db: %w", err)
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".watchexec-db-*.tmp")
	if err != nil {
		return "", fmt.Errorf("unable to create temp db file: %w", err)
	}
	tmpPath = tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return "", fmt.Errorf("unable to write temp db file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("unable to close temp db file: %w", err)
	}
	return tmpPath, nil
}

// CommitTemp atomically advances path to the contents of tmpPath (as
// produced by WriteTemp), via rename(2).
func CommitTemp(tmpPath, path string) error {
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("unable to advance db %q: %w", path, err)
	}
	return nil
}

// Save writes and immediately commits db to path; a convenience used by
// callers that don't need the write and commit steps to straddle a child
// process execution (OneShotDiffer.Run does, via WriteTemp/CommitTemp
// directly).
func (db *FileDb) Save(path string) error {
	tmp, err := db.WriteTemp(path)
	if err != nil {
		return err
	}
	return CommitTemp(tmp, path)
}
