//go:build linux

package watching

import (
	"errors"
	"os"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

// pollBufferSize accommodates a burst of raw events before a caller drains
// them; sized generously since a single inotify_event plus name can be up
// to unix.PathMax bytes.
const pollBufferSize = 64 * 1024

// Poll blocks up to timeout waiting for events, returning as soon as a read
// delivers any, or with zero events once the deadline passes. A timeout of
// zero performs a non-blocking drain and never blocks, per the spec's
// invariant that wait(0) must not block.
func (s *Source) Poll(timeout time.Duration) ([]RawEvent, error) {
	buf := make([]byte, pollBufferSize)
	if timeout <= 0 {
		// An already-expired read deadline fails the read before it is
		// attempted, so read the non-blocking descriptor directly instead.
		n, err := unix.Read(s.fd, buf)
		if err != nil {
			if errors.Is(err, unix.EAGAIN) {
				return nil, nil
			}
			return nil, os.NewSyscallError("read", err)
		}
		if n < inotifyEventHeaderSize {
			return nil, nil
		}
		return parseRawEvents(buf[:n]), nil
	}
	_ = s.file.SetReadDeadline(time.Now().Add(timeout))

	n, err := s.file.Read(buf)
	if err != nil {
		if isTimeout(err) {
			return nil, nil
		}
		return nil, err
	}
	if n < inotifyEventHeaderSize {
		return nil, nil
	}
	return parseRawEvents(buf[:n]), nil
}

// isTimeout reports whether err represents the read deadline expiring,
// which for our purposes just means "no events arrived in time", not a
// genuine I/O failure.
func isTimeout(err error) bool {
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return errors.Is(err, os.ErrDeadlineExceeded)
}

// parseRawEvents decodes a buffer of one or more back-to-back inotify_event
// structures (header + optional NUL-padded name) into RawEvents.
func parseRawEvents(buf []byte) []RawEvent {
	var events []RawEvent
	var offset uint32
	n := uint32(len(buf))
	for offset+inotifyEventHeaderSize <= n {
		raw := (*unix.InotifyEvent)(unsafe.Pointer(&buf[offset]))
		nameLen := uint32(raw.Len)

		var name string
		if nameLen > 0 {
			start := offset + inotifyEventHeaderSize
			end := start + nameLen
			if end > n {
				break
			}
			nameBytes := buf[start:end]
			name = trimNulPadding(nameBytes)
		}

		events = append(events, RawEvent{
			Descriptor: Descriptor(raw.Wd),
			Mask:       uint32(raw.Mask),
			Name:       name,
		})

		offset += inotifyEventHeaderSize + nameLen
	}
	return events
}

// trimNulPadding strips the NUL padding the kernel appends to round the
// variable-length name field up to a multiple of inotify_event's alignment.
func trimNulPadding(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}
