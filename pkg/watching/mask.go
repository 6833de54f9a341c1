//go:build linux

package watching

import (
	"golang.org/x/sys/unix"

	"github.com/joakim-brannstrom/watchexec/pkg/event"
)

// inotifyMaskFor translates an event.Mask (the content/metadata class
// selector) into the raw IN_* bits to register with inotify_add_watch.
// DeleteSelf and MoveSelf are always included regardless of class, since
// the RecursiveMonitor depends on them to keep the WatchSet in sync
// irrespective of which classes the operator asked to observe.
func inotifyMaskFor(mask event.Mask) uint32 {
	bits := uint32(unix.IN_DELETE_SELF | unix.IN_MOVE_SELF)
	if mask&event.MaskContent != 0 {
		bits |= unix.IN_CREATE | unix.IN_DELETE | unix.IN_MODIFY |
			unix.IN_MOVED_FROM | unix.IN_MOVED_TO | unix.IN_CLOSE_WRITE
	}
	if mask&event.MaskMetadata != 0 {
		bits |= unix.IN_ACCESS | unix.IN_ATTRIB | unix.IN_CLOSE_NOWRITE | unix.IN_OPEN
	}
	return bits
}

// classifyMask maps a single raw inotify mask value to our EventKind. A
// kernel event ordinarily carries exactly one content/metadata bit (plus
// possibly IN_ISDIR, handled separately by the caller), so the first
// matching case wins.
func classifyMask(mask uint32) (event.Kind, bool) {
	switch {
	case mask&unix.IN_ACCESS != 0:
		return event.Access, true
	case mask&unix.IN_ATTRIB != 0:
		return event.Attribute, true
	case mask&unix.IN_CLOSE_WRITE != 0:
		return event.CloseWrite, true
	case mask&unix.IN_CLOSE_NOWRITE != 0:
		return event.CloseNoWrite, true
	case mask&unix.IN_CREATE != 0:
		return event.Create, true
	case mask&unix.IN_MOVED_TO != 0:
		return event.Rename, true
	case mask&unix.IN_MOVED_FROM != 0:
		// A moved-away child no longer exists at this path; for trigger
		// purposes that's indistinguishable from a delete.
		return event.Delete, true
	case mask&unix.IN_DELETE != 0:
		return event.Delete, true
	case mask&unix.IN_DELETE_SELF != 0:
		return event.DeleteSelf, true
	case mask&unix.IN_MODIFY != 0:
		return event.Modify, true
	case mask&unix.IN_MOVE_SELF != 0:
		return event.MoveSelf, true
	case mask&unix.IN_OPEN != 0:
		return event.Open, true
	default:
		return 0, false
	}
}
