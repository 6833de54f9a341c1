// Package event defines the typed event vocabulary shared by the watching,
// run loop, and one-shot components: the kinds of filesystem change a
// watcher can report, and the (kind, path) pairs that make up a change-set.
package event

import "fmt"

// Kind is a closed tagged variant identifying the nature of a filesystem
// change notification. New members require a matching case at every
// consumer that switches on Kind; there is no default "unknown" fallback by
// design, so adding a kind is a compile-time obligation.
type Kind uint8

const (
	// Access indicates that a file's contents were read.
	Access Kind = iota
	// Attribute indicates a metadata-only change (permissions, owner, xattrs).
	Attribute
	// CloseWrite indicates a file opened for writing was closed.
	CloseWrite
	// CloseNoWrite indicates a file opened read-only was closed.
	CloseNoWrite
	// Create indicates a new file or directory appeared.
	Create
	// Delete indicates a file or directory was removed from a watched
	// directory.
	Delete
	// DeleteSelf indicates a watched directory itself was removed.
	DeleteSelf
	// Modify indicates a file's contents were written.
	Modify
	// MoveSelf indicates a watched directory itself was renamed or moved.
	MoveSelf
	// Rename indicates a file or directory was moved into or within a
	// watched directory; the associated Path is the destination.
	Rename
	// Open indicates a file was opened.
	Open
)

// String returns the human-readable name of the event kind, used both in
// log lines and in the WATCHEXEC_EVENT encoding.
func (k Kind) String() string {
	switch k {
	case Access:
		return "access"
	case Attribute:
		return "attribute"
	case CloseWrite:
		return "close_write"
	case CloseNoWrite:
		return "close_nowrite"
	case Create:
		return "create"
	case Delete:
		return "delete"
	case DeleteSelf:
		return "delete_self"
	case Modify:
		return "modify"
	case MoveSelf:
		return "move_self"
	case Rename:
		return "rename"
	case Open:
		return "open"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Class distinguishes the two event subclasses the watcher mask selects
// between: changes to file content/existence versus changes to metadata
// alone.
type Class uint8

const (
	// ClassContent covers kinds that indicate a file or directory's
	// existence or bytes changed.
	ClassContent Class = iota
	// ClassMetadata covers kinds that are purely informational accesses or
	// attribute changes.
	ClassMetadata
)

// Class reports which subclass a Kind belongs to.
func (k Kind) Class() Class {
	switch k {
	case CloseWrite, Create, Modify, Delete, DeleteSelf, MoveSelf, Rename:
		return ClassContent
	case Access, Attribute, CloseNoWrite, Open:
		return ClassMetadata
	default:
		return ClassContent
	}
}

// Mask is a bitmask over the two event classes, used to configure a watcher
// with the set of classes it should report.
type Mask uint8

const (
	// MaskContent selects content events.
	MaskContent Mask = 1 << iota
	// MaskMetadata selects metadata events.
	MaskMetadata
)

// Enabled reports whether the given Kind's class is selected by the mask.
func (m Mask) Enabled(k Kind) bool {
	switch k.Class() {
	case ClassContent:
		return m&MaskContent != 0
	case ClassMetadata:
		return m&MaskMetadata != 0
	default:
		return false
	}
}

// DefaultMask watches content events only, matching the CLI default (the
// --meta flag adds MaskMetadata).
const DefaultMask = MaskContent
