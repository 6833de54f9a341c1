//go:build linux

package watching

import (
	"testing"

	"github.com/joakim-brannstrom/watchexec/pkg/ignore"
)

// newExcludeFilter builds a Filter with a universal include and a single
// exclude pattern, for tests that only care about what gets filtered out.
func newExcludeFilter(t *testing.T, excludePattern string) *ignore.Filter {
	t.Helper()
	return ignore.New(nil, []string{excludePattern})
}
