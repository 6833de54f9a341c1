package ignore

// DefaultPatterns is the built-in exclude set applied unless
// --no-default-ignore is given. It covers common editor swap files, VCS
// metadata, and compiled Python artifacts that are almost never useful to
// trigger a rebuild.
var DefaultPatterns = []string{
	"**/.DS_Store",
	"*.py[co]",
	"**/#*#",
	"**/.#*",
	"**/.*.kate-swp",
	"**/.*.sw?",
	"**/.*.sw?x",
	"**/.git/**",
}
