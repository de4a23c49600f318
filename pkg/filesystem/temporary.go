package filesystem

const (
	// TemporaryNamePrefix is the file name prefix used for all temporary files
	// created by Spread outside of the cache and hash-task staging areas
	// (which use their own ".___tmp"-suffixed convention). It may be suffixed
	// with additional elements if desired.
	TemporaryNamePrefix = ".spread-temporary-"
)
