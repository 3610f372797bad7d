package types

import "errors"

// Error taxonomy. Pipeline errors wrap exactly one of these sentinels so
// that callers can classify failures with errors.Is regardless of how many
// layers of context were added along the way.
var (
	// ErrInvalidArgument marks caller mistakes: malformed regions, unknown
	// constellations or bands, inconsistent tile sets. Never retried.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrTransientIO marks network or storage failures that may succeed on
	// redelivery.
	ErrTransientIO = errors.New("transient I/O failure")

	// ErrDataCorruption marks source assets that exist but cannot be decoded.
	ErrDataCorruption = errors.New("data corruption")

	// ErrArchiveInconsistency marks archives whose layout does not match the
	// task being stored, e.g. a missing time or band slot.
	ErrArchiveInconsistency = errors.New("archive inconsistency")
)
