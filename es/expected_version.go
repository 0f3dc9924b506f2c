package es

import "fmt"

// ExpectedVersion is the caller's claim about a stream's current version,
// checked by stores before appending.
type ExpectedVersion struct {
	value int64
}

const (
	versionAny      = -1
	versionNoStream = -2
)

// Any skips the version check.
func Any() ExpectedVersion {
	return ExpectedVersion{value: versionAny}
}

// NoStream requires that the stream has no events yet.
func NoStream() ExpectedVersion {
	return ExpectedVersion{value: versionNoStream}
}

// Exact requires the stream to be at version. Exact(0) is equivalent to
// NoStream. It panics on a negative version.
func Exact(version int64) ExpectedVersion {
	if version < 0 {
		panic(fmt.Sprintf("exact version must be non-negative, got %d", version))
	}
	return ExpectedVersion{value: version}
}

// IsAny reports whether no version check is performed.
func (ev ExpectedVersion) IsAny() bool {
	return ev.value == versionAny
}

// IsNoStream reports whether the stream must not exist.
func (ev ExpectedVersion) IsNoStream() bool {
	return ev.value == versionNoStream
}

// IsExact reports whether the stream must be at a specific version.
func (ev ExpectedVersion) IsExact() bool {
	return ev.value >= 0
}

// Value returns the version of an Exact expectation, 0 otherwise.
func (ev ExpectedVersion) Value() int64 {
	if ev.value >= 0 {
		return ev.value
	}
	return 0
}

// Satisfied reports whether a stream currently at version current meets the
// expectation. A stream without events is at version 0.
func (ev ExpectedVersion) Satisfied(current int64) bool {
	switch {
	case ev.IsAny():
		return true
	case ev.IsNoStream():
		return current == 0
	default:
		return current == ev.value
	}
}

func (ev ExpectedVersion) String() string {
	switch {
	case ev.IsAny():
		return "Any"
	case ev.IsNoStream():
		return "NoStream"
	}
	return fmt.Sprintf("Exact(%d)", ev.value)
}
