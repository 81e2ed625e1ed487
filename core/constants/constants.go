package constants

const (
	Version = "v0.1.0"

	// DatasetVersion is bumped whenever the dust dataset columns change.
	DatasetVersion = "1"
)
