package errors

import "errors"

var (
	ErrInvalidConfig         = errors.New("invalid configuration")
	ErrInputTooLarge         = errors.New("input too large")
	ErrEmbedderMismatch      = errors.New("embedder mismatch")
	ErrSnapshotNotFound      = errors.New("snapshot not found")
	ErrSnapshotCorrupt       = errors.New("snapshot corrupt")
	ErrEmbeddingUnavailable  = errors.New("embedding backend unavailable")
	ErrGenerationUnavailable = errors.New("generation backend unavailable")
	ErrGenerationRefused     = errors.New("generation refused")
	ErrNoSnapshot            = errors.New("no active snapshot")
)

func IsSnapshotNotFound(err error) bool {
	return errors.Is(err, ErrSnapshotNotFound)
}

func IsSnapshotCorrupt(err error) bool {
	return errors.Is(err, ErrSnapshotCorrupt)
}
