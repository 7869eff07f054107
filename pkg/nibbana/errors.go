package nibbana

import (
	"errors"

	"github.com/primlo/nibbana/internal/filter"
	"github.com/primlo/nibbana/internal/upload"
)

var (
	// ErrNotConfigured is returned by every Client method called before a
	// successful Configure.
	ErrNotConfigured = errors.New("nibbana: Configure must be called before any other method")

	// ErrAlreadyConfigured is returned by a second Configure. The first
	// configuration stays in effect.
	ErrAlreadyConfigured = errors.New("nibbana: already configured")

	// ErrInvalidConfiguration matches every *InvalidConfigurationError.
	ErrInvalidConfiguration = errors.New("nibbana: invalid configuration")

	// ErrUpload matches every failed upload. The entries stay buffered.
	ErrUpload = upload.ErrUpload

	// ErrInvalidFilter matches errors from PendingEntries for a where
	// expression that does not compile.
	ErrInvalidFilter = filter.ErrInvalidExpression
)

// UploadError reports a rejected or failed upload.
type UploadError = upload.Error

// InvalidConfigurationError describes why Configure rejected its Options.
type InvalidConfigurationError struct {
	Reason string
}

func (e *InvalidConfigurationError) Error() string {
	return "nibbana: invalid configuration: " + e.Reason
}

func (e *InvalidConfigurationError) Is(target error) bool {
	return target == ErrInvalidConfiguration
}

func invalid(reason string) error {
	return &InvalidConfigurationError{Reason: reason}
}
