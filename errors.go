package hyrecsv

import "errors"

var (
	// ErrUnsupportedFormat is returned for unrecognized input file formats.
	ErrUnsupportedFormat = errors.New("hyrecsv: unsupported document format")

	// ErrParsingFailed is returned when a document cannot be read as text.
	ErrParsingFailed = errors.New("hyrecsv: parsing failed")

	// ErrNoQuestions is returned when a document yields no records.
	ErrNoQuestions = errors.New("hyrecsv: no questions found")

	// ErrInvalidConfig is returned for invalid configuration values.
	ErrInvalidConfig = errors.New("hyrecsv: invalid configuration")

	// ErrStoreClosed is returned when operating on a closed converter.
	ErrStoreClosed = errors.New("hyrecsv: store is closed")

	// ErrDocumentNotFound is returned when a stored document does not exist.
	ErrDocumentNotFound = errors.New("hyrecsv: document not found")

	// ErrNoStore is returned by operations that need persistence when no
	// store is configured.
	ErrNoStore = errors.New("hyrecsv: no store configured")
)
