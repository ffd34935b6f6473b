package question

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedBlock is reported when a block cannot produce a valid
	// record (no options, too few or too many, or an empty option).
	ErrMalformedBlock = errors.New("question: malformed question block")

	// ErrAnswerOutOfRange is reported when the resolved answer index does
	// not point at one of the block's options.
	ErrAnswerOutOfRange = errors.New("question: answer index out of range")

	// ErrAmbiguousAnswer is reported when no answer notation matched.
	ErrAmbiguousAnswer = errors.New("question: no answer notation matched")

	// ErrImageUpload is reported when an inline image could not be uploaded.
	ErrImageUpload = errors.New("question: inline image upload failed")

	// ErrNonSequentialOptions is reported when option letters skip or repeat.
	ErrNonSequentialOptions = errors.New("question: option letters are not sequential")

	// ErrOptionsTruncated is reported when a block has more options than
	// the output table has option columns.
	ErrOptionsTruncated = errors.New("question: options exceed the table's option columns")
)

// Kind classifies a diagnostic.
type Kind int

const (
	KindMalformedBlock Kind = iota + 1
	KindAnswerOutOfRange
	KindAmbiguousAnswer
	KindImageUploadFailure
	KindNonSequentialOptions
	KindOptionsTruncated
)

func (k Kind) String() string {
	switch k {
	case KindMalformedBlock:
		return "MalformedQuestionBlock"
	case KindAnswerOutOfRange:
		return "AnswerOutOfRange"
	case KindAmbiguousAnswer:
		return "AmbiguousAnswerNotation"
	case KindImageUploadFailure:
		return "ImageUploadFailure"
	case KindNonSequentialOptions:
		return "NonSequentialOptions"
	case KindOptionsTruncated:
		return "OptionsTruncated"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// MarshalText encodes the kind by name.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText decodes a kind written by MarshalText.
func (k *Kind) UnmarshalText(b []byte) error {
	for c := KindMalformedBlock; c <= KindOptionsTruncated; c++ {
		if c.String() == string(b) {
			*k = c
			return nil
		}
	}
	return fmt.Errorf("question: unknown diagnostic kind %q", b)
}

func (k Kind) sentinel() error {
	switch k {
	case KindMalformedBlock:
		return ErrMalformedBlock
	case KindAnswerOutOfRange:
		return ErrAnswerOutOfRange
	case KindAmbiguousAnswer:
		return ErrAmbiguousAnswer
	case KindImageUploadFailure:
		return ErrImageUpload
	case KindNonSequentialOptions:
		return ErrNonSequentialOptions
	case KindOptionsTruncated:
		return ErrOptionsTruncated
	}
	return nil
}

// Diagnostic is a non-fatal problem found while parsing one block.
// Diagnostics are accumulated and returned next to the records; they
// implement error so callers can match them with errors.Is.
type Diagnostic struct {
	Kind    Kind   `json:"kind"`
	Block   int    `json:"block"`  // 0-based block ordinal within the document
	Number  int    `json:"number"` // question number as written, 0 if none
	Line    int    `json:"line"`   // 1-based line where the block starts
	Message string `json:"message"`
	Err     error  `json:"-"`
}

func (d Diagnostic) Error() string {
	msg := fmt.Sprintf("%s: block %d (question %d, line %d): %s", d.Kind, d.Block, d.Number, d.Line, d.Message)
	if d.Err != nil {
		msg += ": " + d.Err.Error()
	}
	return msg
}

// Unwrap exposes the kind's sentinel and the underlying cause.
func (d Diagnostic) Unwrap() []error {
	errs := make([]error, 0, 2)
	if s := d.Kind.sentinel(); s != nil {
		errs = append(errs, s)
	}
	if d.Err != nil {
		errs = append(errs, d.Err)
	}
	return errs
}

// Warning reports whether the diagnostic leaves the record untouched.
func (d Diagnostic) Warning() bool {
	return d.Kind == KindNonSequentialOptions
}

func newDiagnostic(kind Kind, b RawBlock, format string, args ...any) Diagnostic {
	return Diagnostic{
		Kind:    kind,
		Block:   b.Index,
		Number:  b.Number,
		Line:    b.Line,
		Message: fmt.Sprintf(format, args...),
	}
}
