package extraction

import (
	"errors"
	"strings"
)

var (
	// ErrExtractionFailed is returned when neither digital extraction nor OCR produced usable text.
	ErrExtractionFailed = errors.New("extraction failed")

	// ErrEmptyDocument is returned for empty buffers and zero-page documents.
	ErrEmptyDocument = errors.New("document is empty")

	// ErrNoOCRText is returned when every page was dropped or failed during OCR.
	ErrNoOCRText = errors.New("OCR produced no usable pages")

	// ErrToolNotFound is returned when an external OCR tool is not installed.
	ErrToolNotFound = errors.New("OCR tool not found in PATH")
)

const (
	hintPasswordProtected = "document is password protected"
	hintImageBased        = "document may be image-based with no extractable text"
	hintEmptyDocument     = "document has no pages"
)

// remediationHint maps the digital extractor's failure to a user-facing suggestion.
func remediationHint(digitalErr error) string {
	if digitalErr != nil {
		msg := strings.ToLower(digitalErr.Error())
		if strings.Contains(msg, "encrypt") || strings.Contains(msg, "password") {
			return hintPasswordProtected
		}
	}
	return hintImageBased
}
