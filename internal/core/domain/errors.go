package domain

import (
	"errors"
	"fmt"
)

var (
	ErrSourceNotFound   = errors.New("source not found")
	ErrDocumentNotFound = errors.New("document not found")
	ErrJobNotFound      = errors.New("ingest job not found")
	ErrJobTerminal      = errors.New("ingest job already terminal")
	ErrInvalidInput     = errors.New("invalid input")
	ErrChunkConfig      = errors.New("invalid chunking configuration")
	ErrEnumeration      = errors.New("source enumeration failed")
	ErrTemporary        = errors.New("temporary failure")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}
