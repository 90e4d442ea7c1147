package decoder

import (
	"errors"
	"fmt"
)

var (
	// ErrPassphraseRequired is wrapped by a DecryptionError when an encrypted
	// workbook is submitted without a passphrase.
	ErrPassphraseRequired = errors.New("workbook is encrypted and no passphrase was supplied")
	// ErrWrongPassphrase is wrapped by a DecryptionError when decryption fails.
	ErrWrongPassphrase = errors.New("workbook passphrase is not correct")
	// ErrUnsupportedSource is wrapped when the source type is unknown.
	ErrUnsupportedSource = errors.New("unsupported source type")
)

// MalformedSourceError reports an input that cannot be decoded into rows: an
// empty file, a file without a recognizable header, or a corrupt container.
type MalformedSourceError struct {
	Reason string
	Err    error
}

func (e *MalformedSourceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed source: %s: %v", e.Reason, e.Err)
	}
	return "malformed source: " + e.Reason
}

func (e *MalformedSourceError) Unwrap() error { return e.Err }

// DecryptionError reports an encrypted workbook that could not be opened with
// the supplied passphrase.
type DecryptionError struct {
	Err error
}

func (e *DecryptionError) Error() string {
	return fmt.Sprintf("failed to decrypt workbook: %v", e.Err)
}

func (e *DecryptionError) Unwrap() error { return e.Err }

func malformed(reason string, err error) error {
	return &MalformedSourceError{Reason: reason, Err: err}
}
