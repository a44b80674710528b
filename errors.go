package aggui

import (
	"context"
	"errors"
	"io"

	"github.com/a-h/templ"

	"github.com/pthm/aggui/lib/encoding"
)

// Sentinel errors for component operations.
var (
	ErrNotFound         = errors.New("aggui: resource not found")
	ErrDecryptFailed    = errors.New("aggui: parameter decryption failed")
	ErrSignatureInvalid = errors.New("aggui: signature verification failed")
	ErrInvalidFormat    = errors.New("aggui: invalid parameter format")
	ErrHydrationFailed  = errors.New("aggui: hydration failed")
)

// IsNotFound checks if err is a not-found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsDecryptionError checks if err is a decryption or signature error.
func IsDecryptionError(err error) bool {
	return errors.Is(err, ErrDecryptFailed) || errors.Is(err, ErrSignatureInvalid)
}

// WrapDecodeError maps props codec errors onto the package sentinels.
// Other errors pass through unchanged.
func WrapDecodeError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, encoding.ErrInvalidFormat):
		return ErrInvalidFormat
	case errors.Is(err, encoding.ErrSignatureInvalid):
		return ErrSignatureInvalid
	case errors.Is(err, encoding.ErrDecryptFailed):
		return ErrDecryptFailed
	}
	return err
}

// ErrorComponent renders a hydration failure in place of a component.
func ErrorComponent(err error) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		_, werr := io.WriteString(w, `<div class="aggui-error">Hydration error: `+templ.EscapeString(err.Error())+`</div>`)
		return werr
	})
}
