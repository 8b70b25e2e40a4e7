package imageapi

import (
	"errors"
	"fmt"
)

var (
	// ErrNoImage is returned when the provider answers 2xx without image data.
	ErrNoImage = errors.New("no image returned from provider")

	// ErrUnavailable wraps transport failures talking to the provider.
	ErrUnavailable = errors.New("image provider unavailable")
)

// ProviderError is a non-2xx answer from the image provider. Body is the raw
// response, capped at maxErrorBytes.
type ProviderError struct {
	StatusCode  int
	ContentType string
	Body        []byte
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("image provider returned status %d", e.StatusCode)
}
