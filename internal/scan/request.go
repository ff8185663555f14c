package scan

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"

	"codebot/internal/source"
)

// ErrInvalidRequest rejects a call before any scanning begins.
var ErrInvalidRequest = errors.New("scan: invalid request")

// DefaultMaxFiles is the chunk size when the request leaves it zero.
const DefaultMaxFiles = 500

// Request is one scan call. ChunkStart is the cursor returned as
// next_chunk_start by the previous chunk, or nil for the first.
type Request struct {
	RepositoryURL        string         `json:"repository_url" validate:"required,max=2048"`
	IncludeLowConfidence bool           `json:"include_low_confidence"`
	MaxFiles             int            `json:"max_files" validate:"gte=0,lte=10000"`
	ChunkStart           *source.Cursor `json:"chunk_start" validate:"omitempty,gte=0"`
}

var validate = validator.New()

// normalize validates r and fills defaults.
func (r *Request) normalize() error {
	if err := validate.Struct(r); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidRequest, describe(err))
	}
	if r.MaxFiles == 0 {
		r.MaxFiles = DefaultMaxFiles
	}
	return nil
}

func describe(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err.Error()
	}
	e := verrs[0]
	switch e.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", e.Field())
	case "gte":
		return fmt.Sprintf("%s must be at least %s", e.Field(), e.Param())
	case "lte", "max":
		return fmt.Sprintf("%s must not exceed %s", e.Field(), e.Param())
	default:
		return fmt.Sprintf("%s failed %s validation", e.Field(), e.Tag())
	}
}
