package region

import (
	"errors"
	"fmt"
)

var (
	ErrRegionNotFound = errors.New("region: region file not found")
	ErrChunkNotExist  = errors.New("region: chunk not present in region file")
	ErrRegionInvalid  = errors.New("region: region file is invalid")

	ErrUnknownCompression     = errors.New("region: unknown compression scheme")
	ErrUnsupportedCompression = errors.New("region: custom compression is not supported")

	ErrChunkNotGenerated = errors.New("region: chunk is not fully generated")
)

// IsNotFound reports whether err means there is simply no data for the chunk.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrRegionNotFound) || errors.Is(err, ErrChunkNotExist)
}

// CompressionError is an unusable compression tag or a decompressor failure.
// Err is ErrUnsupportedCompression, ErrUnknownCompression or the decoder's error.
type CompressionError struct {
	Scheme Compression
	Err    error
}

func (e *CompressionError) Error() string {
	return fmt.Sprintf("region: %s compression: %v", e.Scheme, e.Err)
}

func (e *CompressionError) Unwrap() error { return e.Err }

// ParsingError means the decompressed payload is not a usable chunk.
type ParsingError struct {
	X, Z int32
	Err  error
}

func (e *ParsingError) Error() string {
	return fmt.Sprintf("region: parse chunk %d,%d: %v", e.X, e.Z, e.Err)
}

func (e *ParsingError) Unwrap() error { return e.Err }
