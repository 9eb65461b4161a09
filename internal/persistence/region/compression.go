package region

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/pierrec/lz4/v4"
)

// Compression is the scheme tag stored in front of each chunk payload.
type Compression byte

const (
	CompressionGzip   Compression = 1
	CompressionZlib   Compression = 2
	CompressionNone   Compression = 3
	CompressionLZ4    Compression = 4
	CompressionCustom Compression = 127

	// externalFlag marks a payload stored in a separate c.<x>.<z>.mcc file.
	externalFlag byte = 0x80
)

// maxChunkBytes bounds a decompressed payload.
const maxChunkBytes = 64 << 20

func (c Compression) String() string {
	switch c {
	case CompressionGzip:
		return "gzip"
	case CompressionZlib:
		return "zlib"
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionCustom:
		return "custom"
	default:
		return fmt.Sprintf("unknown(%d)", byte(c))
	}
}

func parseCompression(tag byte) (Compression, error) {
	switch c := Compression(tag); c {
	case CompressionGzip, CompressionZlib, CompressionNone, CompressionLZ4:
		return c, nil
	case CompressionCustom:
		return c, &CompressionError{Scheme: c, Err: ErrUnsupportedCompression}
	default:
		return c, &CompressionError{Scheme: c, Err: fmt.Errorf("%w: tag %d", ErrUnknownCompression, tag)}
	}
}

func (c Compression) decompress(data []byte) ([]byte, error) {
	var r io.Reader
	switch c {
	case CompressionNone:
		return data, nil
	case CompressionGzip:
		zr, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, &CompressionError{Scheme: c, Err: err}
		}
		defer zr.Close()
		r = zr
	case CompressionZlib:
		zr, err := zlib.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, &CompressionError{Scheme: c, Err: err}
		}
		defer zr.Close()
		r = zr
	case CompressionLZ4:
		r = lz4.NewReader(bytes.NewReader(data))
	case CompressionCustom:
		return nil, &CompressionError{Scheme: c, Err: ErrUnsupportedCompression}
	default:
		return nil, &CompressionError{Scheme: c, Err: ErrUnknownCompression}
	}

	out, err := io.ReadAll(io.LimitReader(r, maxChunkBytes+1))
	if err != nil {
		return nil, &CompressionError{Scheme: c, Err: err}
	}
	if len(out) > maxChunkBytes {
		return nil, &CompressionError{Scheme: c, Err: fmt.Errorf("payload exceeds %d bytes", maxChunkBytes)}
	}
	return out, nil
}
