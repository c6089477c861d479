package codec

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"

	"blockfs/internal/volume"
)

// gzipCodec is the default byte-oriented codec (§4.1: "zlib / gzip(level
// 0..9) — default for byte-oriented storage; level persisted"). It uses
// klauspost/compress's drop-in gzip, the same package pebble and the
// bureau daemon reach for over the stdlib implementation.
type gzipCodec struct {
	level int
}

func newGzip(params []byte) (Codec, error) {
	level := gzip.DefaultCompression
	if len(params) >= 1 {
		level = int(int8(params[0]))
	}
	if level < gzip.HuffmanOnly || level > gzip.BestCompression {
		return nil, fmt.Errorf("gzip: invalid level %d", level)
	}
	return gzipCodec{level: level}, nil
}

func (c gzipCodec) Name() string { return "gzip" }

func (c gzipCodec) Params() []byte {
	return []byte{byte(int8(c.level))}
}

func (c gzipCodec) Encode(raw []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := gzip.NewWriterLevel(&buf, c.level)
	if err != nil {
		return nil, fmt.Errorf("gzip: %w", err)
	}
	if _, err := w.Write(raw); err != nil {
		return nil, fmt.Errorf("gzip: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("gzip: %w", err)
	}
	return buf.Bytes(), nil
}

func (c gzipCodec) Decode(encoded []byte, vol volume.Volume) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(encoded))
	if err != nil {
		return nil, fmt.Errorf("gzip: %w", err)
	}
	defer r.Close()
	out := make([]byte, 0, vol.NominalByteSize())
	buf := bytes.NewBuffer(out)
	if _, err := io.Copy(buf, r); err != nil {
		return nil, fmt.Errorf("gzip: %w", err)
	}
	return buf.Bytes(), nil
}
