package codec

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/zlib"

	"blockfs/internal/volume"
)

// zlibCodec is the sibling of gzipCodec using the zlib framing instead of
// the gzip one. BlockFS registers both names since a header only ever
// stores one.
type zlibCodec struct {
	level int
}

func newZlib(params []byte) (Codec, error) {
	level := zlib.DefaultCompression
	if len(params) >= 1 {
		level = int(int8(params[0]))
	}
	if level < zlib.HuffmanOnly || level > zlib.BestCompression {
		return nil, fmt.Errorf("zlib: invalid level %d", level)
	}
	return zlibCodec{level: level}, nil
}

func (c zlibCodec) Name() string { return "zlib" }

func (c zlibCodec) Params() []byte {
	return []byte{byte(int8(c.level))}
}

func (c zlibCodec) Encode(raw []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := zlib.NewWriterLevel(&buf, c.level)
	if err != nil {
		return nil, fmt.Errorf("zlib: %w", err)
	}
	if _, err := w.Write(raw); err != nil {
		return nil, fmt.Errorf("zlib: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("zlib: %w", err)
	}
	return buf.Bytes(), nil
}

func (c zlibCodec) Decode(encoded []byte, vol volume.Volume) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(encoded))
	if err != nil {
		return nil, fmt.Errorf("zlib: %w", err)
	}
	defer r.Close()
	buf := bytes.NewBuffer(make([]byte, 0, vol.NominalByteSize()))
	if _, err := io.Copy(buf, r); err != nil {
		return nil, fmt.Errorf("zlib: %w", err)
	}
	return buf.Bytes(), nil
}
