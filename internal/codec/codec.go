// Package codec implements the encode/decode pairs BlockFS stores blocks
// with: a stateless function pair resolved by name from a registry at
// Directory.Open time.
package codec

import (
	"fmt"

	"blockfs/internal/volume"
)

// Codec is the capability required of any block codec: deterministic
// encode and its inverse decode, satisfying decode(encode(b)) == b for
// lossless codecs (or a documented PSNR bound for lossy ones).
type Codec interface {
	// Name is the string persisted in the directory header.
	Name() string

	// Params returns the codec-specific opaque parameter bytes persisted
	// alongside Name in the header (e.g. a gzip level, a PSNR target).
	Params() []byte

	// Encode compresses/transforms a block's raw bytes (the `raw`-codec
	// little-endian z,y,x layout) for storage.
	Encode(raw []byte) ([]byte, error)

	// Decode reverses Encode, given the volume parameters needed to
	// reconstruct shape (dtype, nominal element count).
	Decode(encoded []byte, vol volume.Volume) ([]byte, error)
}

// BlockAwareCodec is implemented by codecs whose encoding needs the
// volume's block shape rather than just a flat byte slice — the two
// per-z-slice image codecs. The WriterPool's encodeBlock checks for this
// interface and calls EncodeBlock instead of Encode when present.
type BlockAwareCodec interface {
	Codec
	EncodeBlock(raw []byte, vol volume.Volume) ([]byte, error)
}

// Factory builds a Codec from its persisted parameter bytes, used when
// resolving a codec by name at open time.
type Factory func(params []byte) (Codec, error)

var registry = map[string]Factory{}

func register(name string, f Factory) {
	registry[name] = f
}

// ErrUnsupportedCodec is returned by Resolve for a name absent from the
// registry.
var ErrUnsupportedCodec = fmt.Errorf("codec: unsupported")

// Resolve looks up name in the registry and constructs a Codec from
// params. It is the single entry point Directory.Open and Directory.Create
// use to turn a header's codec name/params pair into a working Codec.
func Resolve(name string, params []byte) (Codec, error) {
	f, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedCodec, name)
	}
	return f(params)
}

func init() {
	register("raw", newRaw)
	register("gzip", newGzip)
	register("zlib", newZlib)
	register("lz4", newLZ4)
	register("lossless-image", newLosslessImage)
	register("jpeg2000", newJPEG2000)
}
