package codec

import "blockfs/internal/volume"

// rawCodec stores bytes untouched: the little-endian packed voxel array in
// z,y,x order, per §4.1 and §6.
type rawCodec struct{}

func newRaw([]byte) (Codec, error) {
	return rawCodec{}, nil
}

func (rawCodec) Name() string { return "raw" }

func (rawCodec) Params() []byte { return nil }

func (rawCodec) Encode(raw []byte) ([]byte, error) {
	out := make([]byte, len(raw))
	copy(out, raw)
	return out, nil
}

func (rawCodec) Decode(encoded []byte, _ volume.Volume) ([]byte, error) {
	out := make([]byte, len(encoded))
	copy(out, encoded)
	return out, nil
}
