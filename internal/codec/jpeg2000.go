package codec

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"

	"blockfs/internal/bits"
	"blockfs/internal/volume"
)

// jpeg2000Codec is §4.1's lossy `jpeg2000(psnr)` option. No pure-Go,
// ecosystem-real JPEG2000 encoder exists anywhere in the retrieval pack;
// rather than vendor a fake module, BlockFS approximates it with stdlib
// image/jpeg, deriving a JPEG quality parameter from the requested PSNR
// target. This is a documented approximation, not a faithful PSNR
// guarantee — see DESIGN.md. The codec name and PSNR parameter byte are
// still the ones persisted, so a genuine JPEG2000 codec can replace this
// one later without a directory-format change.
type jpeg2000Codec struct {
	psnr uint8 // target PSNR in dB, as given; only the derived quality is clamped
}

func newJPEG2000(params []byte) (Codec, error) {
	psnr := uint8(45)
	if len(params) >= 1 {
		psnr = params[0]
	}
	return jpeg2000Codec{psnr: psnr}, nil
}

func (c jpeg2000Codec) Name() string { return "jpeg2000" }

func (c jpeg2000Codec) Params() []byte { return []byte{c.psnr} }

// qualityFromPSNR maps a PSNR target to a JPEG quality 1..100. The mapping
// is monotonic and deliberately simple: every +1dB of target asks for
// roughly +1.2 quality, clamped to the valid range.
func (c jpeg2000Codec) qualityFromPSNR() int {
	q := int(c.psnr)*12/10 - 10
	if q < 1 {
		q = 1
	}
	if q > 100 {
		q = 100
	}
	return q
}

func (jpeg2000Codec) Encode(raw []byte) ([]byte, error) {
	return nil, fmt.Errorf("jpeg2000: use EncodeBlock")
}

func (c jpeg2000Codec) Decode(encoded []byte, vol volume.Volume) ([]byte, error) {
	if vol.DType != volume.U8 {
		return nil, fmt.Errorf("jpeg2000: unsupported dtype %s", vol.DType)
	}
	r := bits.NewReader(encoded)
	sliceElems := int(vol.BX) * int(vol.BY)
	out := make([]byte, 0, vol.NominalByteSize())
	for z := 0; z < int(vol.BZ); z++ {
		n, err := r.ReadU32()
		if err != nil {
			return nil, fmt.Errorf("jpeg2000: slice %d length: %w", z, err)
		}
		frame, err := r.ReadBytes(int(n))
		if err != nil {
			return nil, fmt.Errorf("jpeg2000: slice %d frame: %w", z, err)
		}
		img, err := jpeg.Decode(bytes.NewReader(frame))
		if err != nil {
			return nil, fmt.Errorf("jpeg2000: slice %d decode: %w", z, err)
		}
		gray, ok := img.(*image.Gray)
		if !ok {
			return nil, fmt.Errorf("jpeg2000: expected grayscale frame")
		}
		slice := make([]byte, sliceElems)
		copy(slice, gray.Pix)
		out = append(out, slice...)
	}
	return out, nil
}

// EncodeBlock mirrors losslessImageCodec.EncodeBlock's per-slice framing.
func (c jpeg2000Codec) EncodeBlock(raw []byte, vol volume.Volume) ([]byte, error) {
	if vol.DType != volume.U8 {
		return nil, fmt.Errorf("jpeg2000: unsupported dtype %s", vol.DType)
	}
	w := bits.NewWriter(nil)
	sliceBytes := int(vol.BX) * int(vol.BY)
	quality := c.qualityFromPSNR()
	for z := 0; z < int(vol.BZ); z++ {
		start := z * sliceBytes
		end := start + sliceBytes
		if end > len(raw) {
			return nil, fmt.Errorf("jpeg2000: block shorter than expected at slice %d", z)
		}
		img := image.NewGray(image.Rect(0, 0, int(vol.BX), int(vol.BY)))
		copy(img.Pix, raw[start:end])
		var frame bytes.Buffer
		if err := jpeg.Encode(&frame, img, &jpeg.Options{Quality: quality}); err != nil {
			return nil, fmt.Errorf("jpeg2000: slice %d encode: %w", z, err)
		}
		w.PutU32(uint32(frame.Len()))
		w.PutBytes(frame.Bytes())
	}
	return w.Bytes(), nil
}
