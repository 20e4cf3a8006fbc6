package main

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"io"
	"runtime"

	"github.com/klauspost/compress/zstd"
)

var ErrInvalidMagic = errors.New("quad: invalid magic")

// ImageToRGBA copies any image.Image into an *image.RGBA with bounds starting at (0,0).
func ImageToRGBA(src image.Image) *image.RGBA {
	b := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Src)
	return dst
}

// WriteHeader writes the container header: magic(4) + rank(uint16) + the
// three channel cutoffs.
func WriteHeader(b *bytes.Buffer, rank uint16, cut Cutoffs) error {
	if _, err := b.Write([]byte(magicQuad)); err != nil {
		return err
	}
	if err := binary.Write(b, binary.BigEndian, rank); err != nil {
		return err
	}
	_, err := b.Write([]byte{cut.Y, cut.Cb, cut.Cr})
	return err
}

// ReadHeader reads and validates the container header.
func ReadHeader(r *bytes.Reader) (rank int, cut Cutoffs, err error) {
	magic := make([]byte, len(magicQuad))
	if _, err = io.ReadFull(r, magic); err != nil {
		return 0, Cutoffs{}, fmt.Errorf("%w: truncated header", ErrFormat)
	}
	if string(magic) != magicQuad {
		return 0, Cutoffs{}, ErrInvalidMagic
	}
	var rank16 uint16
	if err = binary.Read(r, binary.BigEndian, &rank16); err != nil {
		return 0, Cutoffs{}, fmt.Errorf("%w: truncated header", ErrFormat)
	}
	var c [3]byte
	if _, err = io.ReadFull(r, c[:]); err != nil {
		return 0, Cutoffs{}, fmt.Errorf("%w: truncated header", ErrFormat)
	}
	rank = int(rank16)
	if rank < 2 || rank&(rank-1) != 0 {
		return 0, Cutoffs{}, fmt.Errorf("%w: bad rank %d", ErrFormat, rank)
	}
	return rank, Cutoffs{Y: c[0], Cb: c[1], Cr: c[2]}, nil
}

// rgbToYCbCr converts one pixel to luma/chroma with 16.16 fixed-point
// arithmetic, rounded and clamped to bytes.
//
//	Y  =  0.299 R + 0.587 G + 0.114 B
//	Cb = -0.169 R - 0.331 G + 0.501 B + 128
//	Cr =  0.500 R - 0.419 G - 0.081 B + 128
func rgbToYCbCr(r, g, b uint8) (uint8, uint8, uint8) {
	rr, gg, bb := int32(r), int32(g), int32(b)
	y := (19595*rr + 38470*gg + 7471*bb + 32768) >> 16
	cb := ((-11076*rr - 21692*gg + 32834*bb + 32768) >> 16) + 128
	cr := ((32768*rr - 27460*gg - 5308*bb + 32768) >> 16) + 128
	return clampU8(y), clampU8(cb), clampU8(cr)
}

// ycbcrToRGB is the inverse transform, same fixed-point scheme.
//
//	R = Y + 1.402 (Cr-128)
//	G = Y - 0.344 (Cb-128) - 0.714 (Cr-128)
//	B = Y + 1.772 (Cb-128)
func ycbcrToRGB(y, cb, cr uint8) (uint8, uint8, uint8) {
	yy := int32(y)
	cbb := int32(cb) - 128
	crr := int32(cr) - 128
	r := yy + ((91881*crr + 32768) >> 16)
	g := yy - ((22544*cbb + 46793*crr + 32768) >> 16)
	b := yy + ((116130*cbb + 32768) >> 16)
	return clampU8(r), clampU8(g), clampU8(b)
}

func clampU8(v int32) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}

// --- ZSTD helpers ---

// EncodeZstd compresses raw into b as a single zstd frame.
func EncodeZstd(b io.Writer, raw []byte) error {
	enc, err := zstd.NewWriter(b, zstd.WithEncoderConcurrency(runtime.NumCPU()))
	if err != nil {
		return err
	}
	if _, err := enc.Write(raw); err != nil {
		enc.Close()
		return err
	}
	return enc.Close()
}

// DecodeZstd reads one zstd frame from r and returns the plain payload.
func DecodeZstd(r io.Reader) ([]byte, error) {
	dec, err := zstd.NewReader(r)
	if err != nil {
		return nil, err
	}
	defer dec.Close()

	plain, err := io.ReadAll(dec)
	if err != nil {
		return nil, err
	}
	return plain, nil
}
