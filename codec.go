// QUAD is an adaptive lossy image codec built on region quadtrees. It
// operates in YCbCr color space with one independent quadtree per channel;
// a per-channel cutoff collapses low-contrast regions into a single
// interpolated value, trading fidelity for size at query time without ever
// rebuilding the trees.
package main

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"image"
	"io"
	"runtime"
	"sync"
)

const magicQuad = "QUAD"

// Cutoffs carries the per-channel fidelity thresholds. Chroma usually
// tolerates much coarser approximation than luma.
type Cutoffs struct {
	Y, Cb, Cr uint8
}

// Compressor exclusively owns the three channel trees built from one source
// image. The trees are immutable: recompression at a different cutoff
// re-traverses them with a different threshold, it never rebuilds.
type Compressor struct {
	y, cb, cr *Tree
	rank      int
}

// Rank returns the side length of the square image the compressor holds.
func (c *Compressor) Rank() int { return c.rank }

// NewCompressor converts img to YCbCr planes and builds the three channel
// trees concurrently. The image must be square with a power-of-two side ≥ 2.
func NewCompressor(img image.Image) (*Compressor, error) {
	rgba := ImageToRGBA(img)
	b := rgba.Bounds()
	rank := b.Dx()
	if b.Dy() != rank || rank < 2 || rank&(rank-1) != 0 {
		return nil, ErrInvalidDimensions
	}
	yPlane, cbPlane, crPlane := extractPlanes(rgba, rank)

	c := &Compressor{rank: rank}
	var errY, errCb, errCr error
	var wg sync.WaitGroup
	wg.Add(3)
	go buildTreeWorker(&c.y, yPlane, rank, &errY, &wg)
	go buildTreeWorker(&c.cb, cbPlane, rank, &errCb, &wg)
	go buildTreeWorker(&c.cr, crPlane, rank, &errCr, &wg)
	wg.Wait()
	for _, err := range []error{errY, errCb, errCr} {
		if err != nil {
			return nil, err
		}
	}
	return c, nil
}

func buildTreeWorker(dst **Tree, plane []uint8, rank int, dstErr *error, wg *sync.WaitGroup) {
	defer wg.Done()
	*dst, *dstErr = BuildTree(plane, rank)
}

// extractPlanes converts an RGBA image into three planar Y, Cb, Cr slices.
func extractPlanes(img *image.RGBA, rank int) (yPlane, cbPlane, crPlane []uint8) {
	n := rank * rank
	yPlane = make([]uint8, n)
	cbPlane = make([]uint8, n)
	crPlane = make([]uint8, n)
	for y := 0; y < rank; y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+rank*4]
		for x := 0; x < rank; x++ {
			yy, cb, cr := rgbToYCbCr(row[x*4], row[x*4+1], row[x*4+2])
			i := y*rank + x
			yPlane[i], cbPlane[i], crPlane[i] = yy, cb, cr
		}
	}
	return yPlane, cbPlane, crPlane
}

type channelReq struct {
	tree   *Tree
	cutoff uint8
}

func (c *Compressor) channels(cut Cutoffs) [3]channelReq {
	return [3]channelReq{{c.y, cut.Y}, {c.cb, cut.Cb}, {c.cr, cut.Cr}}
}

// Image reconstructs the approximate image for the given cutoffs by querying
// every pixel on all three trees and inverting the color transform. Row
// stripes are rendered in parallel; the trees are read-only so no locking
// is needed.
func (c *Compressor) Image(cut Cutoffs) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, c.rank, c.rank))
	workers := runtime.NumCPU()
	if workers > c.rank {
		workers = c.rank
	}
	rows := (c.rank + workers - 1) / workers
	var wg sync.WaitGroup
	for y0 := 0; y0 < c.rank; y0 += rows {
		y1 := y0 + rows
		if y1 > c.rank {
			y1 = c.rank
		}
		wg.Add(1)
		go c.renderStripe(dst, cut, y0, y1, &wg)
	}
	wg.Wait()
	return dst
}

func (c *Compressor) renderStripe(dst *image.RGBA, cut Cutoffs, y0, y1 int, wg *sync.WaitGroup) {
	defer wg.Done()
	for y := y0; y < y1; y++ {
		o := y * dst.Stride
		for x := 0; x < c.rank; x++ {
			yy := c.y.root.approx(x, y, 0, 0, cut.Y)
			cb := c.cb.root.approx(x, y, 0, 0, cut.Cb)
			cr := c.cr.root.approx(x, y, 0, 0, cut.Cr)
			r, g, b := ycbcrToRGB(yy, cb, cr)
			dst.Pix[o+x*4+0] = r
			dst.Pix[o+x*4+1] = g
			dst.Pix[o+x*4+2] = b
			dst.Pix[o+x*4+3] = 255
		}
	}
}

// CompressedSize reports the serialized payload size in bytes for the given
// cutoffs across all three channels, before any generic compression pass.
func (c *Compressor) CompressedSize(cut Cutoffs) int {
	total := 0
	for _, ch := range c.channels(cut) {
		structure, data, _ := encodeChannel(ch.tree, ch.cutoff)
		total += len(structure) + len(data)
	}
	return total
}

// Payload assembles the container: header, then the three structure streams
// followed by the three leaf-data streams, each section length-prefixed.
func (c *Compressor) Payload(cut Cutoffs) ([]byte, error) {
	var structures, datas [3][]byte
	for i, ch := range c.channels(cut) {
		s, d, err := encodeChannel(ch.tree, ch.cutoff)
		if err != nil {
			return nil, err
		}
		structures[i], datas[i] = s, d
	}
	b := &bytes.Buffer{}
	if err := WriteHeader(b, uint16(c.rank), cut); err != nil {
		return nil, err
	}
	for _, s := range structures {
		if err := writeSection(b, s); err != nil {
			return nil, err
		}
	}
	for _, d := range datas {
		if err := writeSection(b, d); err != nil {
			return nil, err
		}
	}
	return b.Bytes(), nil
}

func writeSection(b *bytes.Buffer, sec []byte) error {
	if err := binary.Write(b, binary.BigEndian, uint32(len(sec))); err != nil {
		return err
	}
	_, err := b.Write(sec)
	return err
}

func readSection(r *bytes.Reader) ([]byte, error) {
	var n uint32
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return nil, fmt.Errorf("%w: truncated section length", ErrFormat)
	}
	if int(n) > r.Len() {
		return nil, fmt.Errorf("%w: section length %d exceeds payload", ErrFormat, n)
	}
	sec := make([]byte, n)
	if _, err := io.ReadFull(r, sec); err != nil {
		return nil, fmt.Errorf("%w: truncated section", ErrFormat)
	}
	return sec, nil
}

// Encode builds a compressor for img and serializes it at the given cutoffs.
func Encode(img image.Image, cut Cutoffs) ([]byte, error) {
	c, err := NewCompressor(img)
	if err != nil {
		return nil, err
	}
	return c.Payload(cut)
}

// Decode reconstructs an image from a container produced by Encode. The
// original bitmap is not needed: literal leaves repaint their samples and
// collapsed regions fill with their stored average.
func Decode(data []byte) (*image.RGBA, error) {
	r := bytes.NewReader(data)
	rank, _, err := ReadHeader(r)
	if err != nil {
		return nil, err
	}
	var sections [6][]byte
	for i := range sections {
		if sections[i], err = readSection(r); err != nil {
			return nil, err
		}
	}
	if r.Len() != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrFormat, r.Len())
	}

	var planes [3][]uint8
	var errs [3]error
	var wg sync.WaitGroup
	wg.Add(3)
	for i := 0; i < 3; i++ {
		go decodePlaneWorker(&planes[i], sections[i], sections[i+3], rank, &errs[i], &wg)
	}
	wg.Wait()
	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}

	dst := image.NewRGBA(image.Rect(0, 0, rank, rank))
	for y := 0; y < rank; y++ {
		o := y * dst.Stride
		for x := 0; x < rank; x++ {
			i := y*rank + x
			red, green, blue := ycbcrToRGB(planes[0][i], planes[1][i], planes[2][i])
			dst.Pix[o+x*4+0] = red
			dst.Pix[o+x*4+1] = green
			dst.Pix[o+x*4+2] = blue
			dst.Pix[o+x*4+3] = 255
		}
	}
	return dst, nil
}

func decodePlaneWorker(dst *[]uint8, structure, data []byte, rank int, dstErr *error, wg *sync.WaitGroup) {
	defer wg.Done()
	*dst, *dstErr = decodePlane(structure, data, rank)
}
