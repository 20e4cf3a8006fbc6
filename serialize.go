package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
)

// One channel serializes into two parallel streams produced by the same
// fixed pre-order walk: a bit-packed structure stream recording which
// regions were expanded, and a byte stream of leaf values. A false bit at
// region size 2 is a literal 2×2 leaf carrying four sample bytes; a false
// bit at any larger size is a collapsed region carrying one average byte.
// Since the walk always knows the current region size (it starts at rank
// and halves on every true bit), the two cases never need a separate tag.

var ErrFormat = errors.New("quad: malformed payload")

// writeStructure appends the expand/collapse bits for the walk at cutoff.
func (n *node) writeStructure(bw *BitWriter, cutoff uint8) error {
	if n.leaf() || n.high-n.low < cutoff {
		return bw.WriteBit(false)
	}
	if err := bw.WriteBit(true); err != nil {
		return err
	}
	for i := range n.kids {
		if err := n.kids[i].writeStructure(bw, cutoff); err != nil {
			return err
		}
	}
	return nil
}

// writeLeafData appends the value bytes for the same walk in lockstep.
func (n *node) writeLeafData(buf *bytes.Buffer, cutoff uint8) {
	if n.leaf() {
		buf.Write(n.corners[:])
		return
	}
	if n.high-n.low < cutoff {
		buf.WriteByte(n.average)
		return
	}
	for i := range n.kids {
		n.kids[i].writeLeafData(buf, cutoff)
	}
}

// encodeChannel serializes one tree at one cutoff into its structure and
// leaf-data streams. The structure stream is padded to a byte boundary.
func encodeChannel(t *Tree, cutoff uint8) (structure, data []byte, err error) {
	var structBuf, dataBuf bytes.Buffer
	bw := NewBitWriter(&structBuf)
	if err := t.root.writeStructure(bw, cutoff); err != nil {
		return nil, nil, err
	}
	if err := bw.Flush(); err != nil {
		return nil, nil, err
	}
	t.root.writeLeafData(&dataBuf, cutoff)
	return structBuf.Bytes(), dataBuf.Bytes(), nil
}

// decodePlane rebuilds one channel plane from its two streams. Literal
// leaves repaint their four samples, collapsed regions fill flat with their
// stored average. Both streams must be consumed exactly: a premature end or
// leftover bytes fail with ErrFormat.
func decodePlane(structure, data []byte, rank int) ([]uint8, error) {
	if rank < 2 || rank&(rank-1) != 0 {
		return nil, ErrInvalidDimensions
	}
	plane := make([]uint8, rank*rank)
	br := NewBitReaderFromBytes(structure)
	dr := bytes.NewReader(data)
	if err := paintRegion(plane, rank, 0, 0, rank, br, dr); err != nil {
		return nil, err
	}
	if left := len(structure) - br.Offset(); left != 0 {
		return nil, fmt.Errorf("%w: %d unread structure bytes", ErrFormat, left)
	}
	if dr.Len() != 0 {
		return nil, fmt.Errorf("%w: %d unread leaf-data bytes", ErrFormat, dr.Len())
	}
	return plane, nil
}

func paintRegion(plane []uint8, rank, x, y, size int, br *BitReader, dr *bytes.Reader) error {
	expand, err := br.ReadBit()
	if err != nil {
		return fmt.Errorf("%w: structure stream ended early", ErrFormat)
	}
	if expand {
		if size == 2 {
			return fmt.Errorf("%w: expand bit below minimum region size", ErrFormat)
		}
		s := size / 2
		quads := [4][2]int{{x, y}, {x + s, y}, {x, y + s}, {x + s, y + s}}
		for _, q := range quads {
			if err := paintRegion(plane, rank, q[0], q[1], s, br, dr); err != nil {
				return err
			}
		}
		return nil
	}
	if size == 2 {
		var samples [4]byte
		if _, err := io.ReadFull(dr, samples[:]); err != nil {
			return fmt.Errorf("%w: leaf-data stream ended early", ErrFormat)
		}
		plane[y*rank+x] = samples[0]
		plane[y*rank+x+1] = samples[1]
		plane[(y+1)*rank+x] = samples[2]
		plane[(y+1)*rank+x+1] = samples[3]
		return nil
	}
	avg, err := dr.ReadByte()
	if err != nil {
		return fmt.Errorf("%w: leaf-data stream ended early", ErrFormat)
	}
	for yy := y; yy < y+size; yy++ {
		row := plane[yy*rank+x : yy*rank+x+size]
		for i := range row {
			row[i] = avg
		}
	}
	return nil
}

// -----------------------------------------------------------------------------
// BitWriter / BitReader
// -----------------------------------------------------------------------------

// BitWriter writes bits (MSB-first) into an underlying bytes.Buffer.
type BitWriter struct {
	buf  *bytes.Buffer
	acc  byte
	nbit uint8 // bits already occupied in acc (0..7)
}

func NewBitWriter(buf *bytes.Buffer) *BitWriter {
	return &BitWriter{buf: buf}
}

// WriteBit writes a single bit.
func (bw *BitWriter) WriteBit(v bool) error {
	if v {
		bw.acc |= 1 << (7 - bw.nbit)
	}
	bw.nbit++
	if bw.nbit == 8 {
		if err := bw.buf.WriteByte(bw.acc); err != nil {
			return err
		}
		bw.acc = 0
		bw.nbit = 0
	}
	return nil
}

// Flush writes the trailing partial byte, if any. Pad bits are zero.
func (bw *BitWriter) Flush() error {
	if bw.nbit == 0 {
		return nil
	}
	if err := bw.buf.WriteByte(bw.acc); err != nil {
		return err
	}
	bw.acc = 0
	bw.nbit = 0
	return nil
}

// BitReader reads bits (MSB-first) from a []byte.
type BitReader struct {
	data []byte
	pos  int   // byte index
	acc  byte  // current byte
	nbit uint8 // bits already read from acc (0..7)
}

func NewBitReaderFromBytes(b []byte) *BitReader {
	return &BitReader{data: b}
}

// ReadBit reads a single bit.
func (br *BitReader) ReadBit() (bool, error) {
	if br.nbit == 0 {
		if br.pos >= len(br.data) {
			return false, io.EOF
		}
		br.acc = br.data[br.pos]
		br.pos++
	}
	bit := (br.acc & (1 << (7 - br.nbit))) != 0
	br.nbit++
	if br.nbit == 8 {
		br.nbit = 0
	}
	return bit, nil
}

// Offset reports how many bytes have been touched, counting a partially
// read byte as consumed.
func (br *BitReader) Offset() int { return br.pos }
