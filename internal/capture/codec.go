package capture

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"sync"
)

// Reader decodes packets from a capture stream.
type Reader struct {
	r      io.Reader
	hdr    [HeaderSize]byte
	offset int64
}

// NewReader wraps r in a buffered packet reader.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: bufio.NewReader(r)}
}

// Offset returns the byte offset of the next packet.
func (r *Reader) Offset() int64 { return r.offset }

// Next decodes the next packet. It returns io.EOF when the stream ends
// cleanly on a record boundary and an error wrapping ErrMalformedCapture for
// a truncated header, an impossible length or a truncated payload.
func (r *Reader) Next() (*Packet, error) {
	n, err := io.ReadFull(r.r, r.hdr[:])
	if err != nil {
		if n == 0 && errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("%w: short header (%d of %d bytes) at offset %d", ErrMalformedCapture, n, HeaderSize, r.offset)
		}
		return nil, fmt.Errorf("read header at offset %d: %w", r.offset, err)
	}

	h := unmarshalHeader(r.hdr[:])
	size, err := h.PayloadLen()
	if err != nil {
		return nil, fmt.Errorf("offset %d: %w", r.offset, err)
	}

	// Payload memory is bounded by the bytes present in the stream.
	var buf bytes.Buffer
	if m, err := io.CopyN(&buf, r.r, int64(size)); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("%w: payload truncated (%d of %d bytes) at offset %d", ErrMalformedCapture, m, size, r.offset)
		}
		return nil, fmt.Errorf("read payload at offset %d: %w", r.offset, err)
	}
	payload := buf.Bytes()
	if payload == nil {
		payload = []byte{}
	}

	r.offset += int64(h.TotalBytes)
	return &Packet{Header: h, Payload: payload}, nil
}

// ReadAll decodes every packet in r.
func ReadAll(r io.Reader) ([]*Packet, error) {
	pr := NewReader(r)
	var packets []*Packet
	for {
		p, err := pr.Next()
		if errors.Is(err, io.EOF) {
			return packets, nil
		}
		if err != nil {
			return packets, err
		}
		packets = append(packets, p)
	}
}

// Decode decodes a single packet from b and returns the number of bytes used.
func Decode(b []byte) (*Packet, int, error) {
	p, err := NewReader(bytes.NewReader(b)).Next()
	if err != nil {
		return nil, 0, err
	}
	return p, int(p.Header.TotalBytes), nil
}

// Encode returns the wire form of p. TotalBytes is recomputed from the payload.
func Encode(p *Packet) []byte {
	b := make([]byte, HeaderSize+len(p.Payload))
	h := p.Header
	h.TotalBytes = uint32(len(b))
	h.marshal(b[:HeaderSize])
	copy(b[HeaderSize:], p.Payload)
	return b
}

// Writer encodes packets to a capture stream. It is safe for concurrent use.
type Writer struct {
	mu      sync.Mutex
	w       io.Writer
	hdr     [HeaderSize]byte
	packets uint64
	bytes   uint64
}

// NewWriter returns a Writer that writes to w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// WritePacket writes the header then the payload of p. TotalBytes is
// recomputed from the payload length.
func (w *Writer) WritePacket(p *Packet) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	h := p.Header
	h.TotalBytes = uint32(HeaderSize + len(p.Payload))
	h.marshal(w.hdr[:])

	if _, err := w.w.Write(w.hdr[:]); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if _, err := w.w.Write(p.Payload); err != nil {
		return fmt.Errorf("write payload: %w", err)
	}
	w.packets++
	w.bytes += uint64(h.TotalBytes)
	return nil
}

// PacketsWritten returns the number of packets written so far.
func (w *Writer) PacketsWritten() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.packets
}

// BytesWritten returns the number of bytes written so far.
func (w *Writer) BytesWritten() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.bytes
}
