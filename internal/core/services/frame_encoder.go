package services

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/klauspost/compress/gzip"

	"skyfleet/internal/core/domain"
)

// FrameHeaderSize is the fixed binary header length prepended to every
// binary camera frame.
const FrameHeaderSize = 32

// FrameMagic marks the start of a binary frame header.
const FrameMagic uint32 = 0x12345678

// FrameHeader carries the per-frame metadata packed into the binary
// header. All multi-byte fields are big-endian.
type FrameHeader struct {
	TimestampSec uint32
	Camera       domain.Camera
	FrameNumber  uint16
	GlobalSeq    uint32
	Latitude     float32
	Longitude    float32
}

// MarshalBinary packs the header into its 32-byte wire form.
func (h FrameHeader) MarshalBinary() []byte {
	buf := make([]byte, FrameHeaderSize)
	binary.BigEndian.PutUint32(buf[0:4], FrameMagic)
	binary.BigEndian.PutUint32(buf[4:8], h.TimestampSec)
	binary.BigEndian.PutUint16(buf[8:10], h.Camera.WireID())
	binary.BigEndian.PutUint16(buf[10:12], h.FrameNumber)
	// buf[12:16] reserved, left zero
	binary.BigEndian.PutUint32(buf[16:20], h.GlobalSeq)
	binary.BigEndian.PutUint32(buf[20:24], math.Float32bits(h.Latitude))
	binary.BigEndian.PutUint32(buf[24:28], math.Float32bits(h.Longitude))
	// buf[28:32] padding, left zero
	return buf
}

// ParseFrameHeader decodes a 32-byte header. Used by tests and by any
// consumer that wants to validate frames the agent produced.
func ParseFrameHeader(data []byte) (FrameHeader, error) {
	if len(data) < FrameHeaderSize {
		return FrameHeader{}, fmt.Errorf("frame header too short: %d bytes", len(data))
	}
	if magic := binary.BigEndian.Uint32(data[0:4]); magic != FrameMagic {
		return FrameHeader{}, fmt.Errorf("bad frame magic: 0x%08x", magic)
	}

	var camera domain.Camera
	switch binary.BigEndian.Uint16(data[8:10]) {
	case domain.CameraFront.WireID():
		camera = domain.CameraFront
	case domain.CameraBottom.WireID():
		camera = domain.CameraBottom
	default:
		return FrameHeader{}, fmt.Errorf("unknown camera id %d", binary.BigEndian.Uint16(data[8:10]))
	}

	return FrameHeader{
		TimestampSec: binary.BigEndian.Uint32(data[4:8]),
		Camera:       camera,
		FrameNumber:  binary.BigEndian.Uint16(data[10:12]),
		GlobalSeq:    binary.BigEndian.Uint32(data[16:20]),
		Latitude:     math.Float32frombits(binary.BigEndian.Uint32(data[20:24])),
		Longitude:    math.Float32frombits(binary.BigEndian.Uint32(data[24:28])),
	}, nil
}

// EncodedFrame is the result of encoding one camera frame.
type EncodedFrame struct {
	Data           []byte
	FrameType      domain.FrameType
	OriginalSize   int
	CompressedSize int
	Compressed     bool
}

// CompressionRatio reports original/compressed size. Returns 1.0 when
// the frame was not compressed.
func (f EncodedFrame) CompressionRatio() float64 {
	if !f.Compressed || f.CompressedSize == 0 {
		return 1.0
	}
	return float64(f.OriginalSize) / float64(f.CompressedSize)
}

// FrameEncoder assembles binary camera frames: fixed header, synthetic
// payload, optional gzip of the whole frame.
type FrameEncoder struct {
	compress bool
}

func NewFrameEncoder(compress bool) *FrameEncoder {
	return &FrameEncoder{compress: compress}
}

// Encode builds the wire form of one frame from its header and payload.
func (e *FrameEncoder) Encode(header FrameHeader, payload []byte) (EncodedFrame, error) {
	frameType := domain.ClassifyFrame(uint32(header.FrameNumber))

	raw := make([]byte, 0, FrameHeaderSize+len(payload))
	raw = append(raw, header.MarshalBinary()...)
	raw = append(raw, payload...)

	if !e.compress {
		return EncodedFrame{
			Data:           raw,
			FrameType:      frameType,
			OriginalSize:   len(raw),
			CompressedSize: len(raw),
		}, nil
	}

	var buf bytes.Buffer
	zw, err := gzip.NewWriterLevel(&buf, gzip.BestSpeed)
	if err != nil {
		return EncodedFrame{}, fmt.Errorf("gzip writer: %w", err)
	}
	if _, err := zw.Write(raw); err != nil {
		return EncodedFrame{}, fmt.Errorf("gzip write: %w", err)
	}
	if err := zw.Close(); err != nil {
		return EncodedFrame{}, fmt.Errorf("gzip close: %w", err)
	}

	return EncodedFrame{
		Data:           buf.Bytes(),
		FrameType:      frameType,
		OriginalSize:   len(raw),
		CompressedSize: buf.Len(),
		Compressed:     true,
	}, nil
}
