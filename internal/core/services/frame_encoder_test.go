package services

import (
	"bytes"
	"encoding/binary"
	"io"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"skyfleet/internal/core/domain"
)

func TestFrameHeader_RoundTrip(t *testing.T) {
	header := FrameHeader{
		TimestampSec: 1700000000,
		Camera:       domain.CameraBottom,
		FrameNumber:  42,
		GlobalSeq:    9001,
		Latitude:     18.5204,
		Longitude:    73.8567,
	}

	wire := header.MarshalBinary()
	require.Len(t, wire, FrameHeaderSize)

	assert.Equal(t, FrameMagic, binary.BigEndian.Uint32(wire[0:4]))
	assert.Equal(t, uint16(2), binary.BigEndian.Uint16(wire[8:10]))
	// Reserved and padding stay zero.
	assert.Equal(t, uint32(0), binary.BigEndian.Uint32(wire[12:16]))
	assert.Equal(t, uint32(0), binary.BigEndian.Uint32(wire[28:32]))

	parsed, err := ParseFrameHeader(wire)
	require.NoError(t, err)
	assert.Equal(t, header, parsed)
}

func TestParseFrameHeader_Errors(t *testing.T) {
	_, err := ParseFrameHeader(make([]byte, 10))
	assert.Error(t, err)

	bad := FrameHeader{Camera: domain.CameraFront}.MarshalBinary()
	binary.BigEndian.PutUint32(bad[0:4], 0xdeadbeef)
	_, err = ParseFrameHeader(bad)
	assert.Error(t, err)

	unknownCam := FrameHeader{Camera: domain.CameraFront}.MarshalBinary()
	binary.BigEndian.PutUint16(unknownCam[8:10], 7)
	_, err = ParseFrameHeader(unknownCam)
	assert.Error(t, err)
}

func TestFrameEncoder_Uncompressed(t *testing.T) {
	enc := NewFrameEncoder(false)
	payload := bytes.Repeat([]byte{0xAB}, 5000)

	frame, err := enc.Encode(FrameHeader{Camera: domain.CameraFront, FrameNumber: 1}, payload)
	require.NoError(t, err)

	assert.Equal(t, domain.FrameDelta, frame.FrameType)
	assert.False(t, frame.Compressed)
	assert.Equal(t, FrameHeaderSize+5000, len(frame.Data))
	assert.Equal(t, 1.0, frame.CompressionRatio())

	parsed, err := ParseFrameHeader(frame.Data)
	require.NoError(t, err)
	assert.Equal(t, domain.CameraFront, parsed.Camera)
}

func TestFrameEncoder_CompressedRoundTrip(t *testing.T) {
	enc := NewFrameEncoder(true)
	payload := bytes.Repeat([]byte{0x11, 0x22, 0x33, 0x44}, 4000)

	frame, err := enc.Encode(FrameHeader{Camera: domain.CameraFront, FrameNumber: 30}, payload)
	require.NoError(t, err)

	assert.Equal(t, domain.FrameKey, frame.FrameType)
	assert.True(t, frame.Compressed)
	assert.Equal(t, FrameHeaderSize+len(payload), frame.OriginalSize)
	assert.Less(t, frame.CompressedSize, frame.OriginalSize)
	assert.Greater(t, frame.CompressionRatio(), 1.0)

	zr, err := gzip.NewReader(bytes.NewReader(frame.Data))
	require.NoError(t, err)
	raw, err := io.ReadAll(zr)
	require.NoError(t, err)

	assert.Equal(t, frame.OriginalSize, len(raw))
	parsed, err := ParseFrameHeader(raw)
	require.NoError(t, err)
	assert.Equal(t, uint16(30), parsed.FrameNumber)
	assert.Equal(t, payload, raw[FrameHeaderSize:])
}

func TestCompressionRatio_ZeroCompressedSize(t *testing.T) {
	frame := EncodedFrame{Compressed: true, OriginalSize: 4096, CompressedSize: 0}
	assert.Equal(t, 1.0, frame.CompressionRatio())
}

func TestClassifyFrame(t *testing.T) {
	for _, n := range []uint32{0, 30, 60, 900} {
		assert.Equal(t, domain.FrameKey, domain.ClassifyFrame(n), "frame %d", n)
	}
	for _, n := range []uint32{1, 15, 29, 31} {
		assert.Equal(t, domain.FrameDelta, domain.ClassifyFrame(n), "frame %d", n)
	}
}
