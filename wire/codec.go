package wire

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/sciencecorp/synapse-cereplex-driver/errors"
)

// EncodedLen returns the number of bytes Encode produces for r. It does not
// validate r.
func EncodedLen(r Record) int {
	width, err := bytesPerSample(r.BitWidth)
	if err != nil {
		return HeaderLen
	}
	return HeaderLen + r.ChannelCount()*r.SamplesPerChannel()*width
}

// Encode serializes r into a new buffer.
func Encode(r Record) ([]byte, error) {
	return AppendEncode(make([]byte, 0, EncodedLen(r)), r)
}

// AppendEncode appends the encoding of r to dst and returns the extended
// buffer. dst is returned unchanged on error.
func AppendEncode(dst []byte, r Record) ([]byte, error) {
	if err := r.Validate(); err != nil {
		return dst, err
	}

	out := append(dst,
		Magic,
		byte(r.Type),
	)
	out = binary.BigEndian.AppendUint64(out, uint64(r.Timestamp))
	out = append(out, 0x00)
	out = binary.BigEndian.AppendUint16(out, uint16(r.ChannelCount()))
	out = binary.BigEndian.AppendUint16(out, uint16(r.SamplesPerChannel()))

	for _, samples := range r.Samples {
		for _, v := range samples {
			if r.BitWidth == BitWidth16 {
				out = binary.BigEndian.AppendUint16(out, uint16(int16(v)))
			} else {
				out = binary.BigEndian.AppendUint64(out, math.Float64bits(v))
			}
		}
	}
	return out, nil
}

// Decode parses a single record from buf. bitWidth selects the payload
// packing; 0 infers it from the payload length. buf must hold exactly one
// record.
//
// A record with no samples has an empty payload whatever its width, so an
// inferred decode reports it as 16-bit. Callers that need the width of
// empty records back must pass it explicitly.
func Decode(buf []byte, bitWidth int) (Record, error) {
	if len(buf) < HeaderLen {
		return Record{}, fmt.Errorf("%w: %d bytes is shorter than the %d byte header",
			errors.ErrMalformedRecord, len(buf), HeaderLen)
	}
	if buf[0] != Magic {
		return Record{}, fmt.Errorf("%w: bad magic 0x%02x", errors.ErrMalformedRecord, buf[0])
	}
	if buf[1] == 0 {
		return Record{}, fmt.Errorf("%w: sample type not set", errors.ErrMalformedRecord)
	}
	if buf[10] != 0x00 {
		return Record{}, fmt.Errorf("%w: reserved byte is 0x%02x", errors.ErrMalformedRecord, buf[10])
	}

	channels := int(binary.BigEndian.Uint16(buf[11:13]))
	perChannel := int(binary.BigEndian.Uint16(buf[13:15]))
	payload := buf[HeaderLen:]
	total := channels * perChannel

	if bitWidth == 0 {
		inferred, err := inferBitWidth(len(payload), total)
		if err != nil {
			return Record{}, err
		}
		bitWidth = inferred
	}
	width, err := bytesPerSample(bitWidth)
	if err != nil {
		return Record{}, err
	}
	if want := total * width; len(payload) != want {
		return Record{}, fmt.Errorf("%w: payload is %d bytes, header declares %d",
			errors.ErrMalformedRecord, len(payload), want)
	}

	rec := Record{
		Type:      SampleType(buf[1]),
		Timestamp: int64(binary.BigEndian.Uint64(buf[2:10])),
		BitWidth:  bitWidth,
		Samples:   make([][]float64, channels),
	}
	off := 0
	for ch := range rec.Samples {
		samples := make([]float64, perChannel)
		for i := range samples {
			if width == 2 {
				samples[i] = float64(int16(binary.BigEndian.Uint16(payload[off:])))
			} else {
				samples[i] = math.Float64frombits(binary.BigEndian.Uint64(payload[off:]))
			}
			off += width
		}
		rec.Samples[ch] = samples
	}
	return rec, nil
}

func inferBitWidth(payloadLen, total int) (int, error) {
	switch {
	case total == 0 && payloadLen == 0:
		return BitWidth16, nil
	case total > 0 && payloadLen == total*2:
		return BitWidth16, nil
	case total > 0 && payloadLen == total*8:
		return BitWidth64, nil
	default:
		return 0, fmt.Errorf("%w: payload of %d bytes matches no bit width for %d samples",
			errors.ErrMalformedRecord, payloadLen, total)
	}
}
