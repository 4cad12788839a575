package wire

import (
	"encoding/binary"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sciencecorp/synapse-cereplex-driver/errors"
)

func broadband(bitWidth int, samples ...[]float64) Record {
	return Record{
		Type:      SampleTypeBroadband,
		Timestamp: 1_700_000_000_123_456,
		BitWidth:  bitWidth,
		Samples:   samples,
	}
}

func TestEncode_HeaderLayout(t *testing.T) {
	rec := broadband(BitWidth16, []float64{1, -2}, []float64{3, 4})

	buf, err := Encode(rec)
	require.NoError(t, err)
	require.Len(t, buf, HeaderLen+2*2*2)

	assert.Equal(t, Magic, buf[0])
	assert.Equal(t, byte(SampleTypeBroadband), buf[1])
	assert.Equal(t, uint64(rec.Timestamp), binary.BigEndian.Uint64(buf[2:10]))
	assert.Equal(t, byte(0x00), buf[10])
	assert.Equal(t, uint16(2), binary.BigEndian.Uint16(buf[11:13]))
	assert.Equal(t, uint16(2), binary.BigEndian.Uint16(buf[13:15]))

	// channel-major: ch0 s0, ch0 s1, ch1 s0, ch1 s1
	assert.Equal(t, []byte{0x00, 0x01, 0xFF, 0xFE, 0x00, 0x03, 0x00, 0x04}, buf[HeaderLen:])
}

func TestRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		rec  Record
	}{
		{"16-bit", broadband(BitWidth16, []float64{0, 1, -1}, []float64{math.MaxInt16, math.MinInt16, 42})},
		{"64-bit", broadband(BitWidth64, []float64{0.5, -1e9, math.Pi}, []float64{math.Inf(1), 3, 4})},
		{"single channel", broadband(BitWidth16, []float64{7})},
		{"channels without samples", broadband(BitWidth64, []float64{}, []float64{})},
		{"negative timestamp", Record{Type: SampleTypeBroadband, Timestamp: -5, BitWidth: BitWidth16, Samples: [][]float64{{9}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf, err := Encode(tt.rec)
			require.NoError(t, err)
			assert.Len(t, buf, EncodedLen(tt.rec))

			got, err := Decode(buf, tt.rec.BitWidth)
			require.NoError(t, err)
			assert.Equal(t, tt.rec, got)

			inferred, err := Decode(buf, 0)
			require.NoError(t, err)
			assert.Equal(t, tt.rec.Samples, inferred.Samples)
		})
	}
}

func TestDecode_InferredWidthOfEmptyRecord(t *testing.T) {
	rec := broadband(BitWidth64, []float64{}, []float64{})
	buf, err := Encode(rec)
	require.NoError(t, err)

	got, err := Decode(buf, 0)
	require.NoError(t, err)
	assert.Equal(t, BitWidth16, got.BitWidth, "empty payload carries no width")
	assert.Equal(t, 2, got.ChannelCount())

	got, err = Decode(buf, BitWidth64)
	require.NoError(t, err)
	assert.Equal(t, rec, got)
}

func TestRoundTrip_Random(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for iter := 0; iter < 50; iter++ {
		channels := 1 + rng.Intn(16)
		perChannel := rng.Intn(64)
		bitWidth := BitWidth16
		if iter%2 == 1 {
			bitWidth = BitWidth64
		}

		samples := make([][]float64, channels)
		for ch := range samples {
			samples[ch] = make([]float64, perChannel)
			for i := range samples[ch] {
				if bitWidth == BitWidth16 {
					samples[ch][i] = float64(rng.Intn(math.MaxUint16+1) + math.MinInt16)
				} else {
					samples[ch][i] = rng.NormFloat64() * 1000
				}
			}
		}
		rec := Record{Type: SampleTypeBroadband, Timestamp: rng.Int63(), BitWidth: bitWidth, Samples: samples}

		buf, err := Encode(rec)
		require.NoError(t, err)
		got, err := Decode(buf, bitWidth)
		require.NoError(t, err)
		require.Equal(t, rec, got)
	}
}

func TestAppendEncode_PreservesPrefix(t *testing.T) {
	prefix := []byte("hdr")
	rec := broadband(BitWidth16, []float64{1})

	out, err := AppendEncode(prefix, rec)
	require.NoError(t, err)
	assert.Equal(t, []byte("hdr"), out[:3])

	got, err := Decode(out[3:], BitWidth16)
	require.NoError(t, err)
	assert.Equal(t, rec, got)
}

func TestEncode_Rejects(t *testing.T) {
	tests := []struct {
		name string
		rec  Record
	}{
		{"ragged channels", broadband(BitWidth16, []float64{1, 2}, []float64{1})},
		{"unsupported bit width", broadband(32, []float64{1})},
		{"fractional 16-bit sample", broadband(BitWidth16, []float64{1.5})},
		{"16-bit overflow", broadband(BitWidth16, []float64{40000})},
		{"missing type", Record{BitWidth: BitWidth16, Samples: [][]float64{{1}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Encode(tt.rec)
			require.Error(t, err)
			assert.ErrorIs(t, err, errors.ErrMalformedRecord)
		})
	}
}

func TestDecode_Truncated(t *testing.T) {
	buf, err := Encode(broadband(BitWidth64, []float64{1, 2, 3}, []float64{4, 5, 6}))
	require.NoError(t, err)

	// every strict prefix must fail cleanly
	for n := 0; n < len(buf); n++ {
		_, err := Decode(buf[:n:n], BitWidth64)
		require.Error(t, err, "prefix of %d bytes", n)
		assert.ErrorIs(t, err, errors.ErrMalformedRecord)
	}
}

func TestDecode_Rejects(t *testing.T) {
	valid, err := Encode(broadband(BitWidth16, []float64{1, 2}))
	require.NoError(t, err)

	mutate := func(f func(b []byte) []byte) []byte {
		b := append([]byte(nil), valid...)
		return f(b)
	}

	tests := []struct {
		name     string
		buf      []byte
		bitWidth int
	}{
		{"bad magic", mutate(func(b []byte) []byte { b[0] = 0x00; return b }), BitWidth16},
		{"zero sample type", mutate(func(b []byte) []byte { b[1] = 0; return b }), BitWidth16},
		{"reserved byte set", mutate(func(b []byte) []byte { b[10] = 1; return b }), BitWidth16},
		{"trailing bytes", mutate(func(b []byte) []byte { return append(b, 0xFF) }), BitWidth16},
		{"declared count too large", mutate(func(b []byte) []byte {
			binary.BigEndian.PutUint16(b[11:13], math.MaxUint16)
			return b
		}), BitWidth16},
		{"wrong bit width", valid, BitWidth64},
		{"unsupported bit width", valid, 24},
		{"uninferable payload", mutate(func(b []byte) []byte { return append(b, 0x00) }), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.buf, tt.bitWidth)
			require.Error(t, err)
			assert.ErrorIs(t, err, errors.ErrMalformedRecord)
		})
	}
}

func TestSampleType_String(t *testing.T) {
	assert.Equal(t, "broadband", SampleTypeBroadband.String())
	assert.Equal(t, "sample_type(9)", SampleType(9).String())
}
