// Package wire implements the binary sample-record format carried on the
// data plane.
//
// A record is a fixed 15-byte header followed by a channel-major payload.
// All multi-byte fields are big endian:
//
//	offset 0  : 1 byte  magic 0xA5
//	offset 1  : 1 byte  sample type (1 = broadband)
//	offset 2  : 8 bytes origin timestamp, microseconds, int64
//	offset 10 : 1 byte  reserved, always 0x00
//	offset 11 : 2 bytes channel count, uint16
//	offset 13 : 2 bytes samples per channel, uint16
//	offset 15 : payload
//
// The payload holds channelCount*samplesPerChannel samples, all of channel 0
// first. A 16-bit record stores each sample as int16; a 64-bit record stores
// each sample as an IEEE-754 float64. The bit width is not carried in the
// header: receivers either know it from configuration or let Decode infer it
// from the payload length.
//
// The codec is stateless. Encode, AppendEncode and Decode may be called from
// any number of goroutines.
package wire
