package audio

import (
	"bytes"
	"encoding/binary"
	"math"

	"github.com/hammamikhairi/omnis/internal/domain"
)

// EncodeWAV wraps mono 16-bit PCM in a RIFF header.
func EncodeWAV(a *domain.Audio) []byte {
	const (
		channels      = 1
		bitsPerSample = 16
	)
	dataLen := len(a.PCM) * 2
	byteRate := a.SampleRate * channels * bitsPerSample / 8

	var b bytes.Buffer
	b.Grow(44 + dataLen)
	b.WriteString("RIFF")
	_ = binary.Write(&b, binary.LittleEndian, uint32(36+dataLen))
	b.WriteString("WAVEfmt ")
	_ = binary.Write(&b, binary.LittleEndian, uint32(16)) // fmt chunk size
	_ = binary.Write(&b, binary.LittleEndian, uint16(1))  // PCM
	_ = binary.Write(&b, binary.LittleEndian, uint16(channels))
	_ = binary.Write(&b, binary.LittleEndian, uint32(a.SampleRate))
	_ = binary.Write(&b, binary.LittleEndian, uint32(byteRate))
	_ = binary.Write(&b, binary.LittleEndian, uint16(channels*bitsPerSample/8))
	_ = binary.Write(&b, binary.LittleEndian, uint16(bitsPerSample))
	b.WriteString("data")
	_ = binary.Write(&b, binary.LittleEndian, uint32(dataLen))
	_ = binary.Write(&b, binary.LittleEndian, a.PCM)
	return b.Bytes()
}

// RMS returns the root-mean-square energy of a PCM frame, the same
// scale the energy thresholds are configured in.
func RMS(pcm []int16) float64 {
	if len(pcm) == 0 {
		return 0
	}
	var sum float64
	for _, s := range pcm {
		v := float64(s)
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(pcm)))
}
