package narration

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	bytesPerSample = 2
	channels       = 1
	bitsPerSample  = 16
	wavHeaderSize  = 44
)

// SampleCount returns the number of whole 16-bit mono samples in pcm.
func SampleCount(pcm []byte) int {
	return len(pcm) / bytesPerSample
}

// Seconds converts a sample count to seconds at rate.
func Seconds(samples, rate int) float64 {
	if rate <= 0 {
		return 0
	}
	return float64(samples) / float64(rate)
}

// WriteWAV writes 16-bit little-endian mono PCM as a RIFF/WAVE stream.
func WriteWAV(w io.Writer, pcm []byte, sampleRate int) error {
	if sampleRate <= 0 {
		return fmt.Errorf("wav: invalid sample rate %d", sampleRate)
	}
	dataLen := SampleCount(pcm) * bytesPerSample
	byteRate := sampleRate * channels * bitsPerSample / 8

	header := make([]byte, wavHeaderSize)
	copy(header[0:4], "RIFF")
	binary.LittleEndian.PutUint32(header[4:8], uint32(36+dataLen))
	copy(header[8:12], "WAVE")
	copy(header[12:16], "fmt ")
	binary.LittleEndian.PutUint32(header[16:20], 16)
	binary.LittleEndian.PutUint16(header[20:22], 1)
	binary.LittleEndian.PutUint16(header[22:24], channels)
	binary.LittleEndian.PutUint32(header[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(header[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(header[32:34], channels*bitsPerSample/8)
	binary.LittleEndian.PutUint16(header[34:36], bitsPerSample)
	copy(header[36:40], "data")
	binary.LittleEndian.PutUint32(header[40:44], uint32(dataLen))

	if _, err := w.Write(header); err != nil {
		return err
	}
	_, err := w.Write(pcm[:dataLen])
	return err
}

// ReadWAVInfo parses a canonical PCM WAV header and returns its sample rate
// and sample count.
func ReadWAVInfo(r io.Reader) (sampleRate, samples int, err error) {
	header := make([]byte, wavHeaderSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return 0, 0, fmt.Errorf("wav: read header: %w", err)
	}
	if string(header[0:4]) != "RIFF" || string(header[8:12]) != "WAVE" || string(header[36:40]) != "data" {
		return 0, 0, errors.New("wav: not a canonical PCM file")
	}
	if binary.LittleEndian.Uint16(header[34:36]) != bitsPerSample || binary.LittleEndian.Uint16(header[22:24]) != channels {
		return 0, 0, errors.New("wav: expected 16-bit mono")
	}
	rate := int(binary.LittleEndian.Uint32(header[24:28]))
	dataLen := int(binary.LittleEndian.Uint32(header[40:44]))
	return rate, dataLen / bytesPerSample, nil
}
