package midi2wav

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Wav encodes the buffer as a 16-bit PCM WAV file: a fixed 44-byte header
// followed by interleaved little-endian samples. Samples are clamped to
// [-1,1] before quantization, so the result saturates instead of wrapping.
// The quantization is asymmetric, scaling negative values by 32768 and
// positive values by 32767, to cover the full signed 16-bit range; -1.0 maps
// to -32768, 1.0 to 32767 and 0.0 to 0, bit-for-bit.
func Wav(buffer AudioBuffer, sampleRate int) ([]byte, error) {
	channels := buffer.Channels()
	frames := buffer.Frames()
	if channels < 1 || sampleRate < 1 {
		return nil, fmt.Errorf("%w: %v channels at %v Hz", ErrEncodingFailure, channels, sampleRate)
	}
	for c, channel := range buffer {
		if len(channel) != frames {
			return nil, fmt.Errorf("%w: channel %v has %v frames, channel 0 has %v", ErrEncodingFailure, c, len(channel), frames)
		}
	}
	int16data := make([]int16, frames*channels)
	for frame := 0; frame < frames; frame++ {
		for c := 0; c < channels; c++ {
			int16data[frame*channels+c] = quantize16(buffer[c][frame])
		}
	}
	buf := new(bytes.Buffer)
	wavHeader(sampleRate, channels, len(int16data)*2, buf)
	if err := binary.Write(buf, binary.LittleEndian, int16data); err != nil {
		return nil, fmt.Errorf("%w: could not binary write data: %v", ErrEncodingFailure, err)
	}
	return buf.Bytes(), nil
}

// quantize16 clamps to [-1,1] first; without the clamp the scaling can
// produce a value one step outside the signed 16-bit range and silently wrap.
func quantize16(v float32) int16 {
	if v <= -1 {
		return -32768
	}
	if v >= 1 {
		return 32767
	}
	if v < 0 {
		return int16(v * 32768)
	}
	return int16(v * 32767)
}

// wavHeader writes the fixed 44-byte header for a 16-bit PCM .wav file into
// the bytes.Buffer. dataLength is the length of the sample data in bytes.
func wavHeader(sampleRate, channels, dataLength int, buf *bytes.Buffer) {
	// Refer to: http://www-mmsp.ece.mcgill.ca/Documents/AudioFormats/WAVE/WAVE.html
	const bytesPerSample = 2
	buf.Write([]byte("RIFF"))
	binary.Write(buf, binary.LittleEndian, uint32(36+dataLength))
	buf.Write([]byte("WAVE"))
	buf.Write([]byte("fmt "))
	binary.Write(buf, binary.LittleEndian, uint32(16)) // fmt chunk size
	binary.Write(buf, binary.LittleEndian, uint16(1))  // PCM format
	binary.Write(buf, binary.LittleEndian, uint16(channels))
	binary.Write(buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(buf, binary.LittleEndian, uint32(sampleRate*channels*bytesPerSample)) // avgBytesPerSec
	binary.Write(buf, binary.LittleEndian, uint16(channels*bytesPerSample))            // blockAlign
	binary.Write(buf, binary.LittleEndian, uint16(8*bytesPerSample))                   // bits per sample
	buf.Write([]byte("data"))
	binary.Write(buf, binary.LittleEndian, uint32(dataLength))
}

func clamp(value, min, max int) int {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}
