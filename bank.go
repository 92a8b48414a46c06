package midi2wav

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

const (
	bankMagic  = "SBNK"
	sampleTag  = "SMPL"
	loopedFlag = 1 << 0

	// fixed part of a SMPL chunk payload before the int16 sample data
	sampleHeaderSize = 4 + 4 + 4 + 4 + 4
)

type (
	// KeySample is one sampled waveform of an instrument bank: PCM data
	// together with the native sample rate it was recorded at, the key range
	// it serves and the root key it sounds unshifted at. Data is normalized to
	// [-1,1]. A looped sample keeps sounding by wrapping the read position
	// back into [LoopStart, LoopStart+LoopLength).
	KeySample struct {
		LowKey, HighKey, RootKey int
		SampleRate               int
		LoopStart, LoopLength    int
		Looped                   bool
		Data                     []float32
	}

	// InstrumentBank maps MIDI keys to sampled waveforms. It is loaded once
	// and shared read-only by all voices of a render; no resampling happens at
	// load time, so the same bank serves renders at any target sample rate.
	InstrumentBank struct {
		Samples []KeySample
	}
)

// ParseBank decodes the binary bank container. The container is little-endian
// throughout: a "SBNK" magic and a uint32 chunk count, followed by "SMPL"
// chunks, each declaring its payload length. Unrecognized tags and declared
// lengths running past the supplied bytes fail with ErrMalformedBank.
func ParseBank(data []byte) (*InstrumentBank, error) {
	if len(data) < 8 || string(data[:4]) != bankMagic {
		return nil, fmt.Errorf("%w: missing %q header", ErrMalformedBank, bankMagic)
	}
	count := binary.LittleEndian.Uint32(data[4:])
	data = data[8:]
	bank := &InstrumentBank{Samples: make([]KeySample, 0, count)}
	for i := uint32(0); i < count; i++ {
		if len(data) < 8 {
			return nil, fmt.Errorf("%w: truncated chunk header", ErrMalformedBank)
		}
		if tag := string(data[:4]); tag != sampleTag {
			return nil, fmt.Errorf("%w: unrecognized chunk tag %q", ErrMalformedBank, tag)
		}
		length := int(binary.LittleEndian.Uint32(data[4:]))
		data = data[8:]
		if length > len(data) {
			return nil, fmt.Errorf("%w: chunk length %v exceeds remaining %v bytes", ErrMalformedBank, length, len(data))
		}
		sample, err := parseKeySample(data[:length])
		if err != nil {
			return nil, err
		}
		bank.Samples = append(bank.Samples, sample)
		data = data[length:]
	}
	return bank, nil
}

func parseKeySample(payload []byte) (KeySample, error) {
	if len(payload) < sampleHeaderSize {
		return KeySample{}, fmt.Errorf("%w: sample chunk too short", ErrMalformedBank)
	}
	s := KeySample{
		LowKey:     int(payload[0]),
		HighKey:    int(payload[1]),
		RootKey:    int(payload[2]),
		Looped:     payload[3]&loopedFlag != 0,
		SampleRate: int(binary.LittleEndian.Uint32(payload[4:])),
		LoopStart:  int(binary.LittleEndian.Uint32(payload[8:])),
		LoopLength: int(binary.LittleEndian.Uint32(payload[12:])),
	}
	sampleCount := int(binary.LittleEndian.Uint32(payload[16:]))
	payload = payload[sampleHeaderSize:]
	if sampleCount*2 > len(payload) {
		return KeySample{}, fmt.Errorf("%w: %v samples declared but only %v bytes of data", ErrMalformedBank, sampleCount, len(payload))
	}
	if s.SampleRate <= 0 {
		return KeySample{}, fmt.Errorf("%w: non-positive native sample rate", ErrMalformedBank)
	}
	if s.Looped && (s.LoopLength <= 0 || s.LoopStart+s.LoopLength > sampleCount) {
		return KeySample{}, fmt.Errorf("%w: loop region outside sample data", ErrMalformedBank)
	}
	s.Data = make([]float32, sampleCount)
	for i := range s.Data {
		s.Data[i] = float32(int16(binary.LittleEndian.Uint16(payload[i*2:]))) / 32768.0
	}
	return s, nil
}

// SampleForKey returns the sample serving the given key: the first sample
// whose key range contains it, or failing that the one with the nearest root
// key. Returns nil if the bank has no samples at all.
func (b *InstrumentBank) SampleForKey(key int) *KeySample {
	if b == nil || len(b.Samples) == 0 {
		return nil
	}
	for i := range b.Samples {
		if s := &b.Samples[i]; key >= s.LowKey && key <= s.HighKey {
			return s
		}
	}
	best := &b.Samples[0]
	for i := range b.Samples[1:] {
		s := &b.Samples[i+1]
		if abs(s.RootKey-key) < abs(best.RootKey-key) {
			best = s
		}
	}
	return best
}

// MarshalBinary emits the same container ParseBank reads, so banks can be
// built programmatically.
func (b *InstrumentBank) MarshalBinary() ([]byte, error) {
	buf := new(bytes.Buffer)
	buf.WriteString(bankMagic)
	binary.Write(buf, binary.LittleEndian, uint32(len(b.Samples)))
	for _, s := range b.Samples {
		var flags byte
		if s.Looped {
			flags |= loopedFlag
		}
		buf.WriteString(sampleTag)
		binary.Write(buf, binary.LittleEndian, uint32(sampleHeaderSize+2*len(s.Data)))
		buf.Write([]byte{byte(s.LowKey), byte(s.HighKey), byte(s.RootKey), flags})
		binary.Write(buf, binary.LittleEndian, uint32(s.SampleRate))
		binary.Write(buf, binary.LittleEndian, uint32(s.LoopStart))
		binary.Write(buf, binary.LittleEndian, uint32(s.LoopLength))
		binary.Write(buf, binary.LittleEndian, uint32(len(s.Data)))
		int16data := make([]int16, len(s.Data))
		for i, v := range s.Data {
			int16data[i] = int16(clamp(int(v*32768), -32768, 32767))
		}
		if err := binary.Write(buf, binary.LittleEndian, int16data); err != nil {
			return nil, fmt.Errorf("could not binary write sample data: %w", err)
		}
	}
	return buf.Bytes(), nil
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
