package midi2wav

import (
	"fmt"
	"math"
)

// Voice is the synthesis state of one active note. A voice is owned
// exclusively by the render that created it and covers a fixed window of
// durationFrames output frames. Sample is a pure function of the voice and
// the frame offset, so rendering the same voice twice gives identical output.
type Voice struct {
	velocity   float32
	duration   int
	sampleRate int

	// sampled playback; wave == nil selects the fallback oscillator
	wave *KeySample
	step float64

	// fallback oscillator
	freq      float64
	harmonics int
}

// envelope segments of the fallback oscillator, as fractions of the voice
// duration, with the sustain level between decay and release.
const (
	envAttackFrac  = 0.10
	envDecayFrac   = 0.20
	envReleaseFrac = 0.20
	envSustain     = 0.7
)

// NewVoice creates the voice for one note. If the bank supplies a sample for
// the pitch, the voice plays it back resampled by 2^((pitch-root)/12) ×
// nativeRate / targetRate with linear interpolation; otherwise it falls back
// to a band-limited sawtooth at the pitch's equal-tempered frequency, shaped
// by an attack-decay-sustain-release envelope scaled to durationFrames.
func NewVoice(pitch int, velocity float64, durationFrames, sampleRate int, bank *InstrumentBank) (*Voice, error) {
	if !(velocity > 0) || math.IsInf(velocity, 0) {
		return nil, fmt.Errorf("%w: velocity %v", ErrInvalidNote, velocity)
	}
	if pitch < 0 || pitch > 127 {
		return nil, fmt.Errorf("%w: pitch %v out of MIDI range", ErrInvalidNote, pitch)
	}
	v := &Voice{
		velocity:   float32(velocity),
		duration:   durationFrames,
		sampleRate: sampleRate,
	}
	if wave := bank.SampleForKey(pitch); wave != nil {
		v.wave = wave
		v.step = math.Exp2(float64(pitch-wave.RootKey)/12) * float64(wave.SampleRate) / float64(sampleRate)
		return v, nil
	}
	v.freq = 440 * math.Exp2(float64(pitch-69)/12)
	v.harmonics = int(float64(sampleRate) / 2 / v.freq)
	if v.harmonics < 1 {
		v.harmonics = 1
	}
	return v, nil
}

// NumFrames returns the length of the voice's active window in frames.
func (v *Voice) NumFrames() int {
	return v.duration
}

// Frequency returns the fallback oscillator frequency in Hz, or 0 for a
// voice playing back a bank sample.
func (v *Voice) Frequency() float64 {
	return v.freq
}

// Sample returns the voice's contribution at the given offset into its active
// window. Offsets outside [0, NumFrames) yield silence.
func (v *Voice) Sample(offset int) float32 {
	if offset < 0 || offset >= v.duration {
		return 0
	}
	if v.wave != nil {
		return v.velocity * v.wave.at(float64(offset)*v.step)
	}
	return v.velocity * v.envelope(offset) * v.oscillate(offset)
}

// oscillate evaluates a band-limited sawtooth: harmonics of the fundamental
// summed up to the Nyquist frequency, each at amplitude 1/n, scaled so the
// peak stays in the nominal [-1,1] range.
func (v *Voice) oscillate(offset int) float32 {
	t := float64(offset) / float64(v.sampleRate)
	omega := 2 * math.Pi * v.freq * t
	var sum, norm float64
	for n := 1; n <= v.harmonics; n++ {
		sum += math.Sin(omega*float64(n)) / float64(n)
		norm += 1 / float64(n)
	}
	return float32(sum / norm)
}

func (v *Voice) envelope(offset int) float32 {
	pos := float64(offset) / float64(v.duration)
	switch {
	case pos < envAttackFrac:
		return float32(pos / envAttackFrac)
	case pos < envAttackFrac+envDecayFrac:
		decayPos := (pos - envAttackFrac) / envDecayFrac
		return float32(1 - (1-envSustain)*decayPos)
	case pos < 1-envReleaseFrac:
		return envSustain
	default:
		return float32(envSustain * (1 - pos) / envReleaseFrac)
	}
}

// at reads the sample data at a fractional source position with linear
// interpolation. Positions past the data wrap into the loop region for looped
// samples and are silent otherwise.
func (s *KeySample) at(pos float64) float32 {
	if pos < 0 || len(s.Data) == 0 {
		return 0
	}
	index := int(pos)
	frac := float32(pos - float64(index))
	if s.Looped && index >= s.LoopStart {
		index = s.LoopStart + (index-s.LoopStart)%s.LoopLength
	}
	if index >= len(s.Data) {
		return 0
	}
	cur := s.Data[index]
	next := cur
	if j := s.nextIndex(index); j < len(s.Data) {
		next = s.Data[j]
	}
	return cur + (next-cur)*frac
}

// nextIndex is the source index following index, accounting for loop wrap.
func (s *KeySample) nextIndex(index int) int {
	next := index + 1
	if s.Looped && next >= s.LoopStart+s.LoopLength {
		return s.LoopStart
	}
	return next
}
