package krishi

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"math"
)

// EncodePCM converts float32 samples to raw pcm_f32le bytes.
func EncodePCM(samples []float32) []byte {
	buf := make([]byte, len(samples)*4)
	for i, sample := range samples {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(sample))
	}
	return buf
}

// DecodePCM converts raw pcm_f32le bytes back to float32 samples.
func DecodePCM(data []byte) ([]float32, error) {
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("invalid pcm data length: %d", len(data))
	}
	samples := make([]float32, len(data)/4)
	for i := range samples {
		bits := binary.LittleEndian.Uint32(data[i*4 : (i+1)*4])
		samples[i] = math.Float32frombits(bits)
	}
	return samples, nil
}

// EncodePCMBase64 encodes samples for the wire.
func EncodePCMBase64(samples []float32) string {
	return base64.StdEncoding.EncodeToString(EncodePCM(samples))
}

// MeanAmplitude returns the mean absolute amplitude of a frame,
// clamped to [0, 1].
func MeanAmplitude(samples []float32) float32 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, v := range samples {
		sum += math.Abs(float64(v))
	}
	mean := float32(sum / float64(len(samples)))
	if mean > 1 {
		mean = 1
	}
	return mean
}

// CalculateRMS returns the root-mean-square amplitude of a frame.
func CalculateRMS(samples []float32) float32 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, v := range samples {
		sum += float64(v) * float64(v)
	}
	return float32(math.Sqrt(sum / float64(len(samples))))
}

// NormalizeAudio scales samples so the peak sits just below full scale.
func NormalizeAudio(samples []float32) []float32 {
	if len(samples) == 0 {
		return samples
	}

	maxAmp := float32(0)
	for _, sample := range samples {
		if abs := float32(math.Abs(float64(sample))); abs > maxAmp {
			maxAmp = abs
		}
	}
	if maxAmp == 0 {
		return samples
	}

	scale := float32(0.95) / maxAmp
	normalized := make([]float32, len(samples))
	for i, sample := range samples {
		normalized[i] = sample * scale
	}
	return normalized
}
