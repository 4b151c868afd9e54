package audio

import "math/bits"

// G.711 μ-law companding constants
const (
	muLawBias = 0x84  // 132, added before segment lookup
	muLawClip = 32635 // Maximum magnitude before companding
)

// EncodeMuLawSample compresses one 16-bit linear PCM sample to 8-bit μ-law
// per ITU-T G.711: sign bit, 3-bit segment (exponent), 4-bit mantissa,
// complemented on the wire.
func EncodeMuLawSample(pcm int16) byte {
	sample := int(pcm)

	sign := 0
	if sample < 0 {
		sign = 0x80
		sample = -sample
	}
	if sample > muLawClip {
		sample = muLawClip
	}

	sample += muLawBias

	// Segment is the position of the highest set bit above bit 7.
	// sample is at least muLawBias, so bits.Len is always >= 8.
	exponent := bits.Len(uint(sample)) - 8
	mantissa := (sample >> (uint(exponent) + 3)) & 0x0F

	return byte(^(sign | (exponent << 4) | mantissa))
}

// DecodeMuLawSample expands one 8-bit μ-law sample back to 16-bit linear PCM.
// Exact inverse of the G.711 segment/mantissa packing used by EncodeMuLawSample.
func DecodeMuLawSample(mu byte) int16 {
	mu = ^mu

	sign := mu & 0x80
	exponent := (mu >> 4) & 0x07
	mantissa := mu & 0x0F

	magnitude := ((int(mantissa) << 3) + muLawBias) << exponent

	if sign != 0 {
		return int16(muLawBias - magnitude)
	}
	return int16(magnitude - muLawBias)
}

// EncodeMuLaw compresses a slice of PCM samples to μ-law bytes.
func EncodeMuLaw(samples []int16) []byte {
	out := make([]byte, len(samples))
	for i, s := range samples {
		out[i] = EncodeMuLawSample(s)
	}
	return out
}

// DecodeMuLaw expands μ-law bytes to PCM samples.
func DecodeMuLaw(data []byte) []int16 {
	out := make([]int16, len(data))
	for i, b := range data {
		out[i] = DecodeMuLawSample(b)
	}
	return out
}
