package audio

import "fmt"

// Resample converts samples from one rate to another by linear interpolation.
// The input is assumed to be band-limited already (it came through the
// client-side decimator), so interpolation introduces no audible artifacts
// for the upsampling case used here.
func Resample(samples []int16, fromRate, toRate int) ([]int16, error) {
	if fromRate <= 0 || toRate <= 0 {
		return nil, fmt.Errorf("sample rates must be positive, got %d -> %d", fromRate, toRate)
	}
	if len(samples) == 0 {
		return nil, nil
	}
	if fromRate == toRate {
		out := make([]int16, len(samples))
		copy(out, samples)
		return out, nil
	}

	outLen := len(samples) * toRate / fromRate
	if outLen == 0 {
		outLen = 1
	}

	out := make([]int16, outLen)
	step := float64(fromRate) / float64(toRate)

	for i := range out {
		pos := float64(i) * step
		idx := int(pos)
		if idx >= len(samples)-1 {
			out[i] = samples[len(samples)-1]
			continue
		}
		frac := pos - float64(idx)
		a := float64(samples[idx])
		b := float64(samples[idx+1])
		out[i] = int16(a + (b-a)*frac)
	}

	return out, nil
}
