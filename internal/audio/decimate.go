package audio

import "fmt"

// Decimator downsamples a sample stream by averaging runs of input samples
// (a box filter). It is cheap enough for a real-time callback and fully
// deterministic, but makes no attempt at alias-free filtering; the microphone
// signal is assumed to carry little energy near the output Nyquist rate.
//
// The weight accumulator is kept in integer units of outputRate so fractional
// rate ratios (44100/8000 = 5.5125) stay exact.
type Decimator struct {
	inputRate  int
	outputRate int

	// Accumulator state across Feed calls
	weight int
	sum    float64
	count  int
}

// NewDecimator creates a decimator converting inputRate to outputRate.
// The rates do not need to divide evenly.
func NewDecimator(inputRate, outputRate int) (*Decimator, error) {
	if inputRate <= 0 || outputRate <= 0 {
		return nil, fmt.Errorf("sample rates must be positive, got %d -> %d", inputRate, outputRate)
	}
	if outputRate > inputRate {
		return nil, fmt.Errorf("output rate %d exceeds input rate %d", outputRate, inputRate)
	}

	return &Decimator{inputRate: inputRate, outputRate: outputRate}, nil
}

// Feed consumes one input sample. When enough weight has accumulated it emits
// one output sample (the average of the accumulated inputs) and reports true.
func (d *Decimator) Feed(sample int16) (int16, bool) {
	d.sum += float64(sample)
	d.count++
	d.weight += d.outputRate

	if d.weight < d.inputRate {
		return 0, false
	}

	out := int16(d.sum / float64(d.count))
	d.sum = 0
	d.count = 0
	d.weight -= d.inputRate

	return out, true
}

// Reset clears all accumulator state.
func (d *Decimator) Reset() {
	d.weight = 0
	d.sum = 0
	d.count = 0
}
