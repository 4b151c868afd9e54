package vad

import "fmt"

// Default tuning for 8 kHz capture output.
const (
	// DefaultThreshold is the mean absolute amplitude above which a frame
	// counts as speech.
	DefaultThreshold = 500

	// DefaultHoldoverFrames is how many frames after detected speech are
	// still treated as voiced (15 frames = 300 ms at 20 ms frames).
	DefaultHoldoverFrames = 15
)

// Detector classifies fixed-length audio frames as voiced or silent by mean
// absolute amplitude. A voiced frame arms a holdover counter so the frames
// that follow it stay voiced even when they fall below the threshold.
//
// A Detector is owned by a single capture path and is not safe for concurrent
// use; the real-time feed must stay free of locking.
type Detector struct {
	threshold int
	holdover  int
	enabled   bool

	holdoverLeft int

	// Statistics
	totalFrames  uint64
	voicedFrames uint64
}

// Stats is a snapshot of detector counters.
type Stats struct {
	TotalFrames  uint64  `json:"total_frames"`
	VoicedFrames uint64  `json:"voiced_frames"`
	VoicedRatio  float64 `json:"voiced_ratio"`
}

// NewDetector creates a detector with the given energy threshold and holdover
// window, both in the units described on the Default constants.
func NewDetector(threshold, holdoverFrames int) (*Detector, error) {
	if threshold < 0 {
		return nil, fmt.Errorf("threshold cannot be negative, got %d", threshold)
	}
	if holdoverFrames < 0 {
		return nil, fmt.Errorf("holdover frames cannot be negative, got %d", holdoverFrames)
	}

	return &Detector{
		threshold: threshold,
		holdover:  holdoverFrames,
		enabled:   true,
	}, nil
}

// ClassifyFrame reports whether a frame should be kept as speech. With the
// detector disabled every frame is voiced, which keeps the rest of the
// pipeline exercisable without a speech signal.
func (d *Detector) ClassifyFrame(frame []int16) bool {
	d.totalFrames++

	if !d.enabled {
		d.voicedFrames++
		return true
	}
	if len(frame) == 0 {
		return false
	}

	var sum int64
	for _, s := range frame {
		v := int64(s)
		if v < 0 {
			v = -v
		}
		sum += v
	}
	mean := sum / int64(len(frame))

	if mean >= int64(d.threshold) {
		d.holdoverLeft = d.holdover
		d.voicedFrames++
		return true
	}

	if d.holdoverLeft > 0 {
		d.holdoverLeft--
		d.voicedFrames++
		return true
	}

	return false
}

// SetEnabled toggles the gate. Disabling does not clear holdover state, so a
// re-enable resumes where the gate left off.
func (d *Detector) SetEnabled(enabled bool) {
	d.enabled = enabled
}

// Enabled reports whether the gate is active.
func (d *Detector) Enabled() bool {
	return d.enabled
}

// Reset clears holdover state and statistics for a new recording.
func (d *Detector) Reset() {
	d.holdoverLeft = 0
	d.totalFrames = 0
	d.voicedFrames = 0
}

// Stats returns the current frame counters.
func (d *Detector) Stats() Stats {
	ratio := float64(0)
	if d.totalFrames > 0 {
		ratio = float64(d.voicedFrames) / float64(d.totalFrames)
	}
	return Stats{
		TotalFrames:  d.totalFrames,
		VoicedFrames: d.voicedFrames,
		VoicedRatio:  ratio,
	}
}
