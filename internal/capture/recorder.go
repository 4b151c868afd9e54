package capture

import (
	"errors"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"github.com/natetr/CrankScribe/internal/audio"
	"github.com/natetr/CrankScribe/internal/vad"
)

// Capture defaults. Input is the microphone's native rate, output is the
// wire rate carried as μ-law.
const (
	DefaultInputRate  = 44100
	DefaultOutputRate = 8000

	// DefaultChunkDuration is the wall-clock sealing cadence.
	DefaultChunkDuration = 30 * time.Second

	// DefaultFrameSamples is the VAD analysis frame (20 ms at 8 kHz).
	DefaultFrameSamples = 160

	// growSeconds is the fixed raw-buffer growth increment. Growth happens
	// in one bounded copy so it never stalls the feed path for long.
	growSeconds = 30

	// DefaultMaxDuration caps the raw buffer. Past it the recorder silently
	// stops accepting samples instead of failing the real-time path.
	DefaultMaxDuration = 2 * time.Hour
)

var (
	ErrAlreadyActive     = errors.New("recording already active")
	ErrNotActive         = errors.New("no active recording")
	ErrNoAudio           = errors.New("no audio captured")
	ErrAllocationFailure = errors.New("failed to allocate audio buffer")
)

// Chunk is a sealed unit of compressed audio. The payload may be empty when
// the whole window was gated out as silence; the chunk is still sealed so the
// sequence space stays contiguous for the reassembler.
type Chunk struct {
	Seq     int
	Payload []byte
}

// Source delivers live samples to a registered callback. Start begins
// delivery and Stop deregisters the callback; Stop must not return while a
// delivery is still in progress, which is what makes the recorder's lock-free
// feed path sound.
type Source interface {
	Start(fn func([]int16)) error
	Stop() error
}

// Config tunes a Recorder. Zero values fall back to the defaults above.
type Config struct {
	InputRate     int
	OutputRate    int
	ChunkDuration time.Duration
	FrameSamples  int
	MaxDuration   time.Duration

	VADThreshold      int
	VADHoldoverFrames int
}

func (c *Config) applyDefaults() {
	if c.InputRate == 0 {
		c.InputRate = DefaultInputRate
	}
	if c.OutputRate == 0 {
		c.OutputRate = DefaultOutputRate
	}
	if c.ChunkDuration == 0 {
		c.ChunkDuration = DefaultChunkDuration
	}
	if c.FrameSamples == 0 {
		c.FrameSamples = DefaultFrameSamples
	}
	if c.MaxDuration == 0 {
		c.MaxDuration = DefaultMaxDuration
	}
	if c.VADThreshold == 0 {
		c.VADThreshold = vad.DefaultThreshold
	}
	if c.VADHoldoverFrames == 0 {
		c.VADHoldoverFrames = vad.DefaultHoldoverFrames
	}
}

// Recorder owns the state of one recording: the decimator, the VAD gate, the
// raw backup buffer, the compressed accumulator, and the chunk mailbox.
//
// Feed runs on the audio source's callback; everything else runs on the
// application loop. The only values shared between the two are accessed
// atomically.
type Recorder struct {
	cfg    Config
	source Source

	active bool

	dec *audio.Decimator
	det *vad.Detector

	raw        []int16 // decimated samples, backup fidelity
	maxSamples int
	saturated  bool

	frame    []int16 // VAD frame being filled
	frameLen int

	pending      []byte // μ-law bytes accumulated since the last boundary
	chunkSamples int    // raw samples per sealing window
	lastBoundary int    // raw length at the previous seal
	nextSeq      int

	// Shared with the application loop
	mailbox   atomic.Pointer[Chunk]
	rawLen    atomic.Int64
	levelBits atomic.Uint64
	sealed    atomic.Uint64
	overruns  atomic.Uint64
}

// NewRecorder creates an idle recorder. source may be nil when the caller
// feeds samples directly (tests, file-driven capture).
func NewRecorder(cfg Config, source Source) (*Recorder, error) {
	cfg.applyDefaults()

	if cfg.OutputRate > cfg.InputRate {
		return nil, fmt.Errorf("output rate %d exceeds input rate %d", cfg.OutputRate, cfg.InputRate)
	}
	if cfg.ChunkDuration < time.Second {
		return nil, fmt.Errorf("chunk duration %s too short", cfg.ChunkDuration)
	}

	det, err := vad.NewDetector(cfg.VADThreshold, cfg.VADHoldoverFrames)
	if err != nil {
		return nil, err
	}

	return &Recorder{
		cfg:    cfg,
		source: source,
		det:    det,
	}, nil
}

// Start allocates buffers for the initial window and begins receiving
// samples. Returns ErrAlreadyActive on double start.
func (r *Recorder) Start() error {
	if r.active {
		return ErrAlreadyActive
	}

	dec, err := audio.NewDecimator(r.cfg.InputRate, r.cfg.OutputRate)
	if err != nil {
		return err
	}

	initial := r.cfg.OutputRate * growSeconds
	r.maxSamples = int(r.cfg.MaxDuration.Seconds() * float64(r.cfg.OutputRate))
	if r.maxSamples < initial {
		return fmt.Errorf("%w: max duration below the initial %ds window", ErrAllocationFailure, growSeconds)
	}

	r.dec = dec
	r.det.Reset()
	r.raw = make([]int16, 0, initial)
	r.frame = make([]int16, r.cfg.FrameSamples)
	r.frameLen = 0
	r.pending = make([]byte, 0, initial)
	r.chunkSamples = int(r.cfg.ChunkDuration.Seconds() * float64(r.cfg.OutputRate))
	r.lastBoundary = 0
	r.nextSeq = 0
	r.saturated = false

	r.mailbox.Store(nil)
	r.rawLen.Store(0)
	r.levelBits.Store(0)
	r.sealed.Store(0)
	r.overruns.Store(0)

	r.active = true

	if r.source != nil {
		if err := r.source.Start(r.Feed); err != nil {
			r.active = false
			r.releaseBuffers()
			return fmt.Errorf("failed to start audio source: %w", err)
		}
	}

	return nil
}

// Feed consumes a block of input-rate samples. It is invoked by the audio
// source, never by application code directly. It never blocks and performs
// at most one bounded buffer growth per output sample.
func (r *Recorder) Feed(samples []int16) {
	if !r.active || len(samples) == 0 {
		return
	}

	// Level meter over this input block.
	var sum float64
	for _, s := range samples {
		f := float64(s) / 32768.0
		sum += f * f
	}
	r.levelBits.Store(math.Float64bits(math.Sqrt(sum / float64(len(samples)))))

	for _, s := range samples {
		out, ok := r.dec.Feed(s)
		if !ok {
			continue
		}

		if !r.appendRaw(out) {
			// Buffer is saturated: drop the rest of this call silently
			// rather than fault the real-time path.
			break
		}

		r.frame[r.frameLen] = out
		r.frameLen++
		if r.frameLen == len(r.frame) {
			if r.det.ClassifyFrame(r.frame) {
				r.pending = append(r.pending, audio.EncodeMuLaw(r.frame)...)
			}
			r.frameLen = 0
		}

		if len(r.raw)-r.lastBoundary >= r.chunkSamples {
			r.seal()
		}
	}

	r.rawLen.Store(int64(len(r.raw)))
}

// appendRaw appends one decimated sample, growing the buffer by the fixed
// increment when capacity runs out. Reports false once the hard cap is hit.
func (r *Recorder) appendRaw(s int16) bool {
	if len(r.raw) >= r.maxSamples {
		r.saturated = true
		return false
	}
	if len(r.raw) == cap(r.raw) {
		grown := make([]int16, len(r.raw), cap(r.raw)+r.cfg.OutputRate*growSeconds)
		copy(grown, r.raw)
		r.raw = grown
	}
	r.raw = append(r.raw, s)
	return true
}

// seal closes the current compressed window as the next chunk and publishes
// it to the mailbox. A previous chunk still sitting in the slot is lost and
// counted as an overrun; the mailbox never blocks the feed path.
func (r *Recorder) seal() {
	payload := make([]byte, len(r.pending))
	copy(payload, r.pending)
	r.pending = r.pending[:0]
	r.lastBoundary = len(r.raw)

	chunk := &Chunk{Seq: r.nextSeq, Payload: payload}
	r.nextSeq++
	r.sealed.Add(1)

	if old := r.mailbox.Swap(chunk); old != nil {
		r.overruns.Add(1)
	}
}

// HasChunk reports whether a sealed chunk is waiting in the mailbox.
func (r *Recorder) HasChunk() bool {
	return r.mailbox.Load() != nil
}

// TakeChunk removes and returns the waiting chunk, or nil. Ownership
// transfers to the caller.
func (r *Recorder) TakeChunk() *Chunk {
	return r.mailbox.Swap(nil)
}

// Stop deregisters the sample source, seals any compressed tail since the
// last boundary, and builds the WAV backup from the raw buffer. It returns
// the backup bytes and the total raw duration in seconds.
func (r *Recorder) Stop() ([]byte, float64, error) {
	if !r.active {
		return nil, 0, ErrNotActive
	}

	// Deregistering first guarantees no Feed is running when the buffers
	// are torn down below.
	if r.source != nil {
		if err := r.source.Stop(); err != nil {
			return nil, 0, fmt.Errorf("failed to stop audio source: %w", err)
		}
	}
	r.active = false

	if len(r.raw) == 0 {
		r.releaseBuffers()
		return nil, 0, ErrNoAudio
	}

	// The tail window is sealed even short of the cadence so the last
	// stretch of speech still ships.
	if len(r.raw) > r.lastBoundary {
		r.seal()
	}

	backup, err := audio.EncodeWAV(r.raw, r.cfg.OutputRate)
	if err != nil {
		r.releaseBuffers()
		return nil, 0, fmt.Errorf("failed to build backup container: %w", err)
	}

	duration := float64(len(r.raw)) / float64(r.cfg.OutputRate)
	r.releaseBuffers()

	return backup, duration, nil
}

func (r *Recorder) releaseBuffers() {
	r.raw = nil
	r.pending = nil
	r.frame = nil
	r.dec = nil
	r.rawLen.Store(0)
}

// Active reports whether a recording is in progress.
func (r *Recorder) Active() bool {
	return r.active
}

// SetVADEnabled toggles the silence gate. Disabled means every frame is kept,
// which is useful for validating the rest of the pipeline.
func (r *Recorder) SetVADEnabled(enabled bool) {
	r.det.SetEnabled(enabled)
}

// Level returns the RMS of the most recent input block, in 0..1.
func (r *Recorder) Level() float64 {
	return math.Float64frombits(r.levelBits.Load())
}

// Duration returns the captured raw duration so far, in seconds.
func (r *Recorder) Duration() float64 {
	return float64(r.rawLen.Load()) / float64(r.cfg.OutputRate)
}

// Counters is a snapshot of recorder progress for the status screen.
type Counters struct {
	SealedChunks uint64
	Overruns     uint64
}

// Stats returns the current counters.
func (r *Recorder) Stats() Counters {
	return Counters{
		SealedChunks: r.sealed.Load(),
		Overruns:     r.overruns.Load(),
	}
}
