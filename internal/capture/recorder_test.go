package capture

import (
	"bytes"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/natetr/CrankScribe/internal/audio"
)

func newTestRecorder(t *testing.T, cfg Config) *Recorder {
	t.Helper()
	r, err := NewRecorder(cfg, nil)
	if err != nil {
		t.Fatalf("NewRecorder failed: %v", err)
	}
	return r
}

// toneBlock generates one block of a 440 Hz tone at the given amplitude.
func toneBlock(rate, offset, n int, amplitude float64) []int16 {
	block := make([]int16, n)
	for i := range block {
		t := float64(offset+i) / float64(rate)
		block[i] = int16(amplitude * math.Sin(2*math.Pi*440*t))
	}
	return block
}

func TestStartStopLifecycle(t *testing.T) {
	r := newTestRecorder(t, Config{})

	if err := r.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := r.Start(); !errors.Is(err, ErrAlreadyActive) {
		t.Errorf("double Start error = %v, want ErrAlreadyActive", err)
	}

	if _, _, err := r.Stop(); !errors.Is(err, ErrNoAudio) {
		t.Errorf("Stop with no samples error = %v, want ErrNoAudio", err)
	}
	if _, _, err := r.Stop(); !errors.Is(err, ErrNotActive) {
		t.Errorf("Stop when idle error = %v, want ErrNotActive", err)
	}
}

func TestSequenceNumbersAreContiguous(t *testing.T) {
	r := newTestRecorder(t, Config{
		InputRate:     8000,
		OutputRate:    8000,
		ChunkDuration: time.Second,
	})
	r.SetVADEnabled(false)

	if err := r.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	var seqs []int
	block := make([]int16, 160)
	for fed := 0; fed < 8000*5; fed += len(block) {
		r.Feed(block)
		if c := r.TakeChunk(); c != nil {
			seqs = append(seqs, c.Seq)
		}
	}
	if _, _, err := r.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if c := r.TakeChunk(); c != nil {
		seqs = append(seqs, c.Seq)
	}

	if len(seqs) == 0 {
		t.Fatal("no chunks sealed")
	}
	for i, seq := range seqs {
		if seq != i {
			t.Fatalf("sequence gap: chunk %d has seq %d", i, seq)
		}
	}
}

func TestSilentWindowStillSealsEmptyChunk(t *testing.T) {
	r := newTestRecorder(t, Config{
		InputRate:     8000,
		OutputRate:    8000,
		ChunkDuration: time.Second,
	})

	if err := r.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	silence := make([]int16, 160)
	var chunk *Chunk
	for fed := 0; fed < 8000+160; fed += len(silence) {
		r.Feed(silence)
		if c := r.TakeChunk(); c != nil {
			chunk = c
		}
	}

	if chunk == nil {
		t.Fatal("silent window did not seal a chunk")
	}
	if chunk.Seq != 0 {
		t.Errorf("silent chunk seq = %d, want 0", chunk.Seq)
	}
	if len(chunk.Payload) != 0 {
		t.Errorf("silent chunk payload = %d bytes, want 0", len(chunk.Payload))
	}
}

func TestMailboxOverrunDropsOldest(t *testing.T) {
	r := newTestRecorder(t, Config{
		InputRate:     8000,
		OutputRate:    8000,
		ChunkDuration: time.Second,
	})

	if err := r.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	// Two full windows without a single TakeChunk.
	silence := make([]int16, 400)
	for fed := 0; fed < 8000*2+400; fed += len(silence) {
		r.Feed(silence)
	}

	stats := r.Stats()
	if stats.SealedChunks != 2 {
		t.Fatalf("sealed %d chunks, want 2", stats.SealedChunks)
	}
	if stats.Overruns != 1 {
		t.Errorf("overruns = %d, want 1", stats.Overruns)
	}

	c := r.TakeChunk()
	if c == nil || c.Seq != 1 {
		t.Errorf("mailbox should hold the newest chunk (seq 1), got %+v", c)
	}
}

func TestVADDisabledEncodesEverything(t *testing.T) {
	r := newTestRecorder(t, Config{
		InputRate:     8000,
		OutputRate:    8000,
		ChunkDuration: time.Second,
	})
	r.SetVADEnabled(false)

	if err := r.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	silence := make([]int16, 8000)
	r.Feed(silence)

	c := r.TakeChunk()
	if c == nil {
		t.Fatal("no chunk sealed")
	}
	if len(c.Payload) != 8000 {
		t.Errorf("payload = %d bytes, want 8000 (one byte per sample, nothing gated)", len(c.Payload))
	}
}

func TestBackupContainer(t *testing.T) {
	r := newTestRecorder(t, Config{
		InputRate:     8000,
		OutputRate:    8000,
		ChunkDuration: time.Second,
	})

	if err := r.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	r.Feed(toneBlock(8000, 0, 12000, 8000))

	backup, duration, err := r.Stop()
	if err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if duration != 1.5 {
		t.Errorf("duration = %f, want 1.5", duration)
	}

	samples, rate, err := audio.DecodeWAV(backup)
	if err != nil {
		t.Fatalf("backup is not a valid WAV: %v", err)
	}
	if rate != 8000 {
		t.Errorf("backup rate = %d, want 8000", rate)
	}
	if len(samples) != 12000 {
		t.Errorf("backup holds %d samples, want 12000", len(samples))
	}
}

func TestCompressionIsDeterministic(t *testing.T) {
	run := func() []byte {
		r := newTestRecorder(t, Config{
			InputRate:     44100,
			OutputRate:    8000,
			ChunkDuration: time.Second,
		})
		if err := r.Start(); err != nil {
			t.Fatalf("Start failed: %v", err)
		}

		var out []byte
		for off := 0; off < 44100*2; off += 441 {
			r.Feed(toneBlock(44100, off, 441, 6000))
			if c := r.TakeChunk(); c != nil {
				out = append(out, c.Payload...)
			}
		}
		if _, _, err := r.Stop(); err != nil {
			t.Fatalf("Stop failed: %v", err)
		}
		if c := r.TakeChunk(); c != nil {
			out = append(out, c.Payload...)
		}
		return out
	}

	a, b := run(), run()
	if !bytes.Equal(a, b) {
		t.Fatal("identical input produced different compressed bytes")
	}
}

// Sixty-five seconds with two 20-second voiced segments: the 30-second
// cadence must seal exactly 3 chunks and the silence gate must shed most of
// the stream.
func TestVoiceGatedRecordingScenario(t *testing.T) {
	const inputRate = 44100

	r := newTestRecorder(t, Config{
		InputRate:  inputRate,
		OutputRate: 8000,
	})
	if err := r.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	voiced := func(sec float64) bool {
		return sec < 20 || (sec >= 45 && sec < 65)
	}

	var chunks []*Chunk
	const block = 4410 // 100 ms
	for off := 0; off < inputRate*65; off += block {
		sec := float64(off) / inputRate
		if voiced(sec) {
			r.Feed(toneBlock(inputRate, off, block, 8000))
		} else {
			r.Feed(make([]int16, block))
		}
		if c := r.TakeChunk(); c != nil {
			chunks = append(chunks, c)
		}
	}

	backup, duration, err := r.Stop()
	if err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if c := r.TakeChunk(); c != nil {
		chunks = append(chunks, c)
	}

	if len(chunks) != 3 {
		t.Fatalf("sealed %d chunks, want 3", len(chunks))
	}
	for i, c := range chunks {
		if c.Seq != i {
			t.Errorf("chunk %d has seq %d", i, c.Seq)
		}
	}

	if duration < 64.9 || duration > 65.1 {
		t.Errorf("raw duration = %f, want ~65", duration)
	}

	total := 0
	for _, c := range chunks {
		total += len(c.Payload)
	}
	rawBytes := 65 * 8000
	if total >= rawBytes*3/4 {
		t.Errorf("compressed %d bytes of %d raw: silence gate did not bite", total, rawBytes)
	}
	if total < 40*8000 {
		t.Errorf("compressed %d bytes: voiced segments were over-gated", total)
	}

	if _, err := audio.WAVDuration(backup); err != nil {
		t.Errorf("backup container invalid: %v", err)
	}
}
