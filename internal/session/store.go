package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/natetr/CrankScribe/internal/audio"
	"github.com/natetr/CrankScribe/internal/metrics"
)

// Defaults for the server-side reassembly store.
const (
	DefaultWireRate   = 8000  // sample rate of the incoming mulaw stream
	DefaultTargetRate = 16000 // sample rate the transcription backend wants
	DefaultMaxAge     = 30 * time.Minute
	cleanupInterval   = 30 * time.Second
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrNegativeSeq     = errors.New("negative sequence number")
)

// Transcriber turns a WAV container into text.
type Transcriber interface {
	Transcribe(ctx context.Context, wav []byte) (string, error)
}

// FinalizeResult is the outcome of reassembling and transcribing one session.
type FinalizeResult struct {
	Transcript     string  `json:"transcript"`
	ChunksCombined int     `json:"chunks_combined"`
	AudioDuration  float64 `json:"audio_duration_seconds"`
}

// Config contains configuration for the session store.
type Config struct {
	WireRate   int
	TargetRate int
	MaxAge     time.Duration
}

// sessionBuffer accumulates the chunks of one session keyed by sequence
// number. Its mutex serializes chunk writes against the finalize snapshot.
type sessionBuffer struct {
	mu           sync.Mutex
	chunks       map[int][]byte
	createdAt    time.Time
	lastActivity time.Time
}

// Store manages all in-flight session buffers. Sessions are independent and
// safe to process concurrently.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*sessionBuffer

	logger      *slog.Logger
	transcriber Transcriber
	metrics     *metrics.Metrics // nil disables recording

	wireRate   int
	targetRate int
	maxAge     time.Duration

	receivedChunks    uint64
	finalizedSessions uint64
	expiredSessions   uint64

	ctx     context.Context
	cancel  context.CancelFunc
	cleanup chan struct{}
}

// NewStore creates a session store and starts its expiry routine. m may be
// nil when no metrics collection is wanted.
func NewStore(logger *slog.Logger, transcriber Transcriber, m *metrics.Metrics, cfg Config) *Store {
	if cfg.WireRate == 0 {
		cfg.WireRate = DefaultWireRate
	}
	if cfg.TargetRate == 0 {
		cfg.TargetRate = DefaultTargetRate
	}
	if cfg.MaxAge == 0 {
		cfg.MaxAge = DefaultMaxAge
	}

	ctx, cancel := context.WithCancel(context.Background())

	s := &Store{
		sessions:    make(map[string]*sessionBuffer),
		logger:      logger,
		transcriber: transcriber,
		metrics:     m,
		wireRate:    cfg.WireRate,
		targetRate:  cfg.TargetRate,
		maxAge:      cfg.MaxAge,
		ctx:         ctx,
		cancel:      cancel,
		cleanup:     make(chan struct{}),
	}

	go s.startCleanupRoutine()

	return s
}

// ReceiveChunk stores payload under (sessionID, seq), creating the session
// buffer on first contact. A repeated sequence number overwrites the prior
// payload, which makes retransmissions idempotent.
func (s *Store) ReceiveChunk(sessionID string, seq int, payload []byte) error {
	if seq < 0 {
		return fmt.Errorf("%w: %d", ErrNegativeSeq, seq)
	}

	now := time.Now()

	s.mu.Lock()
	buf, exists := s.sessions[sessionID]
	if !exists {
		buf = &sessionBuffer{
			chunks:    make(map[int][]byte),
			createdAt: now,
		}
		s.sessions[sessionID] = buf
		s.logger.Info("New session buffer created",
			slog.String("session_id", sessionID),
		)
	}
	s.receivedChunks++
	s.mu.Unlock()

	// The HTTP layer reuses request buffers; keep our own copy.
	data := make([]byte, len(payload))
	copy(data, payload)

	buf.mu.Lock()
	if _, dup := buf.chunks[seq]; dup {
		s.logger.Debug("Duplicate chunk overwritten",
			slog.String("session_id", sessionID),
			slog.Int("seq", seq),
		)
	}
	buf.chunks[seq] = data
	buf.lastActivity = now
	buf.mu.Unlock()

	return nil
}

// Finalize reconstructs the session's compressed stream in sequence order,
// decodes and resamples it, and hands the result to the transcriber. The
// session buffer is discarded before any decoding happens, so a session
// finalizes at most once even when the transcriber fails.
func (s *Store) Finalize(ctx context.Context, sessionID string) (*FinalizeResult, error) {
	s.mu.Lock()
	buf, exists := s.sessions[sessionID]
	if !exists {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %q", ErrSessionNotFound, sessionID)
	}
	delete(s.sessions, sessionID)
	s.finalizedSessions++
	s.mu.Unlock()

	// Snapshot under the buffer lock so a chunk write racing the finalize
	// request cannot interleave with concatenation.
	buf.mu.Lock()
	seqs := make([]int, 0, len(buf.chunks))
	total := 0
	for seq, data := range buf.chunks {
		seqs = append(seqs, seq)
		total += len(data)
	}
	sort.Ints(seqs)

	stream := make([]byte, 0, total)
	for _, seq := range seqs {
		stream = append(stream, buf.chunks[seq]...)
	}
	age := time.Since(buf.createdAt)
	buf.mu.Unlock()

	s.logger.Info("Finalizing session",
		slog.String("session_id", sessionID),
		slog.Int("chunks", len(seqs)),
		slog.Int("compressed_bytes", len(stream)),
		slog.Duration("session_age", age),
	)

	if len(stream) == 0 {
		// A fully voice-gated recording can legitimately arrive empty.
		return &FinalizeResult{ChunksCombined: len(seqs)}, nil
	}

	pcm := audio.DecodeMuLaw(stream)
	duration := float64(len(pcm)) / float64(s.wireRate)

	resampled, err := audio.Resample(pcm, s.wireRate, s.targetRate)
	if err != nil {
		return nil, fmt.Errorf("failed to resample session audio: %w", err)
	}

	wav, err := audio.EncodeWAV(resampled, s.targetRate)
	if err != nil {
		return nil, fmt.Errorf("failed to encode session audio: %w", err)
	}

	text, err := s.transcriber.Transcribe(ctx, wav)
	if err != nil {
		return nil, fmt.Errorf("transcription failed: %w", err)
	}

	s.logger.Info("Session finalized",
		slog.String("session_id", sessionID),
		slog.Float64("audio_duration", duration),
		slog.Int("transcript_length", len(text)),
	)

	return &FinalizeResult{
		Transcript:     text,
		ChunksCombined: len(seqs),
		AudioDuration:  duration,
	}, nil
}

// ActiveSessionCount returns the number of session buffers awaiting finalize.
func (s *Store) ActiveSessionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Stats is a snapshot of the store's lifetime counters.
type Stats struct {
	ActiveSessions    int
	ReceivedChunks    uint64
	FinalizedSessions uint64
	ExpiredSessions   uint64
}

// GetStats returns current store statistics.
func (s *Store) GetStats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Stats{
		ActiveSessions:    len(s.sessions),
		ReceivedChunks:    s.receivedChunks,
		FinalizedSessions: s.finalizedSessions,
		ExpiredSessions:   s.expiredSessions,
	}
}

// Stop gracefully stops the store's expiry routine.
func (s *Store) Stop() {
	s.cancel()
	<-s.cleanup

	s.mu.RLock()
	remaining := len(s.sessions)
	s.mu.RUnlock()

	s.logger.Info("Session store stopped",
		slog.Int("abandoned_sessions", remaining),
	)
}

// startCleanupRoutine runs in a separate goroutine to expire abandoned
// sessions, typically clients that crashed before calling finalize.
func (s *Store) startCleanupRoutine() {
	defer close(s.cleanup)

	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	s.logger.Info("Session cleanup routine started",
		slog.Duration("max_age", s.maxAge),
		slog.Duration("check_interval", cleanupInterval),
	)

	for {
		select {
		case <-s.ctx.Done():
			s.logger.Info("Session cleanup routine stopping")
			return

		case <-ticker.C:
			s.expireStaleSessions()
		}
	}
}

// expireStaleSessions removes sessions that have seen no chunk activity for
// longer than the configured maximum age.
func (s *Store) expireStaleSessions() {
	now := time.Now()
	expired := make([]string, 0)

	s.mu.RLock()
	for id, buf := range s.sessions {
		buf.mu.Lock()
		last := buf.lastActivity
		buf.mu.Unlock()

		if now.Sub(last) > s.maxAge {
			expired = append(expired, id)
		}
	}
	s.mu.RUnlock()

	if len(expired) == 0 {
		return
	}

	s.mu.Lock()
	for _, id := range expired {
		if _, still := s.sessions[id]; still {
			delete(s.sessions, id)
			s.expiredSessions++
			if s.metrics != nil {
				s.metrics.RecordSessionExpired()
			}
			s.logger.Info("Expired abandoned session",
				slog.String("session_id", id),
			)
		}
	}
	active := len(s.sessions)
	s.mu.Unlock()

	// The HTTP handlers refresh the gauge on traffic; a background expiry
	// must refresh it too or it goes stale until the next request.
	if s.metrics != nil {
		s.metrics.SetActiveSessions(active)
	}
}
