package transport

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/natetr/CrankScribe/internal/capture"
)

// Upload discipline defaults.
const (
	DefaultTimeout     = 30 * time.Second
	DefaultMaxRetries  = 3 // attempts per chunk before it is dropped
	DefaultBackoffBase = 2 * time.Second
)

var (
	ErrNoEndpoint        = errors.New("no upload endpoint configured")
	ErrNoSession         = errors.New("no active session")
	ErrSessionClosed     = errors.New("session already closed")
	ErrFinalizePending   = errors.New("finalize already requested")
	ErrRequestTimeout    = errors.New("request timed out")
	ErrNetworkFailure    = errors.New("network failure")
	ErrMalformedResponse = errors.New("malformed server response")
)

// State is the uploader's lifecycle position.
type State int

const (
	StateIdle State = iota
	StateUploading
	StateFinalizing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateUploading:
		return "uploading"
	case StateFinalizing:
		return "finalizing"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// Result is the parsed outcome of a successful finalize.
type Result struct {
	Transcript    string  `json:"transcript"`
	AudioDuration float64 `json:"audio_duration_seconds"`
}

// Config tunes an Uploader.
type Config struct {
	// Endpoint is the server base URL, e.g. "https://scribe.example.com".
	Endpoint string

	Timeout     time.Duration
	MaxRetries  int
	BackoffBase time.Duration

	// HTTPClient overrides the default client (tests).
	HTTPClient *http.Client
}

// Status is a read-only snapshot for progress screens. It has no effect on
// control flow.
type Status struct {
	State          State
	SessionID      string
	QueueDepth     int
	InFlight       bool
	UploadedChunks uint64
	UploadedBytes  uint64
	FailedChunks   uint64
}

type pendingChunk struct {
	chunk      *capture.Chunk
	failures   int
	eligibleAt time.Time
}

type netResult struct {
	status int
	body   []byte
	err    error
}

type inflightOp struct {
	pending  *pendingChunk // nil for the finalize request
	issuedAt time.Time
	done     chan netResult // buffered; the network goroutine never blocks on it
}

// Uploader drives chunk delivery for one session at a time. All methods must
// be called from the same loop; nothing here is safe for concurrent use, by
// design: the client runs on a single cooperative tick.
type Uploader struct {
	cfg    Config
	client *http.Client

	state     State
	sessionID string
	queue     []*pendingChunk
	inflight  *inflightOp

	finalizeRequested bool
	finalizeCb        func(*Result, error)

	uploadedChunks uint64
	uploadedBytes  uint64
	failedChunks   uint64

	nowFunc func() time.Time
}

// NewUploader creates an idle uploader. The endpoint may be empty here;
// StartSession rejects it then.
func NewUploader(cfg Config) *Uploader {
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.BackoffBase == 0 {
		cfg.BackoffBase = DefaultBackoffBase
	}

	client := cfg.HTTPClient
	if client == nil {
		// The client-side timeout backs up the cooperative one so an
		// abandoned request's goroutine always terminates.
		client = &http.Client{Timeout: cfg.Timeout + 5*time.Second}
	}

	return &Uploader{
		cfg:     cfg,
		client:  client,
		state:   StateIdle,
		nowFunc: time.Now,
	}
}

// StartSession mints a fresh session identifier and resets the queue and all
// counters. It fails when no endpoint is configured.
func (u *Uploader) StartSession() (string, error) {
	if u.cfg.Endpoint == "" {
		return "", ErrNoEndpoint
	}

	u.sessionID = uuid.NewString()
	u.state = StateIdle
	u.queue = nil
	u.inflight = nil
	u.finalizeRequested = false
	u.finalizeCb = nil
	u.uploadedChunks = 0
	u.uploadedBytes = 0
	u.failedChunks = 0

	return u.sessionID, nil
}

// Enqueue appends a sealed chunk to the pending queue. Without an active
// session the chunk is silently discarded.
func (u *Uploader) Enqueue(chunk *capture.Chunk) {
	if u.sessionID == "" || u.state == StateClosed || chunk == nil {
		return
	}
	u.queue = append(u.queue, &pendingChunk{chunk: chunk})
}

// Finalize requests the two-phase session close. The actual request is
// deferred by the drive loop until the queue is drained and nothing is in
// flight; cb is then invoked exactly once with the parsed result or an error.
func (u *Uploader) Finalize(cb func(*Result, error)) error {
	if u.sessionID == "" {
		return ErrNoSession
	}
	if u.state == StateClosed {
		return ErrSessionClosed
	}
	if u.finalizeRequested {
		return ErrFinalizePending
	}

	u.finalizeRequested = true
	u.finalizeCb = cb
	return nil
}

// Cancel discards the queue and session state immediately. An in-flight
// request cannot be aborted mid-flight; its eventual response is ignored.
func (u *Uploader) Cancel() {
	u.state = StateIdle
	u.sessionID = ""
	u.queue = nil
	u.inflight = nil
	u.finalizeRequested = false
	u.finalizeCb = nil
}

// Status returns a read-only snapshot.
func (u *Uploader) Status() Status {
	return Status{
		State:          u.state,
		SessionID:      u.sessionID,
		QueueDepth:     len(u.queue),
		InFlight:       u.inflight != nil,
		UploadedChunks: u.uploadedChunks,
		UploadedBytes:  u.uploadedBytes,
		FailedChunks:   u.failedChunks,
	}
}

// Drive advances the state machine by one tick. It never blocks: network
// operations run on their own goroutine and are polled here.
func (u *Uploader) Drive() {
	now := u.nowFunc()

	switch u.state {
	case StateIdle:
		if len(u.queue) > 0 {
			head := u.queue[0]
			if now.Before(head.eligibleAt) {
				return // backing off
			}
			u.queue = u.queue[1:]
			u.issueChunk(head, now)
			return
		}
		if u.finalizeRequested {
			u.issueFinalize(now)
		}

	case StateUploading:
		res, ok := u.poll(now)
		if !ok {
			return
		}
		u.completeChunk(res, now)

	case StateFinalizing:
		res, ok := u.poll(now)
		if !ok {
			return
		}
		u.completeFinalize(res)

	case StateClosed:
		// Terminal.
	}
}

// poll checks the in-flight operation without blocking. The second return is
// false while the operation is still pending and under its deadline.
func (u *Uploader) poll(now time.Time) (netResult, bool) {
	select {
	case res := <-u.inflight.done:
		return res, true
	default:
	}

	if now.Sub(u.inflight.issuedAt) >= u.cfg.Timeout {
		// Abandon the wait; the goroutine will drain into the buffered
		// channel and be garbage collected with the op.
		return netResult{err: ErrRequestTimeout}, true
	}

	return netResult{}, false
}

func (u *Uploader) issueChunk(p *pendingChunk, now time.Time) {
	op := &inflightOp{pending: p, issuedAt: now, done: make(chan netResult, 1)}
	u.inflight = op
	u.state = StateUploading

	url := u.cfg.Endpoint + "/chunk"
	sessionID := u.sessionID
	body := p.chunk.Payload
	seq := p.chunk.Seq

	go func() {
		req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			op.done <- netResult{err: err}
			return
		}
		req.Header.Set("X-Session-Id", sessionID)
		req.Header.Set("X-Chunk-Seq", fmt.Sprintf("%d", seq))
		req.Header.Set("Content-Type", "audio/mulaw")

		op.done <- u.execute(req)
	}()
}

func (u *Uploader) issueFinalize(now time.Time) {
	op := &inflightOp{issuedAt: now, done: make(chan netResult, 1)}
	u.inflight = op
	u.state = StateFinalizing

	url := u.cfg.Endpoint + "/finalize"
	sessionID := u.sessionID

	go func() {
		req, err := http.NewRequest(http.MethodPost, url, nil)
		if err != nil {
			op.done <- netResult{err: err}
			return
		}
		req.Header.Set("X-Session-Id", sessionID)

		op.done <- u.execute(req)
	}()
}

func (u *Uploader) execute(req *http.Request) netResult {
	resp, err := u.client.Do(req)
	if err != nil {
		return netResult{err: fmt.Errorf("%w: %v", ErrNetworkFailure, err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return netResult{err: fmt.Errorf("%w: %v", ErrNetworkFailure, err)}
	}

	return netResult{status: resp.StatusCode, body: body}
}

// completeChunk handles the outcome of one chunk upload: success discards the
// chunk, a retryable failure re-queues it at the head with backoff, and an
// exhausted retry budget drops it permanently.
func (u *Uploader) completeChunk(res netResult, now time.Time) {
	p := u.inflight.pending
	u.inflight = nil
	u.state = StateIdle

	if res.err == nil && res.status == http.StatusOK {
		u.uploadedChunks++
		u.uploadedBytes += uint64(len(p.chunk.Payload))
		return
	}

	p.failures++
	if p.failures >= u.cfg.MaxRetries {
		u.failedChunks++
		return
	}

	p.eligibleAt = now.Add(u.cfg.BackoffBase * time.Duration(p.failures))
	u.queue = append([]*pendingChunk{p}, u.queue...)
}

// completeFinalize parses the finalize response and fires the callback. The
// session is closed regardless of outcome; finalize is single-use.
func (u *Uploader) completeFinalize(res netResult) {
	cb := u.finalizeCb
	u.inflight = nil
	u.finalizeCb = nil
	u.state = StateClosed

	if cb == nil {
		return
	}

	if res.err != nil {
		cb(nil, res.err)
		return
	}
	if res.status != http.StatusOK {
		cb(nil, fmt.Errorf("%w: finalize returned status %d", ErrNetworkFailure, res.status))
		return
	}

	var result Result
	if err := json.Unmarshal(res.body, &result); err != nil {
		cb(nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err))
		return
	}

	cb(&result, nil)
}
