// Package capture turns a live mono sample stream into sealed,
// sequence-numbered, voice-gated μ-law chunks plus a full-fidelity WAV
// backup. One Recorder owns one recording; the real-time feed path performs
// no locking and hands sealed chunks to the upload loop through a single-slot
// atomic mailbox.
package capture
