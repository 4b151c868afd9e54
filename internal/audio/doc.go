// Package audio implements the signal-processing primitives shared by the
// capture client and the reassembly server: G.711 μ-law companding, box-filter
// decimation from the microphone rate down to the wire rate, linear
// resampling up to the transcription rate, and the minimal WAV container used
// for local backups and capability handoff.
package audio
