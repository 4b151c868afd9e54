// Package vad provides energy-threshold voice activity detection over fixed
// 20 ms frames, with a holdover window that keeps trailing speech from being
// truncated by the silence gate.
package vad
