// Package transcription wraps the OpenAI APIs used by the server: Whisper
// for speech-to-text over finalized session audio, and chat completions for
// deriving summaries, minutes, and to-do lists from a transcript.
package transcription
