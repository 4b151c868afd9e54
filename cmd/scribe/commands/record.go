package commands

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/natetr/CrankScribe/internal/audio"
	"github.com/natetr/CrankScribe/internal/capture"
	"github.com/natetr/CrankScribe/internal/config"
	"github.com/natetr/CrankScribe/internal/transport"
)

var (
	flagInput        string
	flagBackup       string
	flagNoVAD        bool
	flagClientConfig string
)

// replaySource feeds samples from a file instead of live hardware. The
// recorder registers its callback via Start; the command pushes blocks
// through it synchronously.
type replaySource struct {
	fn func([]int16)
}

func (s *replaySource) Start(fn func([]int16)) error {
	s.fn = fn
	return nil
}

func (s *replaySource) Stop() error {
	s.fn = nil
	return nil
}

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Replay a WAV file through the capture pipeline and upload it",
	Long: `Replay a mono 16-bit WAV file through the full client pipeline:
decimation to 8 kHz, voice gating, mulaw compression, chunked upload,
and the finalize handshake. Prints the transcript on success.

Examples:
  scribe record -f meeting.wav
  scribe record -f meeting.wav --no-vad --backup backup.wav
  scribe record -f meeting.wav --config configs/config.yaml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if flagInput == "" {
			return fmt.Errorf("input file is required, use -f flag")
		}

		capCfg := capture.Config{}
		upCfg := transport.Config{Endpoint: flagEndpoint}
		vadOn := !flagNoVAD

		if flagClientConfig != "" {
			cc, err := config.LoadClient(flagClientConfig)
			if err != nil {
				return err
			}
			capCfg.OutputRate = cc.OutputSampleRate
			capCfg.ChunkDuration = cc.GetChunkDuration()
			capCfg.VADThreshold = cc.VADThreshold
			capCfg.VADHoldoverFrames = cc.VADHoldoverFrames
			upCfg.Timeout = cc.GetUploadTimeoutDuration()
			upCfg.MaxRetries = cc.MaxRetries
			upCfg.BackoffBase = cc.GetBackoffDuration()

			// Flags take precedence over the file.
			if upCfg.Endpoint == "" {
				upCfg.Endpoint = cc.Endpoint
			}
			if !cmd.Flags().Changed("no-vad") {
				vadOn = cc.VADEnabled
			}
		}
		if upCfg.Endpoint == "" {
			return fmt.Errorf("endpoint is required, use -e flag, SCRIBE_ENDPOINT, or a config file")
		}

		data, err := os.ReadFile(flagInput)
		if err != nil {
			return fmt.Errorf("failed to read input file: %w", err)
		}
		samples, rate, err := audio.DecodeWAV(data)
		if err != nil {
			return fmt.Errorf("failed to decode input file: %w", err)
		}

		printVerbose("Loaded %d samples at %d Hz (%.1fs)",
			len(samples), rate, float64(len(samples))/float64(rate))

		capCfg.InputRate = rate

		source := &replaySource{}
		rec, err := capture.NewRecorder(capCfg, source)
		if err != nil {
			return err
		}

		up := transport.NewUploader(upCfg)
		sessionID, err := up.StartSession()
		if err != nil {
			return err
		}
		printVerbose("Session %s", sessionID)

		if err := rec.Start(); err != nil {
			return err
		}
		rec.SetVADEnabled(vadOn)

		// Push 100ms blocks and tick the uploader between blocks, the way
		// the scheduler loop would on device.
		blockSize := rate / 10
		for off := 0; off < len(samples); off += blockSize {
			end := off + blockSize
			if end > len(samples) {
				end = len(samples)
			}
			source.fn(samples[off:end])

			for rec.HasChunk() {
				chunk := rec.TakeChunk()
				printVerbose("Sealed chunk %d (%d bytes)", chunk.Seq, len(chunk.Payload))
				up.Enqueue(chunk)
			}
			up.Drive()
		}

		backup, duration, err := rec.Stop()
		if err != nil {
			return fmt.Errorf("failed to stop recorder: %w", err)
		}
		printVerbose("Recorded %.1fs of audio", duration)

		for rec.HasChunk() {
			up.Enqueue(rec.TakeChunk())
		}

		if flagBackup != "" {
			if err := os.WriteFile(flagBackup, backup, 0o644); err != nil {
				return fmt.Errorf("failed to write backup: %w", err)
			}
			printVerbose("Backup written to %s", flagBackup)
		}

		var result *transport.Result
		var finalErr error
		done := false
		if err := up.Finalize(func(r *transport.Result, err error) {
			result, finalErr = r, err
			done = true
		}); err != nil {
			return err
		}

		// Drive the state machine until the finalize handshake completes.
		for !done {
			up.Drive()
			time.Sleep(50 * time.Millisecond)
		}

		st := up.Status()
		printVerbose("Uploaded %d chunks (%d bytes), %d failed",
			st.UploadedChunks, st.UploadedBytes, st.FailedChunks)

		if finalErr != nil {
			return fmt.Errorf("finalize failed: %w", finalErr)
		}

		fmt.Println(result.Transcript)
		if result.AudioDuration > 0 {
			fmt.Fprintf(os.Stderr, "(%.1fs of audio transcribed)\n", result.AudioDuration)
		}
		return nil
	},
}

func init() {
	recordCmd.Flags().StringVarP(&flagInput, "file", "f", "", "mono 16-bit WAV file to replay")
	recordCmd.Flags().StringVar(&flagBackup, "backup", "", "write the local PCM backup to this path")
	recordCmd.Flags().BoolVar(&flagNoVAD, "no-vad", false, "disable voice gating (upload everything)")
	recordCmd.Flags().StringVar(&flagClientConfig, "config", "", "YAML file with a client section for pipeline tuning")
}
