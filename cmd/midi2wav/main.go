package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/browser-vm/midi2wav"
	"github.com/browser-vm/midi2wav/midi"
	"github.com/browser-vm/midi2wav/version"
)

var (
	sampleRate int
	channels   int
	bankPath   string
	strict     bool
	quiet      bool
)

var rootCmd = &cobra.Command{
	Use:   "midi2wav [flags] input output.wav",
	Short: "Render a MIDI file to an uncompressed WAV file",
	Long: `midi2wav renders a Standard MIDI File (or a YAML timeline) offline into a
16-bit PCM WAV file, optionally using a sampled instrument bank. Without a
bank, notes are synthesized with a built-in band-limited oscillator.`,
	Version: version.VersionOrHash,
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		timeline, err := readTimeline(args[0])
		if err != nil {
			return err
		}
		var bankData []byte
		if bankPath != "" {
			if bankData, err = os.ReadFile(bankPath); err != nil {
				return fmt.Errorf("reading bank failed: %w", err)
			}
		}
		opts := midi2wav.Options{
			SampleRate:  sampleRate,
			Channels:    channels,
			StrictNotes: strict,
		}
		if !quiet {
			opts.Progress = func(stage midi2wav.Stage, fraction float64) {
				fmt.Fprintf(os.Stderr, "%v done (%.0f%%)\n", stage, fraction*100)
			}
			opts.OnWarning = func(err error) {
				fmt.Fprintf(os.Stderr, "warning: %v\n", err)
			}
		}
		data, err := midi2wav.Convert(timeline, bankData, opts)
		if err != nil {
			return err
		}
		return os.WriteFile(args[1], data, 0644)
	},
}

// readTimeline loads either a YAML timeline or a Standard MIDI File,
// depending on the file extension.
func readTimeline(path string) (*midi2wav.Timeline, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yml", ".yaml":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading timeline failed: %w", err)
		}
		var timeline midi2wav.Timeline
		if err := yaml.Unmarshal(data, &timeline); err != nil {
			return nil, fmt.Errorf("parsing timeline failed: %w", err)
		}
		return &timeline, nil
	default:
		return midi.ReadFile(path)
	}
}

func main() {
	rootCmd.Flags().IntVar(&sampleRate, "samplerate", 44100, "output sample rate in Hz")
	rootCmd.Flags().IntVar(&channels, "channels", 2, "output channel count")
	rootCmd.Flags().StringVar(&bankPath, "bank", "", "instrument bank file to synthesize with")
	rootCmd.Flags().BoolVar(&strict, "strict", false, "abort on invalid notes instead of skipping them")
	rootCmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "suppress progress and warnings")
	cobra.CheckErr(rootCmd.Execute())
}
