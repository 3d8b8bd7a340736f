package commands

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var flagConfig string

var rootCmd = &cobra.Command{
	Use:   "voicegate",
	Short: "Speaker-verifying speech-recognition gateway",
	Long: `voicegate — a speech-recognition gateway with speaker verification.

It accepts wake-word audio streams, checks the speaker against enrolled
voiceprints, and forwards only verified audio to the real speech-to-text
service. Unverified audio is answered with an empty transcript.

Commands:
  run       Run the gateway
  speakers  List enrolled speakers

Examples:
  voicegate run --upstream faster-whisper:10300 --voiceprints /var/lib/voicegate --embedder voicegate-embed
  voicegate speakers --voiceprints s3://assistant/voiceprints`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "config file (default: user config dir)")
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(speakersCmd)
}

// setupLogging installs the default slog handler at the requested level.
func setupLogging(level string) error {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return fmt.Errorf("invalid log level %q", level)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: l,
	})))
	return nil
}
