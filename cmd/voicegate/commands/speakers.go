package commands

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/haivivi/voicegate/cmd/voicegate/internal/config"
	"github.com/haivivi/voicegate/pkg/voiceprint"
)

var (
	speakersVoiceprints string

	speakersTitleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#00ff9f"))
	speakersNameStyle  = lipgloss.NewStyle().Bold(true)
	speakersDimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#6e7681"))
)

var speakersCmd = &cobra.Command{
	Use:   "speakers",
	Short: "List enrolled speakers",
	Long: `List the speakers enrolled in the voiceprint store, with the
number of voiceprint vectors stored for each.`,
	RunE: listSpeakers,
}

func init() {
	speakersCmd.Flags().StringVar(&speakersVoiceprints, "voiceprints", "", "voiceprint directory or s3://bucket/prefix (required)")
}

func listSpeakers(cmd *cobra.Command, _ []string) error {
	spec := speakersVoiceprints
	if spec == "" {
		path := flagConfig
		if path == "" {
			p, err := config.Path()
			if err != nil {
				return err
			}
			path = p
		}
		cfg, err := config.Load(path)
		if err != nil {
			return err
		}
		spec = cfg.Voiceprints
	}

	fs, err := openVoiceprints(spec)
	if err != nil {
		return err
	}
	quiet := slog.New(slog.DiscardHandler)
	store, err := voiceprint.Load(cmd.Context(), fs, quiet)
	if err != nil && !errors.Is(err, voiceprint.ErrNoVoiceprints) {
		return err
	}

	speakers := store.Speakers()
	fmt.Println(speakersTitleStyle.Render(fmt.Sprintf("Enrolled speakers (%d)", len(speakers))))
	if len(speakers) == 0 {
		fmt.Println(speakersDimStyle.Render("  none — enroll voiceprints first"))
		return nil
	}
	for _, name := range speakers {
		n := store.Count(name)
		noun := "vectors"
		if n == 1 {
			noun = "vector"
		}
		fmt.Printf("  %s %s\n",
			speakersNameStyle.Render(name),
			speakersDimStyle.Render(fmt.Sprintf("(%d %s)", n, noun)))
	}
	return nil
}
