// Command voicegate runs the speaker-verifying speech-recognition
// gateway. It sits between a wake-word front end and the real
// speech-to-text service, speaking the same line-oriented event protocol
// on both sides: inbound audio is buffered and checked against enrolled
// voiceprints, and only a verified speaker's audio is forwarded upstream
// for transcription. Unverified audio gets an empty transcript so the
// pipeline stops silently.
package main

import (
	"fmt"
	"os"

	"github.com/haivivi/voicegate/cmd/voicegate/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
