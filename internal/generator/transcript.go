package generator

import "strings"

// TranscriptStats summarizes who spoke in a transcript.
type TranscriptStats struct {
	TotalLines        int
	SpeakerTurns      int
	AssistantMessages []string
	UserMessages      []string
}

var (
	assistantPrefixes = []string{"Assistant:", "AI:"}
	userPrefixes      = []string{"User:", "Customer:"}
)

// ParseTranscript counts speaker turns. Lines without a known speaker
// prefix are counted in TotalLines only.
func ParseTranscript(transcript string) TranscriptStats {
	lines := strings.Split(transcript, "\n")
	stats := TranscriptStats{TotalLines: len(lines)}
	for _, line := range lines {
		line = strings.TrimSpace(line)
		switch {
		case line == "":
		case hasAnyPrefix(line, assistantPrefixes):
			stats.AssistantMessages = append(stats.AssistantMessages, line)
			stats.SpeakerTurns++
		case hasAnyPrefix(line, userPrefixes):
			stats.UserMessages = append(stats.UserMessages, line)
			stats.SpeakerTurns++
		}
	}
	return stats
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}
