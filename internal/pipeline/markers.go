package pipeline

import (
	"regexp"
	"strings"
	"time"
)

const stampLayout = "15:04:05.000"

var (
	connectMarker    = regexp.MustCompile(`^\[[0-9:.]+\] -- connected: .* --$`)
	disconnectMarker = regexp.MustCompile(`^\[[0-9:.]+\] -- disconnected(?:, log file: (.+))? --$`)
)

func stamp(t time.Time) string {
	return "[" + t.Format(stampLayout) + "]"
}

// ConnectLine is the marker emitted before the first record of a session.
func ConnectLine(at time.Time, identity string) FormattedLine {
	return FormattedLine{Text: stamp(at) + " -- connected: " + identity + " --\n", Source: at}
}

// DisconnectLine is the marker appended after a session ends. logFile may be
// empty when nothing was persisted.
func DisconnectLine(at time.Time, logFile string) FormattedLine {
	if logFile == "" {
		return FormattedLine{Text: stamp(at) + " -- disconnected --\n", Source: at}
	}
	return FormattedLine{Text: stamp(at) + " -- disconnected, log file: " + logFile + " --\n", Source: at}
}

// markerSpans styles session markers. text carries no newline.
func markerSpans(text string) []Span {
	if connectMarker.MatchString(text) {
		return []Span{{StyleID: StyleSessionConnect, Start: 0, End: len(text)}}
	}
	loc := disconnectMarker.FindStringSubmatchIndex(text)
	if loc == nil {
		return nil
	}
	spans := []Span{{StyleID: StyleSessionDisconnect, Start: 0, End: len(text)}}
	if loc[2] >= 0 {
		spans = append(spans, Span{StyleID: StyleLink, Start: loc[2], End: loc[3]})
	}
	return spans
}

// LogFileFromMarker extracts the log file named by a disconnect marker.
func LogFileFromMarker(text string) (string, bool) {
	m := disconnectMarker.FindStringSubmatch(strings.TrimSuffix(text, "\n"))
	if m == nil || m[1] == "" {
		return "", false
	}
	return m[1], true
}

func matchesAny(patterns []*regexp.Regexp, text string) bool {
	for _, re := range patterns {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}
