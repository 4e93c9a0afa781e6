package logtail

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/five82/tether/internal/pipeline"
)

const maxLineBytes = 1024 * 1024

// Read returns at most maxLines from the end of the file at path.
func Read(path string, maxLines int) ([]string, error) {
	if maxLines <= 0 {
		return nil, nil
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open log: %w", err)
	}
	defer file.Close()

	ring := make([]string, maxLines)
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	count := 0
	idx := 0
	for scanner.Scan() {
		ring[idx] = strings.TrimSuffix(scanner.Text(), "\r")
		idx = (idx + 1) % maxLines
		if count < maxLines {
			count++
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}

	lines := make([]string, count)
	if count == maxLines {
		for i := 0; i < count; i++ {
			lines[i] = ring[(idx+i)%maxLines]
		}
	} else {
		copy(lines, ring[:count])
	}
	return lines, nil
}

// Load pushes the last maxLines of path into sink as formatted lines and
// returns how many were pushed. Lines are taken verbatim since a saved session
// log is already formatted.
func Load(path string, maxLines int, sink pipeline.LineSink) (int, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("stat log: %w", err)
	}
	if info.IsDir() {
		return 0, fmt.Errorf("open log: %s is a directory", path)
	}
	lines, err := Read(path, maxLines)
	if err != nil {
		return 0, err
	}
	for _, line := range lines {
		sink.Push(pipeline.FormattedLine{Text: line + "\n", Source: info.ModTime()})
	}
	return len(lines), nil
}
