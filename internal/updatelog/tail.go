package updatelog

import (
	"bytes"
	"fmt"
	"os"
	"strings"
)

const (
	readBlockSize = 8192
	// maxTailSize bounds memory when the file holds very long lines.
	maxTailSize = 1024 * 1024
)

// Tail returns the last n lines of the file at path, oldest first. The file
// is read backwards in blocks so large logs are not loaded whole.
func Tail(path string, n int) ([]string, error) {
	if n <= 0 {
		return nil, nil
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	defer file.Close()

	fi, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	offset := fi.Size()
	var buf []byte
	for offset > 0 {
		blockSize := min(int64(readBlockSize), offset)
		offset -= blockSize

		block := make([]byte, blockSize)
		if _, err := file.ReadAt(block, offset); err != nil {
			return nil, fmt.Errorf("read error: %w", err)
		}
		buf = append(block, buf...)

		// n+1 newlines guarantee n complete lines after the trailing one
		if bytes.Count(buf, []byte{'\n'}) > n || len(buf) > maxTailSize {
			break
		}
	}

	text := strings.TrimRight(string(buf), "\n")
	if text == "" {
		return nil, nil
	}
	lines := strings.Split(text, "\n")
	if offset > 0 {
		// first line starts before the data read
		lines = lines[1:]
	}
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return lines, nil
}
