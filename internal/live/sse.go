package live

import (
	"bufio"
	"io"
	"strings"
)

const maxLineSize = 1024 * 1024

// readEvents parses a text/event-stream body and calls fn with the data of
// each complete event. Comment lines and the event, id and retry fields are
// ignored. A trailing event without its blank-line terminator is dropped.
func readEvents(r io.Reader, fn func(data string) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	var data strings.Builder
	hasData := false
	for scanner.Scan() {
		line := strings.TrimSuffix(scanner.Text(), "\r")
		if line == "" {
			if hasData {
				if err := fn(data.String()); err != nil {
					return err
				}
			}
			data.Reset()
			hasData = false
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}
		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		if field != "data" {
			continue
		}
		if hasData {
			data.WriteByte('\n')
		}
		data.WriteString(value)
		hasData = true
	}
	return scanner.Err()
}
