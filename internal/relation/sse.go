package relation

import (
	"bufio"
	"bytes"
	"io"
	"strings"
)

// readEvents parses a text/event-stream body and calls fn once per dispatched
// event. Comment lines (heartbeats) are skipped. It returns when r fails or
// reaches EOF.
func readEvents(r io.Reader, fn func(eventType string, data []byte)) error {
	br := bufio.NewReader(r)
	var (
		eventType string
		data      bytes.Buffer
		hasData   bool
	)

	for {
		line, err := br.ReadString('\n')
		if err != nil {
			return err
		}
		line = strings.TrimRight(line, "\r\n")

		switch {
		case line == "":
			if hasData {
				if eventType == "" {
					eventType = "message"
				}
				fn(eventType, data.Bytes())
			}
			eventType = ""
			data.Reset()
			hasData = false
		case strings.HasPrefix(line, ":"):
		default:
			field, value, _ := strings.Cut(line, ":")
			value = strings.TrimPrefix(value, " ")
			switch field {
			case "event":
				eventType = value
			case "data":
				if hasData {
					data.WriteByte('\n')
				}
				data.WriteString(value)
				hasData = true
			}
		}
	}
}
