package terminal

import (
	"encoding/json"

	"github.com/cockroachdb/errors"
)

// MessageType is the first element of a terminal websocket frame.
type MessageType string

const (
	MessageStdin      MessageType = "stdin"
	MessageStdout     MessageType = "stdout"
	MessageSetSize    MessageType = "set_size"
	MessageSetup      MessageType = "setup"
	MessageDisconnect MessageType = "disconnect"
)

// Message is a terminal websocket frame, encoded as a JSON array whose first
// element is the type and whose remaining elements are the content.
type Message struct {
	Type    MessageType
	Content []any
}

// Stdin returns a message writing data to the terminal.
func Stdin(data string) Message {
	return Message{Type: MessageStdin, Content: []any{data}}
}

// SetSize returns a message resizing the terminal.
func SetSize(rows, cols int) Message {
	return Message{Type: MessageSetSize, Content: []any{rows, cols}}
}

// Text joins the string content of the message.
func (m Message) Text() string {
	var out string
	for _, c := range m.Content {
		if s, ok := c.(string); ok {
			out += s
		}
	}
	return out
}

func (m Message) MarshalJSON() ([]byte, error) {
	frame := make([]any, 0, len(m.Content)+1)
	frame = append(frame, m.Type)
	frame = append(frame, m.Content...)
	return json.Marshal(frame)
}

func (m *Message) UnmarshalJSON(buf []byte) error {
	var frame []json.RawMessage
	if err := json.Unmarshal(buf, &frame); err != nil {
		return errors.Wrap(err, "terminal message must be a JSON array")
	}
	if len(frame) == 0 {
		return errors.New("terminal message is empty")
	}
	var kind string
	if err := json.Unmarshal(frame[0], &kind); err != nil {
		return errors.Wrap(err, "terminal message type must be a string")
	}
	content := make([]any, 0, len(frame)-1)
	for _, raw := range frame[1:] {
		var v any
		if err := json.Unmarshal(raw, &v); err != nil {
			return errors.Wrap(err, "invalid terminal message content")
		}
		content = append(content, v)
	}
	m.Type = MessageType(kind)
	m.Content = content
	return nil
}
