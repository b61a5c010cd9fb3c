package protocol

import (
	"fmt"

	"github.com/bytedance/sonic"
)

// Encode serializes a wire message.
func Encode(msg any) ([]byte, error) {
	return sonic.Marshal(msg)
}

// PeekType extracts the type tag without decoding the full message.
func PeekType(data []byte) (string, error) {
	var env struct {
		Type string `json:"type"`
	}
	if err := sonic.Unmarshal(data, &env); err != nil {
		return "", fmt.Errorf("malformed message: %w", err)
	}
	if env.Type == "" {
		return "", fmt.Errorf("message has no type tag")
	}
	return env.Type, nil
}

// DecodeExecute decodes an execute message.
func DecodeExecute(data []byte) (ExecuteMessage, error) {
	var msg ExecuteMessage
	if err := sonic.Unmarshal(data, &msg); err != nil {
		return msg, err
	}
	if msg.Type != TypeExecute {
		return msg, fmt.Errorf("expected %q message, got %q", TypeExecute, msg.Type)
	}
	return msg, nil
}
