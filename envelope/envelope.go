package envelope

import (
	"encoding/json"
	"fmt"
)

// Instruction values understood by the server's request router.
const (
	// InstructionAI routes the message to the conversational model.
	InstructionAI = "AI"
	// InstructionAudio delivers a completed recording in one shot.
	InstructionAudio = "AUDIO"
)

// Request is the plaintext shape of an outbound chat payload.
type Request struct {
	Instruction string `json:"instruction"`
	Message     string `json:"message"`
}

// AudioRequest carries a base64-encoded recording over the chat transport.
type AudioRequest struct {
	Instruction string `json:"instruction"`
	SessionID   string `json:"session_id"`
	Audio       string `json:"audio"`
}

// Encrypted is the wire wrapper around an encrypted payload. IV is present
// on the symmetric (AES-GCM) path and absent on the asymmetric one.
type Encrypted struct {
	Encrypted string `json:"encrypted"`
	IV        string `json:"iv,omitempty"`
}

// NewAIRequest builds the standard chat payload for user text.
func NewAIRequest(message string) Request {
	return Request{Instruction: InstructionAI, Message: message}
}

// WithLookupResults rewrites a message to carry lookup rows as a bracketed
// prefix, so server routing can summarize them alongside the user's text.
func WithLookupResults(rows any, message string) (string, error) {
	encoded, err := json.Marshal(rows)
	if err != nil {
		return "", fmt.Errorf("encode lookup rows: %w", err)
	}
	return fmt.Sprintf("[DB_RESULTS:%s]\n%s", encoded, message), nil
}
