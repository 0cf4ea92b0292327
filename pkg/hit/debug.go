package hit

// Message types reported by the validation endpoint.
const (
	MessageTypeInfo  = "INFO"
	MessageTypeWarn  = "WARN"
	MessageTypeError = "ERROR"
)

// ValidationResponse is the document returned by the debug collection endpoints.
type ValidationResponse struct {
	HitParsingResult []ParsingResult `json:"hitParsingResult"`
	ParserMessage    []ParserMessage `json:"parserMessage"`
}

// ParsingResult describes a single submitted hit.
type ParsingResult struct {
	Valid         bool            `json:"valid"`
	ParserMessage []ParserMessage `json:"parserMessage"`
	Hit           string          `json:"hit"`
}

// ParserMessage is one validation finding.
type ParserMessage struct {
	MessageType string `json:"messageType"`
	Description string `json:"description"`
	MessageCode string `json:"messageCode,omitempty"`
	Parameter   string `json:"parameter,omitempty"`
}

// Invalid returns the messages of every hit that failed validation.
func (r ValidationResponse) Invalid() []ParserMessage {
	var messages []ParserMessage
	for _, result := range r.HitParsingResult {
		if !result.Valid {
			messages = append(messages, result.ParserMessage...)
		}
	}
	return messages
}

// Valid reports whether every hit in the response passed validation.
func (r ValidationResponse) Valid() bool {
	for _, result := range r.HitParsingResult {
		if !result.Valid {
			return false
		}
	}
	return true
}
