package collector

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/platinummonkey/beacon/pkg/hit"
)

// ErrInvalidHit is returned by Check when a payload fails validation.
var ErrInvalidHit = errors.New("invalid hit")

// MaxPayloadBytes is the largest accepted hit payload.
const MaxPayloadBytes = 8192

// Message codes carried in ParserMessage.MessageCode.
const (
	CodeValueRequired = "VALUE_REQUIRED"
	CodeValueInvalid  = "VALUE_INVALID"
	CodeUnknownType   = "UNKNOWN_HIT_TYPE"
)

var propertyIDPattern = regexp.MustCompile(`^(UA|YT|MO)-\d+-\d+$`)

var knownHitTypes = map[string]bool{
	"pageview":         true,
	hit.TypeScreenView: true,
	hit.TypeEvent:      true,
	"transaction":      true,
	"item":             true,
	"social":           true,
	hit.TypeException:  true,
	hit.TypeTiming:     true,
}

func required(param string) hit.ParserMessage {
	return hit.ParserMessage{
		MessageType: hit.MessageTypeError,
		Description: fmt.Sprintf("A value is required for parameter '%s'.", param),
		MessageCode: CodeValueRequired,
		Parameter:   param,
	}
}

func invalid(param, value, expect string) hit.ParserMessage {
	return hit.ParserMessage{
		MessageType: hit.MessageTypeError,
		Description: fmt.Sprintf("The value provided for parameter '%s' is invalid: '%s'. %s", param, value, expect),
		MessageCode: CodeValueInvalid,
		Parameter:   param,
	}
}

// Validate checks a measurement-protocol payload and reports every finding. path is
// echoed into the result's hit field.
func Validate(path string, params url.Values) hit.ParsingResult {
	var messages []hit.ParserMessage

	switch v := params.Get(hit.KeyProtocolVersion); {
	case v == "":
		messages = append(messages, required(hit.KeyProtocolVersion))
	case v != "1":
		messages = append(messages, invalid(hit.KeyProtocolVersion, v, "Only version 1 is supported."))
	}

	switch tid := params.Get(hit.KeyPropertyID); {
	case tid == "":
		messages = append(messages, required(hit.KeyPropertyID))
	case !propertyIDPattern.MatchString(tid):
		messages = append(messages, invalid(hit.KeyPropertyID, tid, "Expected a property ID such as UA-XXXX-Y."))
	}

	if params.Get(hit.KeyClientID) == "" && params.Get("uid") == "" {
		messages = append(messages, hit.ParserMessage{
			MessageType: hit.MessageTypeError,
			Description: "A value is required for parameter 'cid' or 'uid'.",
			MessageCode: CodeValueRequired,
			Parameter:   hit.KeyClientID,
		})
	}

	hitType := params.Get(hit.KeyHitType)
	switch {
	case hitType == "":
		messages = append(messages, required(hit.KeyHitType))
	case !knownHitTypes[hitType]:
		messages = append(messages, hit.ParserMessage{
			MessageType: hit.MessageTypeError,
			Description: fmt.Sprintf("Unknown hit type '%s'.", hitType),
			MessageCode: CodeUnknownType,
			Parameter:   hit.KeyHitType,
		})
	}

	if hitType == hit.TypeEvent {
		for _, key := range []string{hit.KeyEventCategory, hit.KeyEventAction} {
			if params.Get(key) == "" {
				messages = append(messages, required(key))
			}
		}
	}

	for _, key := range []string{hit.KeyEventValue, hit.KeyQueueTime, hit.KeyTimingTime} {
		raw := params.Get(key)
		if raw == "" {
			continue
		}
		if n, err := strconv.ParseInt(raw, 10, 64); err != nil || n < 0 {
			messages = append(messages, invalid(key, raw, "Expected a non-negative integer."))
		}
	}

	if exf := params.Get(hit.KeyExceptionFatal); exf != "" && exf != "0" && exf != "1" {
		messages = append(messages, invalid(hit.KeyExceptionFatal, exf, "Expected 0 or 1."))
	}

	valid := true
	for _, m := range messages {
		if m.MessageType == hit.MessageTypeError {
			valid = false
			break
		}
	}

	return hit.ParsingResult{
		Valid:         valid,
		ParserMessage: messages,
		Hit:           path + "?" + params.Encode(),
	}
}

// Check validates params and returns ErrInvalidHit wrapping the first error finding.
func Check(params url.Values) error {
	result := Validate("", params)
	if result.Valid {
		return nil
	}
	var descriptions []string
	for _, m := range result.ParserMessage {
		descriptions = append(descriptions, m.Description)
	}
	return fmt.Errorf("%w: %s", ErrInvalidHit, strings.Join(descriptions, " "))
}
