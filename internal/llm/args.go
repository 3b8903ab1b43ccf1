package llm

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/kaptinlin/jsonrepair"
	"github.com/rs/zerolog/log"
)

// DecodeArguments parses a model-produced tool-argument payload. Models
// occasionally emit JSON with trailing commas, single quotes, or truncated
// objects; a repair pass is attempted before the payload is declared
// malformed. An empty payload decodes to an empty object.
func DecodeArguments(raw string) (json.RawMessage, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return json.RawMessage(`{}`), nil
	}

	if json.Valid([]byte(trimmed)) {
		return json.RawMessage(trimmed), nil
	}

	repaired, err := jsonrepair.JSONRepair(trimmed)
	if err != nil {
		return nil, err
	}

	if !json.Valid([]byte(repaired)) {
		return nil, errors.New("payload is not valid JSON after repair")
	}

	log.Debug().
		Int("original_bytes", len(trimmed)).
		Int("repaired_bytes", len(repaired)).
		Msg("Repaired malformed tool arguments")

	return json.RawMessage(repaired), nil
}
