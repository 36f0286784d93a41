package orchestrator

import "encoding/json"

// Marshal creates a single point of change if the encoding of persisted
// payloads changes.
func Marshal[T any](t *T) ([]byte, error) {
	return json.Marshal(t)
}

func Unmarshal[T any](b []byte, t *T) error {
	return json.Unmarshal(b, t)
}
