package connect

import (
	"encoding/json"

	"github.com/cockroachdb/errors"
)

// jsonCodec encodes plain Go structs as JSON under the "json" codec name.
type jsonCodec struct{}

func (jsonCodec) Name() string { return "json" }

func (jsonCodec) Marshal(msg any) ([]byte, error) {
	return json.Marshal(msg)
}

func (jsonCodec) Unmarshal(data []byte, msg any) error {
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, msg); err != nil {
		return errors.Wrap(err, "invalid json message")
	}
	return nil
}
