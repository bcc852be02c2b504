package localstore

import (
	"encoding/json"
)

// Marshaler encodes/decodes the byte payloads the persistent adapters store:
// document Fields and mutation-batch payloads in the Cassandra tables,
// SetStruct/GetStruct values in Redis, and the archived and on-disk
// document records of aws_s3 and filesystem. Resume tokens are stored as
// raw bytes without it.
type Marshaler interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

type jsonMarshaler struct{}

// NewMarshaler returns the default Marshaler, backed by encoding/json.
func NewMarshaler() Marshaler {
	return jsonMarshaler{}
}

func (jsonMarshaler) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonMarshaler) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}
