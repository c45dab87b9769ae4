package protocol

import "github.com/vmihailenco/msgpack/v5"

// Encode serializes an EventV1 to the broker/socket wire format (msgpack),
// per §6.1's payload encoding.
func Encode(event EventV1) ([]byte, error) {
	return msgpack.Marshal(event)
}

// Decode is the inverse of Encode.
func Decode(data []byte) (EventV1, error) {
	var event EventV1
	err := msgpack.Unmarshal(data, &event)
	return event, err
}
