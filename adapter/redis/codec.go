package redis

import (
	"encoding/json"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/flumeworks/flume/events"
)

// Codec serializes event envelopes for the PUB/SUB wire. Both sides of a
// channel must agree on the codec.
type Codec interface {
	Marshal(evt events.JobEvent) ([]byte, error)
	Unmarshal(data []byte) (events.JobEvent, error)
}

// JSONCodec encodes events as JSON. The default; readable in redis-cli.
type JSONCodec struct{}

func (JSONCodec) Marshal(evt events.JobEvent) ([]byte, error) {
	return json.Marshal(evt)
}

func (JSONCodec) Unmarshal(data []byte) (events.JobEvent, error) {
	var evt events.JobEvent
	err := json.Unmarshal(data, &evt)
	return evt, err
}

// MsgpackCodec encodes events as MessagePack. Smaller and faster than
// JSON for high event volumes.
type MsgpackCodec struct{}

func (MsgpackCodec) Marshal(evt events.JobEvent) ([]byte, error) {
	return msgpack.Marshal(evt)
}

func (MsgpackCodec) Unmarshal(data []byte) (events.JobEvent, error) {
	var evt events.JobEvent
	err := msgpack.Unmarshal(data, &evt)
	return evt, err
}
