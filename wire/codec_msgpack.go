package wire

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// MsgpackCodec encodes/decodes frames as MessagePack, trading JSON's
// readability for a smaller frame once a session no longer needs to be
// sniffable on the wire by eye.
type MsgpackCodec struct{}

func (MsgpackCodec) Name() string { return CodecNameMsgpack }

func (MsgpackCodec) Encode(frame *Frame) ([]byte, error) {
	data, err := msgpack.Marshal(frame)
	if err != nil {
		return nil, fmt.Errorf("wire: encode msgpack frame: %w", err)
	}
	return data, nil
}

func (MsgpackCodec) Decode(data []byte) (*Frame, error) {
	frame := new(Frame)
	if err := msgpack.Unmarshal(data, frame); err != nil {
		return nil, fmt.Errorf("wire: decode msgpack frame: %w", err)
	}
	return frame, nil
}
