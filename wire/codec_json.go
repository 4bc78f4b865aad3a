package wire

import (
	"encoding/json"
	"fmt"
)

// JSONCodec encodes/decodes frames as JSON. It's the default codec and
// the one GetCodec falls back to for an unknown name.
type JSONCodec struct{}

func (JSONCodec) Name() string { return CodecNameJSON }

func (JSONCodec) Encode(frame *Frame) ([]byte, error) {
	data, err := json.Marshal(frame)
	if err != nil {
		return nil, fmt.Errorf("wire: encode json frame: %w", err)
	}
	return data, nil
}

func (JSONCodec) Decode(data []byte) (*Frame, error) {
	frame := new(Frame)
	if err := json.Unmarshal(data, frame); err != nil {
		return nil, fmt.Errorf("wire: decode json frame: %w", err)
	}
	return frame, nil
}
