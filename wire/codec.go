package wire

import "fmt"

// Codec defines the serialization contract for wire frames.
type Codec interface {
	Encode(frame *Frame) ([]byte, error)
	Decode(data []byte) (*Frame, error)
	Name() string
}

// Codec name constants, the keys GetCodec and LookupCodec accept. No
// format negotiation takes place: the host uses whichever codec it was
// configured with.
const (
	CodecNameJSON    = "json"
	CodecNameMsgpack = "msgpack"
)

var codecRegistry = map[string]func() Codec{
	CodecNameJSON:    func() Codec { return JSONCodec{} },
	CodecNameMsgpack: func() Codec { return MsgpackCodec{} },
}

// GetCodec returns a codec by name. An empty or unrecognized name falls
// back to JSON.
func GetCodec(name string) Codec {
	c, err := LookupCodec(name)
	if err != nil {
		return JSONCodec{}
	}
	return c
}

// LookupCodec returns a codec by name, or an error if no codec is
// registered under that name. Unlike GetCodec it never silently
// substitutes JSON, so a caller validating a codec name can reject an
// unsupported one outright instead of papering over it.
func LookupCodec(name string) (Codec, error) {
	if name == "" {
		name = CodecNameJSON
	}
	factory, ok := codecRegistry[name]
	if !ok {
		return nil, fmt.Errorf("wire: no codec registered for %q", name)
	}
	return factory(), nil
}
