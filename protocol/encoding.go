package protocol

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/vearne/framereplay/consts"
)

type Codec interface {
	// Marshal returns the wire format of v.
	Marshal(v *Message) ([]byte, error)
	// Unmarshal parses the wire format into v.
	Unmarshal(data []byte, v *Message) error
	// Name returns the name of the Codec implementation. The result must be
	// static; the result cannot change between calls.
	Name() string
}

var registeredCodecs = make(map[string]Codec)

func RegisterCodec(codec Codec) {
	if codec == nil {
		panic("cannot register a nil Codec")
	}
	if codec.Name() == "" {
		panic("cannot register Codec with empty string result for Name()")
	}
	registeredCodecs[strings.ToLower(codec.Name())] = codec
}

// GetCodec looks a codec up by its lowercase name.
func GetCodec(codecType string) (Codec, error) {
	c, ok := registeredCodecs[strings.ToLower(codecType)]
	if !ok {
		return nil, errors.Wrapf(consts.ErrUnknownCodec, "codec %q", codecType)
	}
	return c, nil
}
