package packet

import (
	"errors"
	"fmt"
)

var (
	ErrEmpty         = errors.New("empty packet")
	ErrUnknownTag    = errors.New("unknown tag")
	ErrTruncated     = errors.New("truncated payload")
	ErrTrailingBytes = errors.New("trailing bytes after payload")
)

// DecodeError reports why a payload could not be decoded.
type DecodeError struct {
	Tag Tag
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: %v", e.Tag, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// New returns an empty message for tag, or nil for an unknown tag.
func New(tag Tag) Message {
	switch tag {
	case TagTilemapDownload:
		return &TilemapDownload{}
	case TagObjectDownload:
		return &ObjectDownload{}
	case TagTest:
		return &Test{}
	case TagChatMessage:
		return &ChatMessage{}
	case TagNewPlayer:
		return &NewPlayer{}
	case TagRequestUID:
		return &RequestUID{}
	case TagMovementRequest:
		return &MovementRequest{}
	case TagMovementUpdate:
		return &MovementUpdate{}
	case TagAccountLogin:
		return &AccountLogin{}
	}
	return nil
}

// Encode serializes m as its tag byte followed by its payload.
func Encode(m Message) ([]byte, error) {
	w := NewWriterWithTag(m.Tag())
	if err := m.encode(w); err != nil {
		return nil, fmt.Errorf("encode %s: %w", m.Tag(), err)
	}
	return w.Bytes(), nil
}

// MustEncode is Encode for messages that cannot fail to encode.
func MustEncode(m Message) []byte {
	b, err := Encode(m)
	if err != nil {
		panic(err)
	}
	return b
}

// Decode parses one message. It never panics: malformed input yields a
// *DecodeError.
func Decode(data []byte) (Message, error) {
	if len(data) == 0 {
		return nil, &DecodeError{Err: ErrEmpty}
	}
	r := NewReader(data)
	m := New(r.Tag())
	if m == nil {
		return nil, &DecodeError{Tag: r.Tag(), Err: ErrUnknownTag}
	}
	m.decode(r)
	if err := r.Err(); err != nil {
		return nil, &DecodeError{Tag: r.Tag(), Err: err}
	}
	if r.Remaining() != 0 {
		return nil, &DecodeError{Tag: r.Tag(), Err: ErrTrailingBytes}
	}
	return m, nil
}
