package encoders

import (
	"fmt"

	"github.com/pkg/errors"
)

// Text passes strings and bytes through and formats Stringers.
type Text struct{}

func (t Text) Encode(i any) ([]byte, error) {
	switch i := i.(type) {
	case []byte:
		return i, nil
	case string:
		return []byte(i), nil
	case fmt.Stringer:
		return []byte(i.String()), nil
	default:
		return nil, errors.Errorf("unknown type %T to encode with %T", i, t)
	}
}

func (Text) ContentType() string {
	return "text/plain; charset=utf-8"
}
