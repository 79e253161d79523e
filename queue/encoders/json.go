package encoders

import (
	"bytes"
	"encoding/json"

	"github.com/pkg/errors"
)

// JSON encodes bodies as compact JSON. HTML is not escaped, so SMTP replies
// such as "<user@host>: rejected" stay readable.
type JSON struct{}

func (JSON) Encode(i any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(i); err != nil {
		return nil, errors.Wrapf(err, "marshal %T", i)
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

func (JSON) ContentType() string {
	return "application/json"
}
