// Package compose turns subject, body and attachments into a raw RFC 5322
// message that mail sessions transmit as-is.
package compose

import (
	"bytes"
	"io"
	"mime"
	"net/mail"
	"os"
	"path/filepath"
	"time"

	gomail "github.com/emersion/go-message/mail"
	"github.com/pkg/errors"
)

var ErrNoRecipients = errors.New("message has no recipients")

// Content is the human-facing part of a message.
type Content struct {
	From        string // "Name <addr>" or a bare address
	To          []string
	Subject     string
	Text        string
	HTML        string
	Headers     map[string]string
	Attachments []Attachment
	Date        time.Time // zero means now
}

type Attachment struct {
	Filename    string
	ContentType string
	Data        []byte
}

// LoadAttachment reads a file and guesses its content type from the extension.
func LoadAttachment(path string) (Attachment, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path is supplied by the operator
	if err != nil {
		return Attachment{}, errors.Wrapf(err, "failed to read attachment %q", path)
	}
	name := filepath.Base(path)
	ct := mime.TypeByExtension(filepath.Ext(name))
	if ct == "" {
		ct = "application/octet-stream"
	}
	return Attachment{Filename: name, ContentType: ct, Data: data}, nil
}

// Build renders c. Text and HTML parts use quoted-printable so placeholders in
// the body survive encoding.
func Build(c Content) ([]byte, error) {
	if len(c.To) == 0 {
		return nil, ErrNoRecipients
	}

	h, err := header(c)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if len(c.Attachments) == 0 && c.HTML == "" {
		h.SetContentType("text/plain", map[string]string{"charset": "utf-8"})
		h.Set("Content-Transfer-Encoding", "quoted-printable")
		w, err := gomail.CreateSingleInlineWriter(&buf, h)
		if err != nil {
			return nil, errors.Wrap(err, "failed to create message")
		}
		if err := writeAndClose(w, c.Text); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	}

	mw, err := gomail.CreateWriter(&buf, h)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create message")
	}

	iw, err := mw.CreateInline()
	if err != nil {
		return nil, errors.Wrap(err, "failed to create inline part")
	}
	if err := inlinePart(iw, "text/plain", c.Text); err != nil {
		return nil, err
	}
	if c.HTML != "" {
		if err := inlinePart(iw, "text/html", c.HTML); err != nil {
			return nil, err
		}
	}
	if err := iw.Close(); err != nil {
		return nil, errors.Wrap(err, "failed to close inline part")
	}

	for _, a := range c.Attachments {
		var ah gomail.AttachmentHeader
		ah.Set("Content-Type", a.ContentType)
		ah.SetFilename(a.Filename)
		aw, err := mw.CreateAttachment(ah)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to create attachment %q", a.Filename)
		}
		if _, err := aw.Write(a.Data); err != nil {
			return nil, errors.Wrapf(err, "failed to write attachment %q", a.Filename)
		}
		if err := aw.Close(); err != nil {
			return nil, errors.Wrapf(err, "failed to close attachment %q", a.Filename)
		}
	}

	if err := mw.Close(); err != nil {
		return nil, errors.Wrap(err, "failed to close message")
	}
	return buf.Bytes(), nil
}

func header(c Content) (gomail.Header, error) {
	var h gomail.Header

	date := c.Date
	if date.IsZero() {
		date = time.Now()
	}
	h.SetDate(date)

	if c.From != "" {
		from, err := mail.ParseAddress(c.From)
		if err != nil {
			return h, errors.Wrapf(err, "invalid from address %q", c.From)
		}
		h.SetAddressList("From", []*gomail.Address{from})
	}

	to := make([]*gomail.Address, 0, len(c.To))
	for _, addr := range c.To {
		a, err := mail.ParseAddress(addr)
		if err != nil {
			return h, errors.Wrapf(err, "invalid recipient %q", addr)
		}
		to = append(to, a)
	}
	h.SetAddressList("To", to)
	h.SetSubject(c.Subject)

	if err := h.GenerateMessageID(); err != nil {
		return h, errors.Wrap(err, "failed to generate message id")
	}
	for k, v := range c.Headers {
		h.Set(k, v)
	}
	return h, nil
}

func inlinePart(iw *gomail.InlineWriter, contentType, body string) error {
	var ih gomail.InlineHeader
	ih.SetContentType(contentType, map[string]string{"charset": "utf-8"})
	ih.Set("Content-Transfer-Encoding", "quoted-printable")
	w, err := iw.CreatePart(ih)
	if err != nil {
		return errors.Wrapf(err, "failed to create %s part", contentType)
	}
	return writeAndClose(w, body)
}

func writeAndClose(w io.WriteCloser, body string) error {
	if _, err := io.WriteString(w, body); err != nil {
		_ = w.Close()
		return errors.Wrap(err, "failed to write body")
	}
	return errors.Wrap(w.Close(), "failed to close body")
}
