package smtptest

import (
	"encoding/base64"
	"fmt"
	"io"
	"mime/quotedprintable"
	"net/mail"
	"strings"
)

// Parsed is a received message split into its headers and its decoded body.
type Parsed struct {
	Header mail.Header
	Body   string
}

// ParseEmail parses a raw message as stored by an InProcessServer, undoing
// the body's Content-Transfer-Encoding so tests can look for plain strings.
func ParseEmail(raw string) (Parsed, error) {
	m, err := mail.ReadMessage(strings.NewReader(raw))
	if err != nil {
		return Parsed{}, fmt.Errorf("can't parse the message: %v", err)
	}

	var r io.Reader = m.Body
	switch strings.ToLower(m.Header.Get("Content-Transfer-Encoding")) {
	case "quoted-printable":
		r = quotedprintable.NewReader(r)
	case "base64":
		r = base64.NewDecoder(base64.StdEncoding, r)
	}

	b, err := io.ReadAll(r)
	if err != nil {
		return Parsed{}, fmt.Errorf("can't decode the message body: %v", err)
	}

	// DATA framing leaves a trailing CRLF that isn't part of the body we
	// sent.
	return Parsed{
		Header: m.Header,
		Body:   strings.TrimSuffix(string(b), "\r\n"),
	}, nil
}
