package email

import (
	"errors"
	"fmt"
	"net"
	"net/textproto"
	"strings"
)

// Kind identifies the stage of a send that failed, so that callers can tell
// "that address is invalid" apart from "try again later".
type Kind int

const (
	KindUnknown Kind = iota
	KindTemplateLoad
	KindRender
	KindAddressParse
	KindTransportBuild
	KindTransportAuth
	KindSend
)

func (k Kind) String() string {
	switch k {
	case KindTemplateLoad:
		return "template_load"
	case KindRender:
		return "render"
	case KindAddressParse:
		return "address_parse"
	case KindTransportBuild:
		return "transport_build"
	case KindTransportAuth:
		return "transport_auth"
	case KindSend:
		return "send"
	default:
		return "unknown"
	}
}

// Error is returned by every failed send. A send either fully succeeds or
// fails with exactly one Error.
type Error struct {
	Kind Kind
	Op   string // e.g. "parse To address", "dial"
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("email: %v", e.Kind)
	}
	return fmt.Sprintf("email: %v: %v: %v", e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets the package sentinels match any Error of the same Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Op == "" && t.Err == nil && t.Kind == e.Kind
}

// Sentinels for use with errors.Is.
var (
	ErrTemplateLoad   = &Error{Kind: KindTemplateLoad}
	ErrRender         = &Error{Kind: KindRender}
	ErrAddressParse   = &Error{Kind: KindAddressParse}
	ErrTransportBuild = &Error{Kind: KindTransportBuild}
	ErrTransportAuth  = &Error{Kind: KindTransportAuth}
	ErrSend           = &Error{Kind: KindSend}
)

// KindOf returns the Kind of the first *Error in err's chain, or KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsTransport reports whether err came from the SMTP session itself rather
// than from rendering or address validation.
func IsTransport(err error) bool {
	switch KindOf(err) {
	case KindTransportBuild, KindTransportAuth, KindSend:
		return true
	}
	return false
}

// Temporary reports whether resending the same message later could succeed:
// network timeouts, dial failures and SMTP 4xx replies.
func Temporary(err error) bool {
	if !IsTransport(err) {
		return false
	}
	var tpe *textproto.Error
	if errors.As(err, &tpe) {
		return tpe.Code >= 400 && tpe.Code < 500
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	var oe *net.OpError
	if errors.As(err, &oe) && oe.Op == "dial" {
		return true
	}
	return false
}

// SMTP reply codes a server uses to reject AUTH.
// https://www.rfc-editor.org/rfc/rfc4954#section-6
var authReplyCodes = map[int]struct{}{
	530: {},
	534: {},
	535: {},
	538: {},
}

// classifyDialErr decides whether a failure while opening the session
// (connect, STARTTLS, AUTH) was the server refusing our credentials.
func classifyDialErr(err error) Kind {
	var tpe *textproto.Error
	if errors.As(err, &tpe) {
		if _, ok := authReplyCodes[tpe.Code]; ok {
			return KindTransportAuth
		}
		if tpe.Code == 454 && strings.Contains(strings.ToLower(tpe.Msg), "auth") {
			return KindTransportAuth
		}
		return KindTransportBuild
	}
	s := strings.ToLower(err.Error())
	if strings.Contains(s, "username and password not accepted") ||
		strings.Contains(s, "authentication failed") {
		return KindTransportAuth
	}
	return KindTransportBuild
}
