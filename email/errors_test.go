package email

import (
	"errors"
	"fmt"
	"net"
	"net/textproto"
	"testing"
)

func TestClassifyDialErr(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"bad credentials", &textproto.Error{Code: 535, Msg: "5.7.8 Authentication credentials invalid"}, KindTransportAuth},
		{"auth required", &textproto.Error{Code: 530, Msg: "5.7.0 Authentication required"}, KindTransportAuth},
		{"temporary auth failure", &textproto.Error{Code: 454, Msg: "4.7.0 Temporary authentication failure"}, KindTransportAuth},
		{"tls not available", &textproto.Error{Code: 454, Msg: "4.7.0 TLS not available"}, KindTransportBuild},
		{"service unavailable", &textproto.Error{Code: 421, Msg: "4.3.2 Service not available"}, KindTransportBuild},
		{"gmail wording", errors.New("535 Username and Password not accepted"), KindTransportAuth},
		{"refused", &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}, KindTransportBuild},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classifyDialErr(tt.err); got != tt.want {
				t.Errorf("expected %v but got %v", tt.want, got)
			}
		})
	}
}

func TestErrorMatching(t *testing.T) {
	err := fmt.Errorf("sending: %w", &Error{Kind: KindTransportAuth, Op: "dial", Err: errors.New("nope")})

	if !errors.Is(err, ErrTransportAuth) {
		t.Error("expected the error to match ErrTransportAuth")
	}
	if errors.Is(err, ErrTransportBuild) {
		t.Error("did not expect the error to match ErrTransportBuild")
	}
	if KindOf(err) != KindTransportAuth {
		t.Errorf("unexpected kind %v", KindOf(err))
	}
	if !IsTransport(err) {
		t.Error("expected an auth failure to count as a transport error")
	}
	if Temporary(err) {
		t.Error("did not expect rejected credentials to be temporary")
	}
	if KindOf(errors.New("plain")) != KindUnknown {
		t.Error("expected a plain error to have no kind")
	}
}

func TestTemporary(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"greylisted", &Error{Kind: KindSend, Err: &textproto.Error{Code: 451, Msg: "4.7.1 try again later"}}, true},
		{"rejected", &Error{Kind: KindSend, Err: &textproto.Error{Code: 550, Msg: "5.1.1 user unknown"}}, false},
		{"refused", &Error{Kind: KindTransportBuild, Err: &net.OpError{Op: "dial", Err: errors.New("connection refused")}}, true},
		{"bad address", &Error{Kind: KindAddressParse, Err: errors.New("no angle-addr")}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Temporary(tt.err); got != tt.want {
				t.Errorf("expected %v but got %v", tt.want, got)
			}
		})
	}
}
