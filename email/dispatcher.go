package email

import (
	"context"
	"crypto/tls"
	"fmt"
	"mime"
	netmail "net/mail"
	"strings"

	mail "github.com/go-mail/mail"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Envelope is a single message to deliver. HTMLBody is sent as-is.
type Envelope struct {
	ToName    string // may be empty
	ToAddress string
	Subject   string
	HTMLBody  string
}

// To returns the To header value, "Name <address>", or just the address
// when there is no name.
func (e Envelope) To() string {
	if e.ToName == "" {
		return e.ToAddress
	}
	return fmt.Sprintf("%v <%v>", e.ToName, e.ToAddress)
}

// Dispatcher submits messages to the SMTP relay described by a UserConfig.
// It holds no connection: every Send dials, negotiates STARTTLS,
// authenticates and hangs up, so concurrent Sends share nothing.
type Dispatcher struct {
	conf UserConfig
}

// NewDispatcher returns a Dispatcher for uc, which should already have been
// through CheckAndSetDefaults.
func NewDispatcher(uc UserConfig) *Dispatcher {
	return &Dispatcher{conf: uc}
}

// From returns the From (and Reply-To) header value.
func (d *Dispatcher) From() string {
	return fmt.Sprintf("%v <%v>", d.conf.FromName, d.conf.FromAddress)
}

// Host returns the relay's host name.
func (d *Dispatcher) Host() string {
	return d.conf.SMTPServerHost
}

// newDialer builds the transport for a single send. STARTTLS is mandatory:
// a relay that doesn't offer it fails the send rather than receiving
// credentials in plain text.
func (d *Dispatcher) newDialer() *mail.Dialer {
	dl := mail.NewDialer(
		d.conf.SMTPServerHost,
		d.conf.SMTPServerPort,
		d.conf.Username,
		d.conf.Password,
	)
	dl.StartTLSPolicy = mail.MandatoryStartTLS
	dl.TLSConfig = &tls.Config{
		ServerName:         d.conf.SMTPServerHost,
		InsecureSkipVerify: d.conf.SkipCertVerification,
	}
	if d.conf.Timeout > 0 {
		dl.Timeout = d.conf.Timeout
	}
	// Each call is a single attempt. Retrying is up to the caller.
	dl.RetryFailure = false
	return dl
}

// newMessage validates every address header before building the message,
// so a malformed address never reaches the network.
func (d *Dispatcher) newMessage(env Envelope) (*mail.Message, error) {
	from := d.From()
	to := env.To()

	if _, err := netmail.ParseAddress(from); err != nil {
		return nil, &Error{Kind: KindAddressParse, Op: "parse From address", Err: err}
	}
	toAddr, err := netmail.ParseAddress(to)
	if err != nil {
		return nil, &Error{Kind: KindAddressParse, Op: "parse To address", Err: err}
	}

	if limit := d.conf.MaxMessageSize; limit > 0 && int64(len(env.HTMLBody)) > limit {
		return nil, &Error{
			Kind: KindRender,
			Op:   "check body size",
			Err:  fmt.Errorf("body is %v bytes, more than the %v byte limit", len(env.HTMLBody), limit),
		}
	}

	m := mail.NewMessage()
	m.SetHeader("From", headerAddress(d.conf.FromName, d.conf.FromAddress))
	m.SetHeader("To", headerAddress(env.ToName, env.ToAddress))
	m.SetHeader("Reply-To", headerAddress(d.conf.FromName, d.conf.FromAddress))
	m.SetHeader("Subject", env.Subject)
	m.SetHeader("Message-ID", messageID(d.conf.FromAddress))
	m.SetBody("text/html", env.HTMLBody)

	log.Debug().
		Str("to", toAddr.Address).
		Str("subject", env.Subject).
		Msg("built message")

	return m, nil
}

// headerAddress formats an address header value. Only the display name is
// RFC 2047 encoded, and only when it isn't plain ASCII, so the angle address
// stays parseable for the envelope.
func headerAddress(name, address string) string {
	if name == "" {
		return address
	}
	return fmt.Sprintf("%v <%v>", mime.QEncoding.Encode("utf-8", name), address)
}

// messageID returns a globally unique Message-ID in the sender's domain.
func messageID(fromAddress string) string {
	domain := "localhost"
	if i := strings.LastIndex(fromAddress, "@"); i >= 0 && i < len(fromAddress)-1 {
		domain = fromAddress[i+1:]
	}
	return fmt.Sprintf("<%v@%v>", uuid.New().String(), domain)
}

// submit dials the relay and sends m. Dialing covers connecting, STARTTLS
// and AUTH.
func (d *Dispatcher) submit(m *mail.Message) error {
	sc, err := d.newDialer().Dial()
	if err != nil {
		return &Error{Kind: classifyDialErr(err), Op: "dial", Err: err}
	}

	if err := mail.Send(sc, m); err != nil {
		sc.Close()
		return &Error{Kind: KindSend, Op: "submit", Err: err}
	}

	if err := sc.Close(); err != nil {
		return &Error{Kind: KindSend, Op: "quit", Err: err}
	}
	return nil
}

// Send delivers env in a single attempt. A nil error means the relay
// accepted the message. Send returns early if ctx is done, though the
// abandoned session is still bounded by the configured timeout.
func (d *Dispatcher) Send(ctx context.Context, env Envelope) error {
	l := log.With().
		Str("host", d.conf.SMTPServerHost).
		Int("port", d.conf.SMTPServerPort).
		Str("to", env.ToAddress).
		Logger()

	m, err := d.newMessage(env)
	if err != nil {
		l.Error().Err(err).Msg("could not build the message")
		recordFailure(d.conf.SMTPServerHost, err)
		return err
	}

	if err := ctx.Err(); err != nil {
		err = &Error{Kind: KindSend, Op: "wait for the relay", Err: err}
		l.Error().Err(err).Msg("not sending the message")
		recordFailure(d.conf.SMTPServerHost, err)
		return err
	}

	done := make(chan error, 1)
	go func() {
		done <- d.submit(m)
	}()

	select {
	case err = <-done:
	case <-ctx.Done():
		err = &Error{Kind: KindSend, Op: "wait for the relay", Err: ctx.Err()}
	}

	if err != nil {
		l.Error().Err(err).Str("kind", KindOf(err).String()).Msg("could not send the message")
		recordFailure(d.conf.SMTPServerHost, err)
		return err
	}

	l.Info().Str("subject", env.Subject).Msg("sent the message")
	mailSendSuccess.WithLabelValues(d.conf.SMTPServerHost).Inc()
	return nil
}
