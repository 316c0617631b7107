package notify

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/ptgott/codevo-mail/email"
	"github.com/ptgott/codevo-mail/html"
)

const (
	verificationSubject  = "Your account verification code"
	resetTokenSubjectFmt = "Your password reset token (valid for only %v minutes)"
	resetLinkSubject     = "Password Reset Request"

	// DefaultResetLinkBase is where reset links point when the config
	// doesn't say otherwise.
	DefaultResetLinkBase = "http://localhost:3000/pwd-reset/"
)

// User is the recipient of an account email.
type User struct {
	Name  string `yaml:"name"`
	Email string `yaml:"email"`
}

// Config contains options for account emails that aren't about the relay.
type Config struct {
	// Prefix of password reset links. The token is appended to it.
	ResetLinkBase string `yaml:"resetLinkBase"`
}

// CheckAndSetDefaults validates c and either returns a copy of c with
// default settings applied or returns an error due to an invalid
// configuration
func (c *Config) CheckAndSetDefaults() (Config, error) {
	n := *c
	if n.ResetLinkBase == "" {
		n.ResetLinkBase = DefaultResetLinkBase
	}
	u, err := url.Parse(n.ResetLinkBase)
	if err != nil {
		return Config{}, fmt.Errorf("can't parse the reset link base: %v", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return Config{}, fmt.Errorf("the reset link base must be an http or https URL, not %q", n.ResetLinkBase)
	}
	return n, nil
}

// Sender delivers a rendered message. Implemented by *email.Dispatcher.
type Sender interface {
	Send(ctx context.Context, env email.Envelope) error
	Host() string
}

// BodyRenderer produces HTML bodies from page templates. Implemented by
// *html.Renderer.
type BodyRenderer interface {
	Render(name html.TemplateName, recipientName string, url string) (string, error)
}

// Mailer sends account emails. Every method renders a body and hands it to
// the Sender exactly once; nothing is kept between calls, so a Mailer can be
// shared between goroutines.
type Mailer struct {
	sender   Sender
	renderer BodyRenderer
	conf     Config
}

// NewMailer returns a Mailer. conf should already have been through
// CheckAndSetDefaults.
func NewMailer(s Sender, r BodyRenderer, conf Config) *Mailer {
	return &Mailer{
		sender:   s,
		renderer: r,
		conf:     conf,
	}
}

// body is one way of producing an HTML body.
type body func() (string, error)

// templated renders a page template for u.
func (m *Mailer) templated(name html.TemplateName, u User, link string) body {
	return func() (string, error) {
		return m.renderer.Render(name, u.Name, link)
	}
}

// send renders b and hands the result to the Sender. Both templated and
// built-in bodies go through here.
func (m *Mailer) send(ctx context.Context, u User, subject string, b body) error {
	h, err := b()
	if err != nil {
		err = renderError(err)
		email.RecordFailure(m.sender.Host(), err)
		return err
	}
	return m.sender.Send(ctx, email.Envelope{
		ToName:    u.Name,
		ToAddress: u.Email,
		Subject:   subject,
		HTMLBody:  h,
	})
}

// renderError maps html package errors onto the email error kinds.
func renderError(err error) error {
	if errors.Is(err, html.ErrTemplateLoad) {
		return &email.Error{Kind: email.KindTemplateLoad, Op: "load templates", Err: err}
	}
	return &email.Error{Kind: email.KindRender, Op: "render body", Err: err}
}

// SendVerificationCode emails u a link to verify their account.
func (m *Mailer) SendVerificationCode(ctx context.Context, u User, link string) error {
	return m.send(ctx, u, verificationSubject, m.templated(html.VerificationCode, u, link))
}

// ResetTokenSubject returns the subject line of a password reset token
// email.
func ResetTokenSubject(expiresInMinutes int64) string {
	return fmt.Sprintf(resetTokenSubjectFmt, expiresInMinutes)
}

// SendPasswordResetToken emails u a password reset link that expires after
// expiresInMinutes.
func (m *Mailer) SendPasswordResetToken(ctx context.Context, u User, link string, expiresInMinutes int64) error {
	return m.send(ctx, u, ResetTokenSubject(expiresInMinutes), m.templated(html.ResetPassword, u, link))
}

// ResetLink returns the password reset URL for token.
func (m *Mailer) ResetLink(token string) string {
	base := m.conf.ResetLinkBase
	if base == "" {
		base = DefaultResetLinkBase
	}
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	return base + url.PathEscape(token)
}

// SendPasswordResetLink emails addr a bare password reset link for token.
// Unlike SendPasswordResetToken it needs no recipient name or template
// directory.
func (m *Mailer) SendPasswordResetLink(ctx context.Context, addr string, token string) error {
	link := m.ResetLink(token)
	return m.send(ctx, User{Email: addr}, resetLinkSubject, func() (string, error) {
		if token == "" {
			return "", fmt.Errorf("%w: empty reset token", html.ErrRender)
		}
		return html.RenderResetLink(link)
	})
}
