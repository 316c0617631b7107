package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ptgott/codevo-mail/email"
	"github.com/ptgott/codevo-mail/html"
	"github.com/ptgott/codevo-mail/smtptest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingSender keeps every Envelope it's asked to send.
type recordingSender struct {
	mu   sync.Mutex
	sent []email.Envelope
	err  error
}

func (s *recordingSender) Send(_ context.Context, env email.Envelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, env)
	return nil
}

func (s *recordingSender) Host() string { return "test-relay" }

var ada = User{Name: "Ada Lovelace", Email: "her@example.com"}

func newTestMailer(s Sender) *Mailer {
	c := Config{}
	conf, _ := c.CheckAndSetDefaults()
	return NewMailer(s, html.NewDirRenderer("../templates"), conf)
}

func TestSendVerificationCode(t *testing.T) {
	s := &recordingSender{}
	m := newTestMailer(s)

	require.NoError(t, m.SendVerificationCode(context.Background(), ada, "https://x/abc123"))
	require.Len(t, s.sent, 1)

	env := s.sent[0]
	assert.Equal(t, "Your account verification code", env.Subject)
	assert.Equal(t, "Ada Lovelace <her@example.com>", env.To())
	assert.Contains(t, env.HTMLBody, "Ada")
	assert.Contains(t, env.HTMLBody, "https://x/abc123")
}

func TestSendPasswordResetToken(t *testing.T) {
	s := &recordingSender{}
	m := newTestMailer(s)

	require.NoError(t, m.SendPasswordResetToken(context.Background(), ada, "https://x/reset/abc", 30))
	require.Len(t, s.sent, 1)

	env := s.sent[0]
	assert.Equal(t, "Your password reset token (valid for only 30 minutes)", env.Subject)
	assert.Contains(t, env.HTMLBody, "https://x/reset/abc")
	assert.Contains(t, env.HTMLBody, "<title>reset_password</title>")
}

func TestSendPasswordResetLink(t *testing.T) {
	s := &recordingSender{}
	m := newTestMailer(s)

	require.NoError(t, m.SendPasswordResetLink(context.Background(), "her@example.com", "tok 123"))
	require.Len(t, s.sent, 1)

	env := s.sent[0]
	assert.Equal(t, "Password Reset Request", env.Subject)
	assert.Equal(t, "her@example.com", env.To())
	assert.Contains(t, env.HTMLBody, `href="http://localhost:3000/pwd-reset/tok%20123"`)
}

func TestSendPasswordResetLinkNoToken(t *testing.T) {
	s := &recordingSender{}
	err := newTestMailer(s).SendPasswordResetLink(context.Background(), "her@example.com", "")
	assert.Equal(t, email.KindRender, email.KindOf(err))
	assert.Empty(t, s.sent)
}

func TestResetLink(t *testing.T) {
	tests := []struct {
		base  string
		token string
		want  string
	}{
		{"", "abc", "http://localhost:3000/pwd-reset/abc"},
		{"https://codevo.dev/reset", "abc", "https://codevo.dev/reset/abc"},
		{"https://codevo.dev/reset/", "a/b", "https://codevo.dev/reset/a%2Fb"},
	}
	for _, tt := range tests {
		m := NewMailer(&recordingSender{}, nil, Config{ResetLinkBase: tt.base})
		assert.Equal(t, tt.want, m.ResetLink(tt.token))
	}
}

func TestRenderFailuresAreTyped(t *testing.T) {
	s := &recordingSender{}

	// No first name to greet.
	err := newTestMailer(s).SendVerificationCode(context.Background(), User{Email: "her@example.com"}, "https://x")
	require.Error(t, err)
	assert.True(t, errors.Is(err, email.ErrRender), "got %v", err)
	assert.True(t, errors.Is(err, html.ErrNoFirstName), "got %v", err)

	// No templates at all.
	m := NewMailer(s, html.NewDirRenderer(t.TempDir()), Config{})
	err = m.SendPasswordResetToken(context.Background(), ada, "https://x", 30)
	require.Error(t, err)
	assert.True(t, errors.Is(err, email.ErrTemplateLoad), "got %v", err)

	assert.Empty(t, s.sent)
}

func TestSenderErrorsPassThrough(t *testing.T) {
	want := &email.Error{Kind: email.KindTransportAuth, Op: "dial", Err: errors.New("535 nope")}
	err := newTestMailer(&recordingSender{err: want}).SendVerificationCode(context.Background(), ada, "https://x")
	assert.Same(t, want, err)
}

func TestConfigCheckAndSetDefaults(t *testing.T) {
	c := Config{}
	n, err := c.CheckAndSetDefaults()
	require.NoError(t, err)
	assert.Equal(t, DefaultResetLinkBase, n.ResetLinkBase)

	c = Config{ResetLinkBase: "ftp://codevo.dev/reset"}
	_, err = c.CheckAndSetDefaults()
	assert.Error(t, err)
}

// TestSendThroughRelay runs the whole render-then-send path against an
// in-process relay.
func TestSendThroughRelay(t *testing.T) {
	k, c, err := smtptest.GenerateTLSFiles(t)
	require.NoError(t, err)
	srv := smtptest.NewInProcessServer(k, c)
	go srv.Start()
	defer srv.Close()

	uc := email.UserConfig{
		SMTPServerHost:       srv.Host(),
		SMTPServerPort:       srv.Port(),
		Username:             "myuser",
		Password:             "mypassword",
		FromAddress:          "noreply@codevo.dev",
		SkipCertVerification: true,
		Timeout:              5 * time.Second,
	}
	uc, err = uc.CheckAndSetDefaults()
	require.NoError(t, err)

	m := newTestMailer(email.NewDispatcher(uc))

	require.NoError(t, m.SendVerificationCode(context.Background(), ada, "https://x/abc123"))
	require.NoError(t, m.SendPasswordResetToken(context.Background(), ada, "https://x/reset", 30))

	b, err := srv.RetrieveEmails(0)
	require.NoError(t, err)
	require.Len(t, b, 2)

	v, err := smtptest.ParseEmail(b[0])
	require.NoError(t, err)
	assert.Equal(t, "Ada Lovelace <her@example.com>", v.Header.Get("To"))
	assert.Equal(t, "Your account verification code", v.Header.Get("Subject"))
	assert.Contains(t, v.Body, "Hi Ada,")
	assert.Contains(t, v.Body, "https://x/abc123")

	r, err := smtptest.ParseEmail(b[1])
	require.NoError(t, err)
	assert.Equal(t, "Your password reset token (valid for only 30 minutes)", r.Header.Get("Subject"))
}
