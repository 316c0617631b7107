package e2e

import (
	"context"
	"strings"
	"testing"

	"github.com/ptgott/codevo-mail/email"
	"github.com/ptgott/codevo-mail/html"
	"github.com/ptgott/codevo-mail/notify"
	"github.com/ptgott/codevo-mail/smtptest"
)

// newMailer wires up a Mailer from the environment's config file, the same
// way main does.
func newMailer(t *testing.T, te *testEnvironment) *notify.Mailer {
	t.Helper()
	c, err := te.loadConfig()
	if err != nil {
		t.Fatalf("can't load the app config: %v", err)
	}
	return notify.NewMailer(
		email.NewDispatcher(c.EmailSettings),
		html.NewDirRenderer(c.Templates.Dir),
		c.Links,
	)
}

// Send every kind of account email and check what the relay received.
func TestAccountEmails(t *testing.T) {
	testenv, err := startTestEnvironment(t, testEnvironmentConfig{
		resetLinkBase: "https://codevo.dev/pwd-reset/",
		smtpOptions:   []smtptest.Option{smtptest.WithCredentials(testUsername, testPassword)},
	})

	defer testenv.tearDown()

	if err != nil {
		t.Fatalf("error starting test environment: %v", err)
	}

	m := newMailer(t, testenv)
	ada := notify.User{Name: "Ada Lovelace", Email: "her@example.com"}
	ctx := context.Background()

	if err := m.SendVerificationCode(ctx, ada, "https://x/abc123"); err != nil {
		t.Fatalf("unexpected error sending the verification email: %v", err)
	}
	if err := m.SendPasswordResetToken(ctx, ada, "https://x/reset/abc123", 30); err != nil {
		t.Fatalf("unexpected error sending the reset token email: %v", err)
	}
	if err := m.SendPasswordResetLink(ctx, ada.Email, "abc123"); err != nil {
		t.Fatalf("unexpected error sending the reset link email: %v", err)
	}

	ems, err := testenv.SMTPServer.RetrieveEmails(0)
	if err != nil {
		t.Fatalf("can't retrieve email from the test SMTP server: %v", err)
	}

	expected := []struct {
		to      string
		subject string
		content []string
	}{
		{
			to:      "Ada Lovelace <her@example.com>",
			subject: "Your account verification code",
			content: []string{"Hi Ada,", "https://x/abc123"},
		},
		{
			to:      "Ada Lovelace <her@example.com>",
			subject: "Your password reset token (valid for only 30 minutes)",
			content: []string{"Hi Ada,", "https://x/reset/abc123"},
		},
		{
			to:      "her@example.com",
			subject: "Password Reset Request",
			content: []string{"https://codevo.dev/pwd-reset/abc123"},
		},
	}

	if len(ems) != len(expected) {
		t.Fatalf("expecting %v emails but got %v", len(expected), len(ems))
	}

	for i, e := range expected {
		p, err := smtptest.ParseEmail(ems[i])
		if err != nil {
			t.Fatalf("can't parse email %v: %v", i, err)
		}
		if got := p.Header.Get("To"); got != e.to {
			t.Errorf("email %v: expected To %q but got %q", i, e.to, got)
		}
		if got := p.Header.Get("Subject"); got != e.subject {
			t.Errorf("email %v: expected Subject %q but got %q", i, e.subject, got)
		}
		if got := p.Header.Get("From"); got != "Codevo <noreply@codevo.dev>" {
			t.Errorf("email %v: unexpected From %q", i, got)
		}
		for _, c := range e.content {
			if !strings.Contains(p.Body, c) {
				t.Errorf("email %v: expected the body to contain %q", i, c)
			}
		}
	}
}

// Credentials that the relay rejects should surface as an auth error, not a
// silent success.
func TestRejectedCredentials(t *testing.T) {
	testenv, err := startTestEnvironment(t, testEnvironmentConfig{
		smtpOptions: []smtptest.Option{smtptest.WithCredentials("someoneelse", "secret")},
	})

	defer testenv.tearDown()

	if err != nil {
		t.Fatalf("error starting test environment: %v", err)
	}

	m := newMailer(t, testenv)
	err = m.SendVerificationCode(
		context.Background(),
		notify.User{Name: "Ada Lovelace", Email: "her@example.com"},
		"https://x/abc123",
	)
	if k := email.KindOf(err); k != email.KindTransportAuth {
		t.Errorf("expected a %v error but got %v (%v)", email.KindTransportAuth, k, err)
	}

	ems, err := testenv.SMTPServer.RetrieveEmails(0)
	if err != nil {
		t.Fatalf("can't retrieve email from the test SMTP server: %v", err)
	}
	if len(ems) != 0 {
		t.Errorf("expected no emails but got %v", len(ems))
	}
}
