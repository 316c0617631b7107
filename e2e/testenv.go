package e2e

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/ptgott/codevo-mail/smtptest"
	"github.com/ptgott/codevo-mail/userconfig"
)

const (
	testUsername = "myuser123"
	testPassword = "mypassword123"
)

// testEnvironmentConfig exposes options that should be available and
// perhaps changeable when spinning up a test environment.
type testEnvironmentConfig struct {
	resetLinkBase string
	smtpOptions   []smtptest.Option
}

// testEnvironment manages all dependencies required to simulate a "real"
// environment and run the e2e tests. Callers should create this via
// startTestEnvironment.
type testEnvironment struct {
	SMTPServer *smtptest.InProcessServer
	configPath string
}

// startTestEnvironment starts an in-process relay, writes a config file
// pointing at it and exports the relay credentials. Callers should defer a
// call to tearDown.
//
// Note that if startTestEnvironment fails, it will return an error along with
// whatever shreds of a test environment we've set up so far so you can tear
// it down (i.e., it won't just be the zero value)
func startTestEnvironment(t *testing.T, c testEnvironmentConfig) (*testEnvironment, error) {
	te := &testEnvironment{}

	key, cert, err := smtptest.GenerateTLSFiles(t)
	if err != nil {
		return te, err
	}
	ts := smtptest.NewInProcessServer(key, cert, c.smtpOptions...)
	te.SMTPServer = ts

	go ts.Start()

	td, err := filepath.Abs(filepath.Join("..", "templates"))
	if err != nil {
		return te, fmt.Errorf("can't find the template directory: %w", err)
	}

	te.configPath = filepath.Join(t.TempDir(), "config.yaml")
	err = createAppConfig(te.configPath, appConfigOptions{
		RelayAddress:  "smtp://" + ts.Address(),
		TemplateDir:   td,
		ResetLinkBase: c.resetLinkBase,
	})
	if err != nil {
		return te, err
	}

	t.Setenv(userconfig.EnvSMTPUsername, testUsername)
	t.Setenv(userconfig.EnvSMTPPassword, testPassword)

	return te, nil
}

// loadConfig reads the environment's config file the way the application
// does.
func (te *testEnvironment) loadConfig() (userconfig.Meta, error) {
	f, err := os.Open(te.configPath)
	if err != nil {
		return userconfig.Meta{}, err
	}
	defer f.Close()

	m, err := userconfig.Parse(f)
	if err != nil {
		return userconfig.Meta{}, err
	}
	m.ApplyEnv(os.LookupEnv)
	return m.CheckAndSetDefaults()
}

// tearDown returns the testEnvironment to its state prior to start. Designed
// to call with defer
func (te *testEnvironment) tearDown() {
	if te.SMTPServer != nil {
		te.SMTPServer.Close()
	}
}
