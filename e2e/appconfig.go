package e2e

import (
	"bytes"
	"fmt"
	"html/template"
	"os"
)

// appConfigOptions is used to fill in a config template with details unique to
// a specific test environment. Keep this as small as possible so the input
// remains as close to a "real" YAML document as we can make it.
//
// Fields are exported so we can use them in templates.
type appConfigOptions struct {
	RelayAddress  string
	TemplateDir   string
	ResetLinkBase string
}

// createAppConfig writes a configuration YAML doc to the given path.
// Credentials are left out so the test environment can supply them the way
// a deployment would, through the environment.
func createAppConfig(path string, opts appConfigOptions) error {
	configTemplate := `---
email:
    smtpServerAddress: {{ .RelayAddress }}
    fromAddress: noreply@codevo.dev
    skipCertVerification: true
    timeout: 5s
    maxMessageSize: 1MiB
templates:
    dir: {{ .TemplateDir }}
links:
    resetLinkBase: {{ .ResetLinkBase }}
`

	tmpl, err := template.New("conf").Parse(configTemplate)

	// This means the config template string was written incorrectly. Not
	// an issue with the application itself.
	if err != nil {
		return fmt.Errorf("couldn't parse the application config template: %v", err)
	}

	var config bytes.Buffer

	err = tmpl.Execute(&config, opts)

	// This is an issue with the test environment, not the application
	if err != nil {
		return fmt.Errorf("couldn't populate the application config template: %v", err)
	}

	if err := os.WriteFile(path, config.Bytes(), 0o600); err != nil {
		return fmt.Errorf("couldn't write to the config file: %v", err)
	}

	return nil

}
