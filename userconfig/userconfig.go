package userconfig

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/ptgott/codevo-mail/email"
	"github.com/ptgott/codevo-mail/notify"
	"github.com/rs/zerolog/log"

	yaml "gopkg.in/yaml.v2"
)

// Environment variables that override the SMTP credentials in the config
// file, so secrets can stay out of it.
const (
	EnvSMTPUsername = "CODEVO_SMTP_USERNAME"
	EnvSMTPPassword = "CODEVO_SMTP_PASSWORD"
)

const defaultTemplateDir = "./templates"

// Meta represents all current config options that the application can use,
// i.e., after validation and parsing
type Meta struct {
	EmailSettings email.UserConfig `yaml:"email"`
	Templates     Templates        `yaml:"templates"`
	Links         notify.Config    `yaml:"links"`
}

// Templates says where to find the email templates.
type Templates struct {
	// Contains <name>.html per template, partials/styles.html and
	// layouts/base.html
	Dir string `yaml:"dir"`
}

// CheckAndSetDefaults validates t and either returns a copy of t with
// default settings applied or returns an error due to an invalid
// configuration
func (t *Templates) CheckAndSetDefaults() (Templates, error) {
	c := *t
	if c.Dir == "" {
		c.Dir = defaultTemplateDir
	}
	fi, err := os.Stat(c.Dir)
	if err != nil {
		return Templates{}, fmt.Errorf("can't use the template directory %v: %v", c.Dir, err)
	}
	if !fi.IsDir() {
		return Templates{}, fmt.Errorf("the template directory %v is not a directory", c.Dir)
	}
	return c, nil
}

// CheckAndSetDefaults validates m and either returns a copy of m with default
// settings applied or returns an error due to an invalid configuration
func (m *Meta) CheckAndSetDefaults() (Meta, error) {
	c := Meta{}

	e, err := m.EmailSettings.CheckAndSetDefaults()
	if err != nil {
		return Meta{}, err
	}
	c.EmailSettings = e

	t, err := m.Templates.CheckAndSetDefaults()
	if err != nil {
		return Meta{}, err
	}
	c.Templates = t

	l, err := m.Links.CheckAndSetDefaults()
	if err != nil {
		return Meta{}, err
	}
	c.Links = l

	return c, nil
}

// ApplyEnv overrides the SMTP credentials with any that lookup finds.
// lookup is usually os.LookupEnv.
func (m *Meta) ApplyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvSMTPUsername); ok && v != "" {
		m.EmailSettings.Username = v
		log.Debug().Str("variable", EnvSMTPUsername).Msg("using the SMTP username from the environment")
	}
	if v, ok := lookup(EnvSMTPPassword); ok && v != "" {
		m.EmailSettings.Password = v
		log.Debug().Str("variable", EnvSMTPPassword).Msg("using the SMTP password from the environment")
	}
}

// LoadDotEnv adds the variables in the .env file at path to the environment,
// without overriding variables that are already set. A missing file is fine.
func LoadDotEnv(path string) error {
	err := godotenv.Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("can't read the env file %v: %v", path, err)
	}
	log.Debug().Str("path", path).Msg("loaded the env file")
	return nil
}

// Parse generates usable configurations from possibly arbitrary user input.
// An error indicates a problem with parsing. The Reader r can be either JSON
// or YAML. Call CheckAndSetDefaults on the result before using it.
func Parse(r io.Reader) (*Meta, error) {
	var m Meta
	err := yaml.NewDecoder(r).Decode(&m)
	if err != nil {
		return &Meta{}, fmt.Errorf("can't read the config file as YAML: %v", err)
	}

	var es email.UserConfig = email.UserConfig{}
	if m.EmailSettings == es {
		return &Meta{}, errors.New("must include an \"email\" section")
	}

	return &m, nil

}
