package email

import (
	"errors"
	"fmt"
	"net/mail"
	"net/url"
	"regexp"
	"strconv"
	"time"

	"github.com/alecthomas/units"
)

const smtpScheme string = "smtp://"

const (
	defaultFromName       = "Codevo"
	defaultTimeout        = 10 * time.Second
	defaultMaxMessageSize = 10 * int64(units.MiB)
)

// UserConfig represents SMTP relay options provided by the user. Not meant to
// be used directly for sending email without calling CheckAndSetDefaults.
type UserConfig struct {
	SMTPServerHost string
	SMTPServerPort int
	Username       string
	Password       string
	FromAddress    string
	// Display name used in the From and Reply-To headers.
	FromName string
	// Only for relays with self-signed certs, e.g., in tests.
	SkipCertVerification bool
	// Bounds connecting, STARTTLS, AUTH and each SMTP command.
	Timeout time.Duration
	// Rendered bodies larger than this are refused before dialing.
	MaxMessageSize int64
}

// rawUserConfig is the YAML shape of UserConfig.
type rawUserConfig struct {
	SMTPServerAddress    string `yaml:"smtpServerAddress"`
	Username             string `yaml:"username"`
	Password             string `yaml:"password"`
	FromAddress          string `yaml:"fromAddress"`
	FromName             string `yaml:"fromName"`
	SkipCertVerification bool   `yaml:"skipCertVerification"`
	Timeout              string `yaml:"timeout"`
	MaxMessageSize       string `yaml:"maxMessageSize"`
}

// UnmarshalYAML parses the "email" section of a user config. Credentials may
// be absent here since they can also come from the environment, so they're
// checked in CheckAndSetDefaults instead.
func (uc *UserConfig) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var r rawUserConfig
	if err := unmarshal(&r); err != nil {
		return fmt.Errorf("can't parse the email config: %v", err)
	}

	if r.SMTPServerAddress == "" {
		return errors.New("must supply an SMTP server address")
	}

	host, port, err := parseRelayAddress(r.SMTPServerAddress)
	if err != nil {
		return err
	}

	if r.FromAddress == "" {
		return errors.New("must supply a \"from\" address")
	}

	var timeout time.Duration
	if r.Timeout != "" {
		timeout, err = time.ParseDuration(r.Timeout)
		if err != nil {
			return fmt.Errorf("can't parse the SMTP timeout as a duration: %v", err)
		}
	}

	var maxSize int64
	if r.MaxMessageSize != "" {
		b, err := units.ParseBase2Bytes(r.MaxMessageSize)
		if err != nil {
			return fmt.Errorf("can't parse the maximum message size: %v", err)
		}
		maxSize = int64(b)
	}

	*uc = UserConfig{
		SMTPServerHost:       host,
		SMTPServerPort:       port,
		Username:             r.Username,
		Password:             r.Password,
		FromAddress:          r.FromAddress,
		FromName:             r.FromName,
		SkipCertVerification: r.SkipCertVerification,
		Timeout:              timeout,
		MaxMessageSize:       maxSize,
	}
	return nil
}

// parseRelayAddress splits a host:port relay address. Users don't need to
// include a scheme, but if they do it must be smtp://.
func parseRelayAddress(addr string) (string, int, error) {
	var ra string
	// The regexp is constant, so the only possible error can't happen.
	m, _ := regexp.MatchString(`^[a-zA-Z][a-zA-Z0-9+.-]*://`, addr)
	if m {
		ra = addr
	} else {
		ra = smtpScheme + addr
	}

	u, err := url.Parse(ra)
	if err != nil {
		return "", 0, fmt.Errorf("can't parse the SMTP server address: %v", err)
	}

	if u.Scheme+"://" != smtpScheme {
		return "", 0, fmt.Errorf("the SMTP server address must use the %v scheme, not %v", smtpScheme, u.Scheme)
	}

	if u.Hostname() == "" {
		return "", 0, errors.New("the SMTP server address must include a host")
	}

	p, err := strconv.Atoi(u.Port())
	if err != nil {
		return "", 0, fmt.Errorf("the SMTP server address must include a numeric port: %v", err)
	}

	return u.Hostname(), p, nil
}

// CheckAndSetDefaults validates uc and either returns a copy of uc with
// default settings applied or returns an error due to an invalid
// configuration
func (uc *UserConfig) CheckAndSetDefaults() (UserConfig, error) {
	c := *uc

	if c.SMTPServerHost == "" || c.SMTPServerPort <= 0 {
		return UserConfig{}, errors.New("must supply an SMTP server host and port")
	}

	if c.Password == "" || c.Username == "" {
		return UserConfig{}, errors.New("must supply a username and password")
	}

	if c.FromAddress == "" {
		return UserConfig{}, errors.New("must supply a \"from\" address")
	}

	if _, err := mail.ParseAddress(c.FromAddress); err != nil {
		return UserConfig{}, fmt.Errorf("the \"from\" address %q is not a valid address: %v", c.FromAddress, err)
	}

	if c.FromName == "" {
		c.FromName = defaultFromName
	}

	if c.Timeout == 0 {
		c.Timeout = defaultTimeout
	}

	if c.Timeout < 0 {
		return UserConfig{}, errors.New("the SMTP timeout must be positive")
	}

	if c.MaxMessageSize == 0 {
		c.MaxMessageSize = defaultMaxMessageSize
	}

	return c, nil
}
