package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"

	"github.com/ptgott/codevo-mail/email"
	"github.com/ptgott/codevo-mail/html"
	"github.com/ptgott/codevo-mail/notify"
	"github.com/ptgott/codevo-mail/userconfig"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	// Log with filename and line number. This writes to stderr, so it should
	// be thread safe.
	// https://github.com/rs/zerolog/blob/7ccd4c940bf8a02fcc5f10e5475f9d3daff04d57/log/log.go#L13
	log.Logger = log.With().Caller().Logger()

	configPath := flag.String(
		"config",
		"./config.yaml",
		"path to a JSON or YAML file containing your configuration",
	)
	envPath := flag.String(
		"env",
		"./.env",
		"path to an optional .env file with SMTP credentials",
	)
	kind := flag.String(
		"kind",
		"verification",
		`email to send: "verification", "reset", or "reset-link"`,
	)
	to := flag.String("to", "", "recipient email address")
	name := flag.String("name", "", "recipient name")
	link := flag.String("url", "", "verification or reset URL for the templated emails")
	token := flag.String("token", "", "password reset token for -kind reset-link")
	expires := flag.Int64("expires", 10, "minutes until the reset token expires, for -kind reset")
	noEmail := flag.Bool(
		"noemail",
		false,
		"print email body HTML to stdout instead of sending it",
	)
	level := flag.String(
		"level",
		"info",
		`log level: "info", "debug", or "warn"`,
	)
	flag.Parse()

	switch *level {
	case "debug":
		log.Logger = log.Logger.Level(zerolog.DebugLevel)
	case "warn":
		log.Logger = log.Logger.Level(zerolog.WarnLevel)
	default:
		log.Logger = log.Logger.Level(zerolog.InfoLevel)
	}

	// Stop waiting on the relay if we're interrupted.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	log.Info().
		Str("configPath", *configPath).
		Msg("starting the application")

	if err := userconfig.LoadDotEnv(*envPath); err != nil {
		log.Error().Err(err).Msg("Problem loading your env file")
		os.Exit(1)
	}

	f, err := os.Open(*configPath)

	if err != nil {
		log.Error().
			Str("config-path", *configPath).
			Err(err).
			Msg("We can't open the application config file")
		os.Exit(1)
	}

	config, err := userconfig.Parse(f)
	f.Close()

	if err != nil {
		log.Error().
			Err(err).
			Msg("Problem parsing your config")
		os.Exit(1)
	}
	config.ApplyEnv(os.LookupEnv)

	checkedConfig, err := config.CheckAndSetDefaults()
	if err != nil {
		log.Error().
			Err(err).
			Msg("Problem validating your config")
		os.Exit(1)
	}

	log.Info().Str("configPath", *configPath).Msg("successfully validated the config")

	if *to == "" {
		log.Error().Msg("must supply a recipient with -to")
		os.Exit(1)
	}

	var s notify.Sender = email.NewDispatcher(checkedConfig.EmailSettings)
	if *noEmail {
		s = &stdoutSender{host: checkedConfig.EmailSettings.SMTPServerHost}
	}

	m := notify.NewMailer(
		s,
		html.NewDirRenderer(checkedConfig.Templates.Dir),
		checkedConfig.Links,
	)
	u := notify.User{Name: *name, Email: *to}

	switch *kind {
	case "verification":
		err = m.SendVerificationCode(ctx, u, *link)
	case "reset":
		err = m.SendPasswordResetToken(ctx, u, *link, *expires)
	case "reset-link":
		err = m.SendPasswordResetLink(ctx, *to, *token)
	default:
		err = fmt.Errorf("unknown kind of email %q", *kind)
	}

	if err != nil {
		log.Error().
			Err(err).
			Str("kind", email.KindOf(err).String()).
			Bool("temporary", email.Temporary(err)).
			Msg("could not send the email")
		os.Exit(1)
	}
}

// stdoutSender prints bodies instead of sending them, to help test
// templates and configuration.
type stdoutSender struct {
	host string
}

func (s *stdoutSender) Send(_ context.Context, env email.Envelope) error {
	fmt.Fprintf(os.Stdout, "To: %v\nSubject: %v\n\n%v\n", env.To(), env.Subject, env.HTMLBody)
	return nil
}

func (s *stdoutSender) Host() string {
	return s.host
}
