package e2e

// e2e contains integration tests that go from a YAML config file to messages
// stored by an in-process SMTP relay, along with the utility code required
// to set up those dependencies. Test dependencies also used by unit tests
// live in smtptest instead.
