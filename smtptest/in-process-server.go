package smtptest

import (
	"crypto/tls"
	"errors"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/docker/go-units"
	"github.com/emersion/go-smtp"
)

// doubtful we'll get an email this big, but we need a limit
const maxEmailSize int64 = 100 * units.MiB

// messageData includes the envelope, body content and created timestamp for
// an email message, allowing us to inspect message bodies before/after a
// timestamp for correctness.
type messageData struct {
	created time.Time
	from    string
	to      []string
	body    string
}

// Backend implements smtp.Backend. It's a thin authentication wrapper
// for an InMemoryEmailStore.
type Backend struct {
	*InMemoryEmailStore
	// If set, only this username/password pair may log in. Otherwise any
	// non-empty pair is fine, since we don't want to couple this with
	// specific test configurations.
	username string
	password string
}

// Login implements smtp.Backend.
func (be *Backend) Login(_ *smtp.ConnectionState, username string, password string) (smtp.Session, error) {
	if username == "" || password == "" {
		return nil, errors.New("no username or password provided")
	}
	if be.username != "" && (username != be.username || password != be.password) {
		return nil, &smtp.SMTPError{
			Code:         535,
			EnhancedCode: smtp.EnhancedCode{5, 7, 8},
			Message:      "Authentication credentials invalid",
		}
	}
	return &session{store: be.InMemoryEmailStore}, nil
}

// AnonymousLogin implements smtp.Backend. Not supported since we want to
// enforce AUTH.
func (be *Backend) AnonymousLogin(_ *smtp.ConnectionState) (smtp.Session, error) {
	return nil, smtp.ErrAuthUnsupported
}

// session implements smtp.Session for one authenticated connection, so
// concurrent clients don't see each other's envelopes.
type session struct {
	store *InMemoryEmailStore
	from  string
	to    []string
}

// Reset implements smtp.Session.
func (s *session) Reset() {
	s.from = ""
	s.to = nil
}

// Logout implements smtp.Session. No-op here.
func (s *session) Logout() error { return nil }

// Mail implements smtp.Session.
func (s *session) Mail(from string, _ smtp.MailOptions) error {
	s.from = from
	return nil
}

// Rcpt implements smtp.Session.
func (s *session) Rcpt(to string) error {
	s.to = append(s.to, to)
	return nil
}

// Data implements smtp.Session. Stores the email data in memory for
// retrieval at the end of the test.
func (s *session) Data(r io.Reader) error {
	buf, err := io.ReadAll(io.LimitReader(r, maxEmailSize))
	if err != nil {
		return err
	}

	str := &strings.Builder{}
	if _, err := str.Write(buf); err != nil {
		return err
	}
	s.store.saveEmail(messageData{
		from: s.from,
		to:   append([]string(nil), s.to...),
		body: str.String(),
	})
	return nil
}

// InMemoryEmailStore retains email bodies in memory for comparison against
// a test's expected output. Designed to be goroutine safe since we don't know
// how many goroutines will be hitting the server at once.
type InMemoryEmailStore struct {
	mu       *sync.Mutex
	messages []messageData
}

// saveEmail stores the message along with a timestamp created just prior to
// saving
func (es *InMemoryEmailStore) saveEmail(m messageData) {
	es.mu.Lock()
	defer es.mu.Unlock()

	m.created = time.Now()
	es.messages = append(es.messages, m)
}

// RetrieveEmails returns a slice of all message bodies (as strings)
// sent after epoch nanoseconds t
func (es *InMemoryEmailStore) RetrieveEmails(t int64) ([]string, error) {
	es.mu.Lock()
	defer es.mu.Unlock()

	r := make([]string, 0, len(es.messages))
	for _, m := range es.messages {
		if m.created.UnixNano() >= t {
			r = append(r, m.body)
		}
	}
	return r, nil
}

// Recipients returns the envelope recipients (RCPT TO) of every stored
// message, in the order the messages arrived.
func (es *InMemoryEmailStore) Recipients() [][]string {
	es.mu.Lock()
	defer es.mu.Unlock()

	r := make([][]string, 0, len(es.messages))
	for _, m := range es.messages {
		r = append(r, m.to)
	}
	return r
}

// InProcessServer is an SMTP server that runs in the same process as the
// test suite, letting us inspect sent emails. It offers STARTTLS and refuses
// AUTH before the connection is upgraded. You must initialize this via
// NewInProcessServer.
type InProcessServer struct {
	*smtp.Server
	*InMemoryEmailStore
	listener net.Listener
}

// Option changes how NewInProcessServer configures the server.
type Option func(*smtp.Server, *Backend)

// WithCredentials makes the server reject every login except
// username/password.
func WithCredentials(username, password string) Option {
	return func(_ *smtp.Server, be *Backend) {
		be.username = username
		be.password = password
	}
}

// WithoutSTARTTLS makes the server behave like a relay that can't upgrade
// connections.
func WithoutSTARTTLS() Option {
	return func(s *smtp.Server, _ *Backend) {
		s.TLSConfig = nil
	}
}

// NewInProcessServer creates an InProcessServer listening on a free port of
// 127.0.0.1, including configuring its SMTP server to store incoming
// messages in memory. Must provide the paths to the key and cert used for
// TLS. The cert must be a root cert. Call Start to begin serving.
func NewInProcessServer(keypath string, certpath string, opts ...Option) *InProcessServer {
	is := &InMemoryEmailStore{
		mu:       &sync.Mutex{},
		messages: []messageData{},
	}

	be := &Backend{InMemoryEmailStore: is}
	srv := smtp.NewServer(be)

	srv.Domain = "localhost"
	srv.AllowInsecureAuth = false // AUTH only after STARTTLS
	srv.AuthDisabled = false      // need AUTH here
	// Strict is undocumented, but it looks like it enforces <address> syntax
	// in messages:
	// https://github.com/emersion/go-smtp/blob/f92bf7f1a25777bcdaa28a142b1cd1a54b74c8f4/conn.go#L321-L325
	srv.Strict = true
	srv.MaxMessageBytes = int(maxEmailSize)
	srv.ReadTimeout = 10 * time.Second
	srv.WriteTimeout = 10 * time.Second

	cert, err := tls.LoadX509KeyPair(certpath, keypath)

	// No way to carry on without a cert, so we panic. We're in a test
	// suite, so this should be fine.
	if err != nil {
		panic(err)
	}

	srv.TLSConfig = &tls.Config{
		Certificates: []tls.Certificate{cert},
	}

	for _, o := range opts {
		o(srv, be)
	}

	// Listening here rather than in Start means Address is usable as soon
	// as we return, without racing the serving goroutine.
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		panic(err)
	}
	srv.Addr = l.Addr().String()

	return &InProcessServer{
		Server:             srv,
		InMemoryEmailStore: is,
		listener:           l,
	}
}

// Start starts the test server. Blocking.
func (is *InProcessServer) Start() error {
	// Not using ListenAndServeTLS--the client should upgrade the connection
	// to TLS
	return is.Server.Serve(is.listener)
}

// Close shuts down the test server daemon. You must initialize a new
// InProcessServer instead of restarting this one.
func (is *InProcessServer) Close() {
	is.Server.Close()
	// In case Close wins the race with Start and the server never saw the
	// listener.
	is.listener.Close()
}

// Address returns the host:port of the test SMTP server.
func (is *InProcessServer) Address() string {
	return is.listener.Addr().String()
}

// Host returns the host the server listens on.
func (is *InProcessServer) Host() string {
	h, _, _ := net.SplitHostPort(is.Address())
	return h
}

// Port returns the port the server listens on.
func (is *InProcessServer) Port() int {
	return is.listener.Addr().(*net.TCPAddr).Port
}
