// Package fetch retrieves the payload files a holey bag lists in its fetch
// file. A Registry maps URL schemes to Protocols, each Protocol makes
// Fetchers, and a Fetcher streams one remote file into a Destination.
//
// Fetchers do not decide what happens on failure. They report the error and
// the caller, usually a transfer.Coordinator, decides whether to retry.
package fetch

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/url"
	"sort"
	"strings"
	"sync"

	raven "github.com/getsentry/raven-go"
	"github.com/pkg/errors"

	"github.com/ndlib/bagfetch/bagit"
)

// A Destination is where the bytes of one fetched file are written. Nothing
// is visible to readers of the bag until Commit is called. Abandon throws
// away whatever was written, and may be called more than once.
type Destination interface {
	// Path is the bag-relative path of the file being fetched.
	Path() string

	// Create opens the destination for writing. If append is false any
	// previous content is discarded.
	Create(append bool) (io.WriteCloser, error)

	// Commit makes the written file part of the bag and returns a source
	// for reading it back.
	Commit() (bagit.FileSource, error)

	Abandon() error
}

// Addressable is implemented by destinations which are a plain file on the
// local file system. A protocol may use LocalPath to place the file directly
// instead of streaming it. LocalPath returns "" if that is not possible.
type Addressable interface {
	Destination
	LocalPath() string
}

// A Fetcher transfers a single remote file. Fetch may be called again after
// a failure, and each call starts over from the beginning of the file.
type Fetcher interface {
	Fetch(ctx context.Context, dst Destination, c *Copier) (int64, error)
}

// A Protocol makes Fetchers for the URLs of one scheme.
type Protocol interface {
	NewFetcher(u *url.URL, size int64, creds CredentialsProvider) (Fetcher, error)
}

// ProtocolFunc adapts a function to the Protocol interface.
type ProtocolFunc func(u *url.URL, size int64, creds CredentialsProvider) (Fetcher, error)

// NewFetcher calls f.
func (f ProtocolFunc) NewFetcher(u *url.URL, size int64, creds CredentialsProvider) (Fetcher, error) {
	return f(u, size, creds)
}

// UnsupportedSchemeError means no protocol is registered for a URL scheme.
type UnsupportedSchemeError struct {
	Scheme string
}

func (e *UnsupportedSchemeError) Error() string {
	return fmt.Sprintf("unsupported fetch protocol %q", e.Scheme)
}

// StatusError is returned when a remote server answers with something
// other than the file.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fetching %s: status %d", e.URL, e.StatusCode)
}

// ErrBadURL means a URL is missing a part its protocol needs.
var ErrBadURL = errors.New("malformed fetch url")

// Registry maps URL schemes to protocols. It is safe to use from more than
// one goroutine.
type Registry struct {
	// Credentials are handed to every protocol. May be nil.
	Credentials CredentialsProvider

	m         sync.RWMutex
	protocols map[string]Protocol
}

// NewRegistry returns a registry with no protocols in it.
func NewRegistry(creds CredentialsProvider) *Registry {
	return &Registry{
		Credentials: creds,
		protocols:   make(map[string]Protocol),
	}
}

// Register adds p as the handler for scheme, replacing any previous one.
// Schemes are compared without regard to case.
func (r *Registry) Register(scheme string, p Protocol) {
	r.m.Lock()
	defer r.m.Unlock()
	if r.protocols == nil {
		r.protocols = make(map[string]Protocol)
	}
	r.protocols[strings.ToLower(scheme)] = p
}

// Schemes returns the registered schemes, sorted.
func (r *Registry) Schemes() []string {
	r.m.RLock()
	defer r.m.RUnlock()
	var result []string
	for k := range r.protocols {
		result = append(result, k)
	}
	sort.Strings(result)
	return result
}

// NewFetcher makes a fetcher for rawurl. An *UnsupportedSchemeError is
// returned if nothing handles the URL's scheme.
func (r *Registry) NewFetcher(rawurl string, size int64) (Fetcher, error) {
	u, err := url.Parse(rawurl)
	if err != nil {
		return nil, errors.Wrap(ErrBadURL, err.Error())
	}
	scheme := strings.ToLower(u.Scheme)
	r.m.RLock()
	p, ok := r.protocols[scheme]
	r.m.RUnlock()
	if !ok {
		return nil, &UnsupportedSchemeError{Scheme: scheme}
	}
	creds := r.Credentials
	if creds == nil {
		creds = StaticCredentials(nil)
	}
	f, err := p.NewFetcher(u, size, creds)
	if err != nil {
		log.Println("fetch:", rawurl, err)
		raven.CaptureError(err, map[string]string{"Scheme": scheme, "URL": rawurl})
	}
	return f, err
}

// Credentials are a user name and secret. For S3 these are the access key
// id and the secret access key.
type Credentials struct {
	Username string
	Password string
}

// A CredentialsProvider returns the credentials to use for a URL, if any.
type CredentialsProvider interface {
	Credentials(u *url.URL) (Credentials, bool)
}

// StaticCredentials holds credentials by host name.
type StaticCredentials map[string]Credentials

// Credentials implements CredentialsProvider.
func (s StaticCredentials) Credentials(u *url.URL) (Credentials, bool) {
	c, ok := s[strings.ToLower(u.Hostname())]
	return c, ok
}
