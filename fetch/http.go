package fetch

import (
	"context"
	"net/http"
	"net/url"
	"time"
)

// HTTP is the protocol for "http:" and "https:" URLs. Credentials, if the
// provider has any for the host, are sent using basic authentication.
type HTTP struct {
	Client    *http.Client // a client with a long timeout if nil
	UserAgent string
}

// defaultClient has a timeout so a server which never closes the connection
// does not hang a transfer forever.
var defaultClient = &http.Client{
	Timeout: 60 * time.Minute, // arbitrary
}

// NewFetcher implements Protocol.
func (p *HTTP) NewFetcher(u *url.URL, size int64, creds CredentialsProvider) (Fetcher, error) {
	if u.Host == "" {
		return nil, ErrBadURL
	}
	f := &httpFetcher{
		client:    p.Client,
		url:       u.String(),
		userAgent: p.UserAgent,
	}
	if f.client == nil {
		f.client = defaultClient
	}
	if c, ok := creds.Credentials(u); ok {
		f.creds = &c
	}
	return f, nil
}

type httpFetcher struct {
	client    *http.Client
	url       string
	userAgent string
	creds     *Credentials
}

func (f *httpFetcher) Fetch(ctx context.Context, dst Destination, c *Copier) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", f.url, nil)
	if err != nil {
		return 0, err
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}
	if f.creds != nil {
		req.SetBasicAuth(f.creds.Username, f.creds.Password)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, &StatusError{URL: f.url, StatusCode: resp.StatusCode}
	}
	w, err := dst.Create(false)
	if err != nil {
		return 0, err
	}
	n, err := c.Copy(ctx, w, resp.Body)
	if err2 := w.Close(); err == nil {
		err = err2
	}
	return n, err
}
