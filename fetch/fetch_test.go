package fetch

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"hash"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ndlib/bagfetch/bagit"
	"github.com/ndlib/bagfetch/util"
)

func TestRegistry(t *testing.T) {
	r := NewRegistry(nil)
	r.Register("HTTP", &HTTP{})

	f, err := r.NewFetcher("Http://example.com/a", 5)
	require.NoError(t, err)
	assert.NotNil(t, f)

	_, err = r.NewFetcher("gopher://example.com/a", 5)
	var unsupported *UnsupportedSchemeError
	require.True(t, errors.As(err, &unsupported))
	assert.Equal(t, "gopher", unsupported.Scheme)

	assert.Equal(t, []string{"file", "http", "https", "s3"}, NewDefaultRegistry(nil).Schemes())
}

func TestStaticCredentials(t *testing.T) {
	creds := StaticCredentials{"example.com": {Username: "u", Password: "p"}}
	u, _ := url.Parse("https://Example.COM:8443/x")
	c, ok := creds.Credentials(u)
	assert.True(t, ok)
	assert.Equal(t, "u", c.Username)

	u, _ = url.Parse("https://other.com/x")
	_, ok = creds.Credentials(u)
	assert.False(t, ok)
}

func TestCopierProgress(t *testing.T) {
	var counts []int64
	c := &Copier{
		Action:     "fetch",
		Target:     "data/x",
		Total:      25,
		BufferSize: 10,
		Progress: func(action, target string, count, total int64) {
			assert.Equal(t, "fetch", action)
			assert.Equal(t, "data/x", target)
			assert.Equal(t, int64(25), total)
			counts = append(counts, count)
		},
	}
	var out bytes.Buffer
	n, err := c.Copy(context.Background(), &out, strings.NewReader(strings.Repeat("x", 25)))
	require.NoError(t, err)
	assert.Equal(t, int64(25), n)
	assert.Equal(t, []int64{10, 20, 25}, counts)
}

func TestCopierCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c := &Copier{
		BufferSize: 10,
		Progress: func(action, target string, count, total int64) {
			if count >= 30 {
				cancel()
			}
		},
	}
	var out bytes.Buffer
	n, err := c.Copy(ctx, &out, strings.NewReader(strings.Repeat("x", 100)))
	assert.Equal(t, context.Canceled, err)
	assert.Equal(t, int64(30), n)

	// an already cancelled context copies nothing
	n, err = c.Copy(ctx, &out, strings.NewReader("more"))
	assert.Equal(t, context.Canceled, err)
	assert.Equal(t, int64(0), n)
}

func TestCopierHashAndLimit(t *testing.T) {
	rc := util.NewRateCounter(1 << 20)
	defer rc.Stop()
	hw := util.NewHashWriter(nil, map[string]hash.Hash{"md5": md5.New()})
	c := &Copier{Limit: rc, Hash: hw}
	var out bytes.Buffer
	_, err := c.Copy(context.Background(), &out, strings.NewReader("hello"))
	require.NoError(t, err)
	assert.Equal(t, "hello", out.String())
	assert.Equal(t, "5d41402abc4b2a76b9719d911017c592", hex.EncodeToString(hw.Sum("md5")))
}

func TestFileFetch(t *testing.T) {
	fs := afero.NewMemMapFs()
	afero.WriteFile(fs, "/remote/a b.txt", []byte("hello"), 0644)
	p := &File{Fs: fs}

	u, _ := url.Parse("file:///remote/a%20b.txt")
	f, err := p.NewFetcher(u, 5, StaticCredentials(nil))
	require.NoError(t, err)
	dst := &memDest{path: "data/a b.txt"}
	n, err := f.Fetch(context.Background(), dst, &Copier{})
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)
	assert.Equal(t, "hello", dst.buf.String())

	u, _ = url.Parse("file:///remote/missing")
	f, _ = p.NewFetcher(u, 5, StaticCredentials(nil))
	_, err = f.Fetch(context.Background(), &memDest{path: "data/missing"}, &Copier{})
	assert.Error(t, err)

	u, _ = url.Parse("file://otherhost/remote/a")
	_, err = p.NewFetcher(u, 5, StaticCredentials(nil))
	assert.Error(t, err)
}

// osDest is an Addressable destination on the OS file system.
type osDest struct {
	memDest
	name string
}

func (d *osDest) LocalPath() string { return d.name }

func (d *osDest) Create(append bool) (io.WriteCloser, error) {
	return os.Create(d.name)
}

func TestFileLink(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "source")
	require.NoError(t, os.WriteFile(src, []byte("hello"), 0644))

	var reported int64
	c := &Copier{Progress: func(action, target string, count, total int64) { reported = count }}
	f, err := (&File{}).NewFetcher(&url.URL{Scheme: "file", Path: src}, 5, StaticCredentials(nil))
	require.NoError(t, err)
	dst := &osDest{name: filepath.Join(dir, "scratch")}
	n, err := f.Fetch(context.Background(), dst, c)
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)
	assert.Equal(t, int64(5), reported)
	data, err := os.ReadFile(dst.name)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
}

func TestHTTPFetch(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "alice" || pass != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		assert.Equal(t, "bagfetch-test", r.Header.Get("User-Agent"))
		if r.URL.Path != "/bag/data/a b.txt" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write([]byte("hello"))
	})
	es := &ErrorServer{h: handler}
	server := httptest.NewServer(es)
	defer server.Close()
	host, _ := url.Parse(server.URL)

	r := NewRegistry(StaticCredentials{host.Hostname(): {Username: "alice", Password: "secret"}})
	r.Register("http", &HTTP{UserAgent: "bagfetch-test"})

	es.Reset([]Play{{When: 0, Status: 500, Body: "oops"}})
	f, err := r.NewFetcher(server.URL+"/bag/data/a%20b.txt", 5)
	require.NoError(t, err)

	dst := &memDest{path: "data/a b.txt"}
	_, err = f.Fetch(context.Background(), dst, &Copier{})
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, 500, se.StatusCode)

	// a fetcher may be used again after a failure
	n, err := f.Fetch(context.Background(), dst, &Copier{})
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)
	assert.Equal(t, "hello", dst.buf.String())

	f, _ = r.NewFetcher(server.URL+"/bag/data/nothere", 5)
	_, err = f.Fetch(context.Background(), dst, &Copier{})
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusNotFound, se.StatusCode)
}

func TestHTTPCancel(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(bytes.Repeat([]byte("x"), 1<<16))
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c := &Copier{
		BufferSize: 1024,
		Progress:   func(action, target string, count, total int64) { cancel() },
	}
	f, err := (&HTTP{}).NewFetcher(mustParse(server.URL+"/x"), bagit.UnknownSize, StaticCredentials(nil))
	require.NoError(t, err)
	n, err := f.Fetch(ctx, &memDest{path: "data/x"}, c)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.True(t, n < 1<<16)
}

func TestS3Fetch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == "GET" && r.URL.Path == "/bucket/bags/data/x.txt" {
			w.Header().Set("Content-Length", "5")
			w.Write([]byte("hello"))
			return
		}
		w.Header().Set("Content-Type", "application/xml")
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?><Error><Code>NoSuchKey</Code><Message>The specified key does not exist.</Message></Error>`))
	}))
	defer server.Close()

	r := NewRegistry(StaticCredentials{"bucket": {Username: "AKID", Password: "SECRET"}})
	r.Register("s3", &S3{Config: &aws.Config{
		Endpoint:         aws.String(server.URL),
		Region:           aws.String("us-east-1"),
		DisableSSL:       aws.Bool(true),
		S3ForcePathStyle: aws.Bool(true),
		MaxRetries:       aws.Int(0),
	}})

	f, err := r.NewFetcher("s3://bucket/bags/data/x.txt", 5)
	require.NoError(t, err)
	dst := &memDest{path: "data/x.txt"}
	n, err := f.Fetch(context.Background(), dst, &Copier{})
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)
	assert.Equal(t, "hello", dst.buf.String())

	f, err = r.NewFetcher("s3://bucket/bags/data/nothere", 5)
	require.NoError(t, err)
	_, err = f.Fetch(context.Background(), dst, &Copier{})
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusNotFound, se.StatusCode)

	_, err = r.NewFetcher("s3://bucket", 5)
	assert.Error(t, err)
}

func mustParse(s string) *url.URL {
	u, err := url.Parse(s)
	if err != nil {
		panic(err)
	}
	return u
}
