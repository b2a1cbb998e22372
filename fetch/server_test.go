package fetch

import (
	"bytes"
	"io"
	"log"
	"net/http"
	"sort"
	"sync"

	"github.com/spf13/afero"

	"github.com/ndlib/bagfetch/bagit"
)

// An ErrorServer wraps another http.Handler and injects errors as
// described by a given playbook. A playbook is given by calling
// Reset(). Each call to ServeHTTP on the server increments a count
// starting at 0. A play gives a count to activate, and when the
// server reaches that count it will return the given Status and
// Body. Otherwise, requests are passed on to the wrapped handler.
// This is safe for concurrent use.
type ErrorServer struct {
	h http.Handler

	m        sync.Mutex
	count    int
	playbook []Play
}

type Play struct {
	When   int
	Status int
	Body   string
}

func (s *ErrorServer) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	s.m.Lock()
	count := s.count
	s.count++
	log.Printf("(%d) %s %s\n", count, req.Method, req.URL)
	for len(s.playbook) > 0 && s.playbook[0].When <= count {
		p := s.playbook[0]
		s.playbook = s.playbook[1:]
		if p.When < count {
			continue
		}
		s.m.Unlock()
		w.WriteHeader(p.Status)
		w.Write([]byte(p.Body))
		return
	}
	s.m.Unlock()
	s.h.ServeHTTP(w, req)
}

func (s *ErrorServer) Reset(playbook []Play) {
	s.m.Lock()
	s.count = 0
	s.playbook = append([]Play(nil), playbook...)
	sort.Slice(s.playbook, func(i, j int) bool { return s.playbook[i].When < s.playbook[j].When })
	s.m.Unlock()
}

// memDest is a Destination which keeps everything in memory.
type memDest struct {
	path      string
	buf       bytes.Buffer
	opened    int
	committed bool
	abandoned bool
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }

func (d *memDest) Path() string { return d.path }

func (d *memDest) Create(append bool) (io.WriteCloser, error) {
	d.opened++
	if !append {
		d.buf.Reset()
	}
	return nopCloser{&d.buf}, nil
}

func (d *memDest) Commit() (bagit.FileSource, error) {
	d.committed = true
	fs := afero.NewMemMapFs()
	afero.WriteFile(fs, "/"+d.path, d.buf.Bytes(), 0644)
	return bagit.NewDirFile(fs, d.path, "/"+d.path), nil
}

func (d *memDest) Abandon() error {
	d.abandoned = true
	d.buf.Reset()
	return nil
}
