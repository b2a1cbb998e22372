package bagit

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"sort"
	"strings"
	"sync"
)

// Algorithm is a named checksum algorithm.
type Algorithm struct {
	// Name is the normalized (lowercase) name, as used in manifest file
	// names.
	Name string
	// New returns a fresh digest accumulator.
	New func() hash.Hash
	// Size is the length of a digest in bytes.
	Size int
}

// HexLen is the number of hex characters a digest of this algorithm has.
func (a Algorithm) HexLen() int { return 2 * a.Size }

// Sum streams r through the algorithm and returns the lowercase hex digest.
// The reader is not closed.
func (a Algorithm) Sum(r io.Reader) (string, error) {
	h := a.New()
	_, err := io.Copy(h, r)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// UnresolvableAlgorithmError is returned when a manifest names a checksum
// algorithm nobody registered. It is a configuration problem and not a
// fixity failure.
type UnresolvableAlgorithmError struct {
	Name string
}

func (e *UnresolvableAlgorithmError) Error() string {
	return fmt.Sprintf("no checksum algorithm registered for %q", e.Name)
}

// A Registry maps algorithm names to digest constructors. Names are
// compared case-insensitively and with surrounding white space removed.
// It is safe to use from more than one goroutine.
type Registry struct {
	m    sync.RWMutex
	algs map[string]Algorithm
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{algs: make(map[string]Algorithm)}
}

// NewDefaultRegistry returns a registry holding md5, sha1, sha256, and
// sha512.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register("md5", md5.New)
	r.Register("sha1", sha1.New)
	r.Register("sha256", sha256.New)
	r.Register("sha512", sha512.New)
	return r
}

// Checksums is the registry used by the package level helpers.
var Checksums = NewDefaultRegistry()

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Register adds (or replaces) the algorithm with the given name.
func (r *Registry) Register(name string, factory func() hash.Hash) {
	name = normalizeName(name)
	alg := Algorithm{
		Name: name,
		New:  factory,
		Size: factory().Size(),
	}
	r.m.Lock()
	r.algs[name] = alg
	r.m.Unlock()
}

// Resolve looks up an algorithm. An unregistered name returns an
// *UnresolvableAlgorithmError.
func (r *Registry) Resolve(name string) (Algorithm, error) {
	r.m.RLock()
	alg, ok := r.algs[normalizeName(name)]
	r.m.RUnlock()
	if !ok {
		return Algorithm{}, &UnresolvableAlgorithmError{Name: name}
	}
	return alg, nil
}

// Names lists the registered algorithms in sorted order.
func (r *Registry) Names() []string {
	r.m.RLock()
	result := make([]string, 0, len(r.algs))
	for k := range r.algs {
		result = append(result, k)
	}
	r.m.RUnlock()
	sort.Strings(result)
	return result
}
