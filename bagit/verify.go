package bagit

import (
	"log"
	"strings"

	"github.com/pkg/errors"
)

// Verify checks every entry of the manifest against the sources found by
// resolver. It never stops at the first problem: every missing or
// mismatched file is recorded in the result. Missing and bad files are not
// errors; an error is only returned for a manifest with no usable
// algorithm.
func Verify(m *Manifest, resolver Resolver) (*Result, error) {
	if m.Algorithm.New == nil {
		return nil, &UnresolvableAlgorithmError{Name: m.Algorithm.Name}
	}
	result := &Result{}
	for _, p := range m.Duplicates {
		result.Warn("%s manifest lists %s more than once", m.Algorithm.Name, p)
	}
	for _, e := range m.entries {
		verifyEntry(result, m.Algorithm, e, resolver)
	}
	return result, nil
}

func verifyEntry(result *Result, alg Algorithm, e Entry, resolver Resolver) {
	src, ok := resolver.Resolve(e.Path)
	if !ok || !src.Exists() {
		result.AddMissing(e.Path)
		return
	}
	rc, err := src.Open()
	if err != nil {
		log.Println("verify:", e.Path, err)
		result.AddMissing(e.Path)
		return
	}
	computed, err := alg.Sum(rc)
	rc.Close()
	if err != nil {
		log.Println("verify:", e.Path, err)
		result.AddMissing(e.Path)
		return
	}
	if !strings.EqualFold(computed, e.Digest) {
		result.AddInvalid(e.Path, alg.Name, e.Digest, computed)
	}
}

// VerifyAll verifies each manifest and merges the results. The bag is only
// valid if every manifest succeeds.
func VerifyAll(manifests []*Manifest, resolver Resolver) (*Result, error) {
	var results []*Result
	for _, m := range manifests {
		r, err := Verify(m, resolver)
		if err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return Merge(results...), nil
}

// LoadManifests finds and parses every manifest and tag manifest at the top
// level of the bag. A manifest whose algorithm is not in reg produces an
// *UnresolvableAlgorithmError.
func LoadManifests(b Bag, reg *Registry, v Version) ([]*Manifest, error) {
	files, err := b.Files()
	if err != nil {
		return nil, err
	}
	var result []*Manifest
	for _, name := range files {
		if _, _, ok := v.ParseManifestName(name); !ok {
			continue
		}
		src, ok := b.Resolve(name)
		if !ok {
			continue
		}
		rc, err := src.Open()
		if err != nil {
			return nil, errors.Wrap(err, name)
		}
		m, err := LoadManifest(name, rc, reg, v)
		rc.Close()
		if err != nil {
			return nil, err
		}
		result = append(result, m)
	}
	return result, nil
}

// CheckCompleteness reports payload files which are present but are not
// listed in any payload manifest, and fails if there is no payload
// manifest at all.
func CheckCompleteness(manifests []*Manifest, payload []string) *Result {
	result := &Result{}
	var npayload int
	listed := make(map[string]bool)
	for _, m := range manifests {
		if m.Scope != Payload {
			continue
		}
		npayload++
		for _, e := range m.entries {
			listed[e.Path] = true
		}
	}
	if npayload == 0 {
		result.Fail("bag has no payload manifest")
	}
	for _, p := range payload {
		if !listed[p] {
			result.Fail("payload file %s is not in any manifest", p)
		}
	}
	return result
}

// Verifier verifies whole bags.
type Verifier struct {
	Registry *Registry
	Version  Version
	// Fetched, if not nil, is asked for files before the bag itself. This
	// is how files retrieved for a holey bag are included.
	Fetched Resolver
}

// NewVerifier returns a verifier using the default registry and version.
func NewVerifier() *Verifier {
	return &Verifier{
		Registry: Checksums,
		Version:  MustVersion(DefaultVersion),
	}
}

// VerifyBag loads every manifest in the bag, checks completeness of the
// payload, and verifies all the checksums. Tag manifests are verified too.
func (v *Verifier) VerifyBag(b Bag) (*Result, error) {
	manifests, err := LoadManifests(b, v.Registry, v.Version)
	if err != nil {
		return nil, err
	}
	files, err := b.Files()
	if err != nil {
		return nil, err
	}
	var payload []string
	for _, f := range files {
		if v.Version.IsPayload(f) {
			payload = append(payload, f)
		}
	}
	var resolver Resolver = NormalizingResolver{Resolver: b}
	if v.Fetched != nil {
		resolver = Chain{v.Fetched, resolver}
	}
	fixity, err := VerifyAll(manifests, resolver)
	if err != nil {
		return nil, err
	}
	return Merge(fixity, CheckCompleteness(manifests, payload)), nil
}
