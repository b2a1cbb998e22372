// Package bagit implements enough of the BagIt specification to decide
// whether a bag is complete and correct. It parses manifests and fetch
// files, resolves checksum algorithms through an extensible registry, and
// verifies the declared fixity of every file against whatever FileSource
// the caller hands it.
//
// Bags are never read directly from the file system. A bag is anything that
// can resolve a bag-relative path to a FileSource, so the same verifier works
// on a directory (DirBag), a zip file (ZipBag), a store (StoreBag), or the
// files produced by the transfer package when a holey bag is filled in.
//
// Tag file schemas (bag-info.txt fields) and archive writing are not
// implemented.
//
// The BagIt spec can be found at https://tools.ietf.org/html/rfc8493.
package bagit

import (
	"errors"
	"strings"
)

// Scope says whether a manifest covers payload files or tag files.
type Scope int

const (
	// Payload manifests list files under the data directory.
	Payload Scope = iota
	// Tag manifests list files outside the data directory.
	Tag
)

func (s Scope) String() string {
	if s == Tag {
		return "tag"
	}
	return "payload"
}

// Version holds the constants which change between releases of the BagIt
// specification. Pass the Version around instead of switching on the
// version string.
type Version struct {
	Tag               string // e.g. "0.97"
	BagItFile         string // the bag declaration
	BagInfoFile       string // the metadata tag file
	FetchFile         string
	ManifestPrefix    string
	TagManifestPrefix string
	ManifestSuffix    string
	DataDir           string
	Encoding          string
}

// DataDir is the name of the payload directory. It is the same in every
// version we know about.
const DataDir = "data"

var versions = map[string]Version{
	"0.95": {
		Tag:               "0.95",
		BagItFile:         "bagit.txt",
		BagInfoFile:       "package-info.txt",
		FetchFile:         "fetch.txt",
		ManifestPrefix:    "manifest-",
		TagManifestPrefix: "tagmanifest-",
		ManifestSuffix:    ".txt",
		DataDir:           DataDir,
		Encoding:          "UTF-8",
	},
	"0.96": {
		Tag:               "0.96",
		BagItFile:         "bagit.txt",
		BagInfoFile:       "bag-info.txt",
		FetchFile:         "fetch.txt",
		ManifestPrefix:    "manifest-",
		TagManifestPrefix: "tagmanifest-",
		ManifestSuffix:    ".txt",
		DataDir:           DataDir,
		Encoding:          "UTF-8",
	},
	"0.97": {
		Tag:               "0.97",
		BagItFile:         "bagit.txt",
		BagInfoFile:       "bag-info.txt",
		FetchFile:         "fetch.txt",
		ManifestPrefix:    "manifest-",
		TagManifestPrefix: "tagmanifest-",
		ManifestSuffix:    ".txt",
		DataDir:           DataDir,
		Encoding:          "UTF-8",
	},
	"1.0": {
		Tag:               "1.0",
		BagItFile:         "bagit.txt",
		BagInfoFile:       "bag-info.txt",
		FetchFile:         "fetch.txt",
		ManifestPrefix:    "manifest-",
		TagManifestPrefix: "tagmanifest-",
		ManifestSuffix:    ".txt",
		DataDir:           DataDir,
		Encoding:          "UTF-8",
	},
}

// DefaultVersion is the version used when a bag does not say.
const DefaultVersion = "0.97"

// ErrUnknownVersion means LookupVersion was given a version we have no
// constants for.
var ErrUnknownVersion = errors.New("unknown BagIt version")

// LookupVersion returns the constants for the given version tag.
func LookupVersion(tag string) (Version, error) {
	v, ok := versions[strings.TrimSpace(tag)]
	if !ok {
		return Version{}, ErrUnknownVersion
	}
	return v, nil
}

// MustVersion is like LookupVersion but panics on an unknown tag. It is
// meant for package level variables.
func MustVersion(tag string) Version {
	v, err := LookupVersion(tag)
	if err != nil {
		panic(err.Error() + ": " + tag)
	}
	return v
}

// ManifestName returns the file name of the manifest for the given scope
// and algorithm, e.g. "manifest-md5.txt".
func (v Version) ManifestName(scope Scope, algorithm string) string {
	prefix := v.ManifestPrefix
	if scope == Tag {
		prefix = v.TagManifestPrefix
	}
	return prefix + normalizeName(algorithm) + v.ManifestSuffix
}

// ParseManifestName decides whether name is a manifest file, and if so
// returns its scope and the algorithm token embedded in it. The token is
// lowercased. Names inside subdirectories are never manifests.
func (v Version) ParseManifestName(name string) (Scope, string, bool) {
	if strings.Contains(name, "/") {
		return Payload, "", false
	}
	lower := strings.ToLower(name)
	if !strings.HasSuffix(lower, v.ManifestSuffix) {
		return Payload, "", false
	}
	lower = strings.TrimSuffix(lower, v.ManifestSuffix)
	// check the tag prefix first since "manifest-" is a suffix of it
	switch {
	case strings.HasPrefix(lower, v.TagManifestPrefix):
		alg := strings.TrimPrefix(lower, v.TagManifestPrefix)
		return Tag, alg, alg != ""
	case strings.HasPrefix(lower, v.ManifestPrefix):
		alg := strings.TrimPrefix(lower, v.ManifestPrefix)
		return Payload, alg, alg != ""
	}
	return Payload, "", false
}

// IsPayload returns true if the bag-relative path is inside the data
// directory.
func (v Version) IsPayload(name string) bool {
	return strings.HasPrefix(name, v.DataDir+"/")
}
