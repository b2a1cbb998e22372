package bagit

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Oxum is the Payload-Oxum summary of a bag: total payload bytes and
// number of payload files.
type Oxum struct {
	Bytes int64
	Files int64
}

// ErrMalformedOxum means a Payload-Oxum value is not "<bytes>.<files>".
var ErrMalformedOxum = errors.New("malformed Payload-Oxum")

func (o Oxum) String() string {
	return fmt.Sprintf("%d.%d", o.Bytes, o.Files)
}

// ParseOxum parses a Payload-Oxum tag value.
func ParseOxum(s string) (Oxum, error) {
	parts := strings.Split(strings.TrimSpace(s), ".")
	if len(parts) != 2 {
		return Oxum{}, errors.Wrap(ErrMalformedOxum, s)
	}
	b, err1 := strconv.ParseInt(parts[0], 10, 64)
	n, err2 := strconv.ParseInt(parts[1], 10, 64)
	if err1 != nil || err2 != nil || b < 0 || n < 0 {
		return Oxum{}, errors.Wrap(ErrMalformedOxum, s)
	}
	return Oxum{Bytes: b, Files: n}, nil
}

// ComputeOxum adds up the payload files of a bag.
func ComputeOxum(b Bag, v Version) (Oxum, error) {
	files, err := b.Files()
	if err != nil {
		return Oxum{}, err
	}
	var o Oxum
	for _, f := range files {
		if !v.IsPayload(f) {
			continue
		}
		src, ok := b.Resolve(f)
		if !ok {
			continue
		}
		size, err := src.Size()
		if err != nil {
			return Oxum{}, errors.Wrap(err, f)
		}
		o.Bytes += size
		o.Files++
	}
	return o, nil
}

// QuickVerify compares the declared oxum against the bag's payload. It is a
// cheap sanity check and says nothing about fixity.
func QuickVerify(b Bag, v Version, declared Oxum) (*Result, error) {
	actual, err := ComputeOxum(b, v)
	if err != nil {
		return nil, err
	}
	result := &Result{}
	if actual != declared {
		result.Fail("Payload-Oxum is %s, but payload has %s", declared, actual)
	}
	return result, nil
}
