package main

import (
	"fmt"
	"log"
	"net/url"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"

	"github.com/ndlib/bagfetch/bagit"
	"github.com/ndlib/bagfetch/store"
	"github.com/ndlib/bagfetch/transfer"
)

// A location is somewhere a bag lives. Bags inside zip files are read only
// and have no destinations.
type location struct {
	bag   bagit.Bag
	dest  transfer.DestinationFactory
	close func() error
}

func (l *location) Close() error {
	if l.close == nil {
		return nil
	}
	return l.close()
}

// splitBucketPrefix will take a path and separate the bucket name from a prefix, if any.
// The prefix returned is either empty or ends with a slash "/".
//
// examples:
//
//	"" -> ("", "")
//	"bucket" -> ("bucket", "")
//	"bucket/and/a/prefix" -> ("bucket", "and/a/prefix/")
func splitBucketPrefix(location string) (bucket, prefix string) {
	if location == "" {
		return
	}
	location = strings.TrimPrefix(location, "/")
	v := strings.SplitN(location, "/", 2)
	bucket = v[0]
	if len(v) > 1 {
		prefix = v[1]
	}
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix = prefix + "/"
	}
	return
}

// parselocation opens the bag at loc. A plain path or "file:" URL is a bag
// directory, unless it names a ".zip" file. "s3://bucket/prefix" is a bag
// kept in an S3 bucket, reached using the S3 settings in conf.
func parselocation(loc string, conf *transfer.Config) (*location, error) {
	u, err := url.Parse(loc)
	if err != nil {
		return nil, err
	}
	switch u.Scheme {
	case "":
		return parsepath(loc)
	case "file":
		return parsepath(u.Path)
	case "s3":
		bucket, prefix := splitBucketPrefix(u.Host + u.Path)
		if bucket == "" {
			log.Println("Error parsing location, no bucket name", loc)
			return nil, fmt.Errorf("no bucket name in %s", loc)
		}
		awsconf := conf.AWSConfig()
		if awsconf.Region == nil {
			awsconf.Region = aws.String("us-east-1")
		}
		sess, err := session.NewSession(awsconf)
		if err != nil {
			return nil, err
		}
		dest := &transfer.StoreDestinations{
			Store:  store.NewS3(bucket, "", sess),
			Prefix: prefix,
		}
		return &location{bag: dest.Bag(), dest: dest}, nil
	}
	log.Println("Problem parsing location", loc)
	return nil, fmt.Errorf("unknown location scheme %q", u.Scheme)
}

func parsepath(path string) (*location, error) {
	if !strings.HasSuffix(strings.ToLower(path), ".zip") {
		return &location{
			bag:  bagit.NewDirBag(path),
			dest: transfer.NewFSDestinations(path),
		}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	zb, err := bagit.NewZipBag(f, info.Size())
	if err != nil {
		f.Close()
		return nil, err
	}
	return &location{bag: zb, close: f.Close}, nil
}
