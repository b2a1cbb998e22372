package fetch

import (
	"context"
	"log"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	raven "github.com/getsentry/raven-go"
	"github.com/pkg/errors"
)

// S3 is the protocol for "s3://bucket/key" URLs. Credentials are looked up
// by bucket name. If there are none the usual AWS credential chain is used.
type S3 struct {
	// Config is copied for each fetcher. It is where to put an endpoint
	// for an S3 compatible service. May be nil.
	Config *aws.Config
}

// NewFetcher implements Protocol.
func (p *S3) NewFetcher(u *url.URL, size int64, creds CredentialsProvider) (Fetcher, error) {
	bucket := u.Host
	key := strings.TrimPrefix(u.Path, "/")
	if bucket == "" || key == "" {
		return nil, errors.Wrapf(ErrBadURL, "s3 url %s needs a bucket and a key", u)
	}
	conf := &aws.Config{}
	if p.Config != nil {
		conf = p.Config.Copy()
	}
	if conf.Region == nil {
		conf.Region = aws.String("us-east-1")
	}
	if c, ok := creds.Credentials(u); ok {
		conf.Credentials = credentials.NewStaticCredentials(c.Username, c.Password, "")
	}
	sess, err := session.NewSession(conf)
	if err != nil {
		log.Println("fetch: s3 session", bucket, err)
		raven.CaptureError(err, map[string]string{"Bucket": bucket})
		return nil, err
	}
	return &s3Fetcher{
		svc:    s3.New(sess),
		bucket: bucket,
		key:    key,
	}, nil
}

type s3Fetcher struct {
	svc    *s3.S3
	bucket string
	key    string
}

func (f *s3Fetcher) Fetch(ctx context.Context, dst Destination, c *Copier) (int64, error) {
	out, err := f.svc.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(f.bucket),
		Key:    aws.String(f.key),
	})
	if err != nil {
		if rf, ok := err.(awserr.RequestFailure); ok {
			return 0, &StatusError{
				URL:        "s3://" + f.bucket + "/" + f.key,
				StatusCode: rf.StatusCode(),
			}
		}
		return 0, err
	}
	defer out.Body.Close()
	w, err := dst.Create(false)
	if err != nil {
		return 0, err
	}
	n, err := c.Copy(ctx, w, out.Body)
	if err2 := w.Close(); err == nil {
		err = err2
	}
	return n, err
}
