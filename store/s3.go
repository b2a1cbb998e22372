package store

import (
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	raven "github.com/getsentry/raven-go"
)

// A S3 store represents a store that is kept on AWS S3 storage. It lets a
// holey bag be completed straight into a bucket.
// Do not change Bucket or Prefix concurrently with calls using the structure.
type S3 struct {
	svc      *s3.S3
	uploader *s3manager.Uploader
	Bucket   string
	Prefix   string
}

var _ Store = &S3{}

// NewS3 creates a new S3 store. It will use the given bucket and will prepend
// prefix to all keys. For example if prefix were "bags/" then an
// Open("data/hello") would look for the key "bags/data/hello" in the bucket.
// The authorization method and credentials in the session are used for all
// accesses.
func NewS3(bucket, prefix string, awsSession *session.Session) *S3 {
	return &S3{
		svc:      s3.New(awsSession),
		uploader: s3manager.NewUploader(awsSession),
		Bucket:   bucket,
		Prefix:   prefix,
	}
}

// ListPrefix returns the keys in this store that have the given prefix.
// The argument prefix is added to the store's Prefix.
func (s *S3) ListPrefix(prefix string) ([]string, error) {
	var result []string
	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(s.Bucket),
		Prefix: aws.String(s.Prefix + prefix),
	}
	err := s.svc.ListObjectsV2Pages(input,
		func(page *s3.ListObjectsV2Output, lastpage bool) bool {
			for _, item := range page.Contents {
				result = append(result, strings.TrimPrefix(*item.Key, s.Prefix))
			}
			return !lastpage
		})
	if err != nil {
		log.Println("S3 ListPrefix:", s.Prefix, prefix, err)
		raven.CaptureError(err, map[string]string{"Bucket": s.Bucket, "Prefix": s.Prefix, "Pattern": prefix})
	}
	return result, err
}

// Open will return a ReadAtCloser to get the content for the given key.
// Each ReadAt is a ranged GET.
func (s *S3) Open(key string) (ReadAtCloser, int64, error) {
	info, err := s.svc.HeadObject(&s3.HeadObjectInput{
		Bucket: aws.String(s.Bucket),
		Key:    aws.String(s.Prefix + key),
	})
	if err != nil {
		if e, ok := err.(awserr.RequestFailure); ok && e.StatusCode() == http.StatusNotFound {
			err = fmt.Errorf("No item %s: %w", key, ErrNotExist)
		}
		return nil, 0, err
	}
	result := &s3ReadAtCloser{
		svc:    s.svc,
		bucket: s.Bucket,
		key:    s.Prefix + key,
		size:   aws.Int64Value(info.ContentLength),
	}
	return result, result.size, nil
}

// Create returns a Writer which uploads to the given key. The data is
// streamed to S3 as it is written, using a multipart upload for large
// objects. Nothing appears in the bucket until Close returns, and Abort
// cancels the upload.
func (s *S3) Create(key string) (Writer, error) {
	r, w := io.Pipe()
	wc := &s3WriteCloser{
		w:    w,
		done: make(chan error, 1),
		key:  s.Prefix + key,
	}
	go func() {
		_, err := s.uploader.Upload(&s3manager.UploadInput{
			Bucket: aws.String(s.Bucket),
			Key:    aws.String(wc.key),
			Body:   r,
		})
		// unblock any writer if the upload failed early
		r.CloseWithError(err)
		wc.done <- err
	}()
	return wc, nil
}

// Delete will remove the given key from the store. The store's Prefix is
// prepended first. It is not an error to delete something that doesn't exist.
func (s *S3) Delete(key string) error {
	_, err := s.svc.DeleteObject(&s3.DeleteObjectInput{
		Bucket: aws.String(s.Bucket),
		Key:    aws.String(s.Prefix + key),
	})
	if err != nil {
		log.Println("S3 Delete:", s.Prefix, key, err)
		raven.CaptureError(err, map[string]string{"Bucket": s.Bucket, "Prefix": s.Prefix, "Key": key})
	}
	return err
}

// s3ReadAtCloser adapts ranged GETs to the ReadAt interface.
type s3ReadAtCloser struct {
	svc    *s3.S3
	bucket string
	key    string
	size   int64
}

// ReadAt implements the io.ReadAt interface.
func (rac *s3ReadAtCloser) ReadAt(p []byte, offset int64) (int, error) {
	if offset >= rac.size {
		return 0, io.EOF
	}
	end := offset + int64(len(p))
	if end > rac.size {
		end = rac.size
	}
	if end == offset {
		return 0, nil
	}
	output, err := rac.svc.GetObject(&s3.GetObjectInput{
		Bucket: aws.String(rac.bucket),
		Key:    aws.String(rac.key),
		Range:  aws.String(fmt.Sprintf("bytes=%d-%d", offset, end-1)),
	})
	if err != nil {
		log.Println("S3 ReadAt:", rac.key, offset, err)
		// if we get an invalid range error then we have gone too far
		e, ok := err.(awserr.RequestFailure)
		if ok && e.StatusCode() == http.StatusRequestedRangeNotSatisfiable {
			err = io.EOF
		}
		return 0, err
	}
	defer output.Body.Close()
	n, err := io.ReadFull(output.Body, p[:end-offset])
	if err == nil && int64(n) < int64(len(p)) {
		err = io.EOF
	}
	return n, err
}

// Close will close this file.
func (rac *s3ReadAtCloser) Close() error {
	return nil
}

// s3WriteCloser feeds an upload running in another goroutine.
type s3WriteCloser struct {
	w      *io.PipeWriter
	done   chan error
	key    string
	closed bool
	err    error
}

func (wc *s3WriteCloser) Write(p []byte) (int, error) {
	return wc.w.Write(p)
}

// Close waits for the upload to finish. If there were any errors the
// upload is discarded.
func (wc *s3WriteCloser) Close() error {
	if wc.closed {
		return wc.err
	}
	wc.closed = true
	wc.w.Close()
	wc.err = <-wc.done
	if wc.err != nil {
		log.Println("S3 Close:", wc.key, wc.err)
	}
	return wc.err
}

// ErrAborted is the reason given to an upload which was aborted.
var ErrAborted = errors.New("upload aborted")

// Abort stops the upload. The uploader removes any parts already sent.
func (wc *s3WriteCloser) Abort() error {
	if wc.closed {
		return nil
	}
	wc.closed = true
	wc.w.CloseWithError(ErrAborted)
	<-wc.done
	return nil
}
