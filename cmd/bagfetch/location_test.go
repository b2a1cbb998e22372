package main

import (
	"archive/zip"
	"os"
	"path/filepath"
	"testing"

	"github.com/ndlib/bagfetch/bagit"
	"github.com/ndlib/bagfetch/transfer"
)

const (
	typeDir = iota
	typeZip
	typeS3
	typeError
)

func TestSplitBucketPrefix(t *testing.T) {
	var table = []struct {
		location string
		bucket   string
		prefix   string
	}{
		{"", "", ""},
		{"rel/path", "rel", "path/"},
		{"/abs/path/", "abs", "path/"},
		{"/bucket", "bucket", ""},
		{"bucket/prefix/", "bucket", "prefix/"},
		{"bucket/prefix", "bucket", "prefix/"},
		{"bucket/and/a/prefix", "bucket", "and/a/prefix/"},
	}

	for _, row := range table {
		t.Log(row.location)
		bucket, prefix := splitBucketPrefix(row.location)
		if bucket != row.bucket {
			t.Error("expected bucket", row.bucket, "received", bucket)
		}
		if prefix != row.prefix {
			t.Error("expected prefix", row.prefix, "received", prefix)
		}
	}
}

func TestParseLocation(t *testing.T) {
	dir := t.TempDir()
	zipname := filepath.Join(dir, "bag.zip")
	writeZip(t, zipname, map[string]string{"bag/bagit.txt": "BagIt-Version: 0.97\n"})

	var table = []struct {
		location string
		typ      int
		prefix   string
	}{
		{dir, typeDir, ""},
		{"file://" + filepath.ToSlash(dir), typeDir, ""},
		{zipname, typeZip, ""},
		{"s3://bucket", typeS3, ""},
		{"s3://bucket/prefix", typeS3, "prefix/"},
		{"s3://bucket/bags/bag1/", typeS3, "bags/bag1/"},
		{"s3://", typeError, ""},
		{"ftp://example.com/bag", typeError, ""},
		{filepath.Join(dir, "missing.zip"), typeError, ""},
	}

	for _, row := range table {
		t.Log(row.location)
		l, err := parselocation(row.location, &transfer.Config{})
		if row.typ == typeError {
			if err == nil {
				t.Errorf("expected an error, received %#v", l)
			}
			continue
		}
		if err != nil {
			t.Errorf("received error %s", err)
			continue
		}
		switch x := l.bag.(type) {
		case *bagit.DirBag:
			if row.typ != typeDir {
				t.Errorf("unexpected received %#v", l.bag)
			}
			if _, ok := l.dest.(*transfer.FSDestinations); !ok {
				t.Errorf("unexpected destinations %#v", l.dest)
			}
		case *bagit.ZipBag:
			if row.typ != typeZip {
				t.Errorf("unexpected received %#v", l.bag)
			}
			if x.Name() != "bag" {
				t.Error("expected name bag, received", x.Name())
			}
			if l.dest != nil {
				t.Errorf("zip bag has destinations %#v", l.dest)
			}
		case *bagit.StoreBag:
			if row.typ != typeS3 {
				t.Errorf("unexpected received %#v", l.bag)
			}
			if x.Prefix != row.prefix {
				t.Error("expected prefix", row.prefix, "received", x.Prefix)
			}
		default:
			t.Errorf("unexpected received %#v", l.bag)
		}
		l.Close()
	}
}

func writeZip(t *testing.T, name string, files map[string]string) {
	f, err := os.Create(name)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	z := zip.NewWriter(f)
	for name, content := range files {
		w, err := z.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		w.Write([]byte(content))
	}
	if err := z.Close(); err != nil {
		t.Fatal(err)
	}
}
