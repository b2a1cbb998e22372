package bagit

import (
	"archive/zip"
	"io"
	"io/ioutil"
	"testing"
	"time"

	"github.com/ndlib/bagfetch/store"
)

type zdata map[string]string

func TestVerifyZip(t *testing.T) {
	var table = []struct {
		name     string
		contents zdata
		ok       bool
		err      bool
	}{
		// payload files split between two manifests
		{"ok-1", zdata{
			"data/hello1":         "hello",
			"data/hello2":         "hello",
			"manifest-md5.txt":    "5d41402abc4b2a76b9719d911017c592 data/hello1\n",
			"manifest-sha256.txt": "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824 data/hello2\n",
			"tagmanifest-md5.txt": "49ce66cef8d32ec33eca290c2c731185 manifest-md5.txt\nbd41f3fc8aa771760265275d3576a30a manifest-sha256.txt\n",
		}, true, false},
		// extra payload file
		{"extra-1", zdata{
			"data/hello1":         "hello",
			"data/hello2":         "hello",
			"manifest-md5.txt":    "5d41402abc4b2a76b9719d911017c592 data/hello1\n",
			"tagmanifest-md5.txt": "49ce66cef8d32ec33eca290c2c731185 manifest-md5.txt\n",
		}, false, false},
		// missing payload file
		{"extra-2", zdata{
			"data/hello1":         "hello",
			"manifest-md5.txt":    "5d41402abc4b2a76b9719d911017c592 data/hello1\n",
			"manifest-sha256.txt": "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824 data/hello2\n",
			"tagmanifest-md5.txt": "49ce66cef8d32ec33eca290c2c731185 manifest-md5.txt\nbd41f3fc8aa771760265275d3576a30a manifest-sha256.txt\n",
		}, false, false},
		// missing tag file
		{"extra-3", zdata{
			"data/hello1":         "hello",
			"data/hello2":         "hello",
			"manifest-md5.txt":    "5d41402abc4b2a76b9719d911017c592 data/hello1\n",
			"manifest-sha256.txt": "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824 data/hello2\n",
			"tagmanifest-md5.txt": "49ce66cef8d32ec33eca290c2c731185 manifest-md5.txt\nbd41f3fc8aa771760265275d3576a30a manifest-sha256.txt\n00000000000000000000000000000000 missing.txt\n",
		}, false, false},
		// mismatch payload file
		{"checksum-1", zdata{
			"data/hello1":         "hello",
			"data/hello2":         "hello",
			"manifest-md5.txt":    "00000000000000000000000000000000 data/hello1\n",
			"manifest-sha256.txt": "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824 data/hello2\n",
			"tagmanifest-md5.txt": "d0d355c1ef01ef6a24b68112d62b1700 manifest-md5.txt\nbd41f3fc8aa771760265275d3576a30a manifest-sha256.txt\n",
		}, false, false},
		// mismatch tag file
		{"checksum-2", zdata{
			"data/hello1":         "hello",
			"data/hello2":         "hello",
			"manifest-md5.txt":    "5d41402abc4b2a76b9719d911017c592 data/hello1\n",
			"manifest-sha256.txt": "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824 data/hello2\n",
			"tagmanifest-md5.txt": "00000000000000000000000000000000 manifest-md5.txt\nbd41f3fc8aa771760265275d3576a30a manifest-sha256.txt\n",
		}, false, false},
		// extra tag file
		{"checksum-3", zdata{
			"data/hello1":         "hello",
			"data/hello2":         "hello",
			"tagfile.txt":         "extra tag file",
			"manifest-md5.txt":    "5d41402abc4b2a76b9719d911017c592 data/hello1\n",
			"manifest-sha256.txt": "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824 data/hello2\n",
			"tagmanifest-md5.txt": "49ce66cef8d32ec33eca290c2c731185 manifest-md5.txt\nbd41f3fc8aa771760265275d3576a30a manifest-sha256.txt\n",
		}, true, false},
		// manifest not hex
		{"manifest-1", zdata{
			"data/hello1":         "hello",
			"data/hello2":         "hello",
			"manifest-md5.txt":    "thisisnothexdata0000000000000000 data/hello1\n",
			"manifest-sha256.txt": "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824 data/hello2\n",
		}, false, true},
		// malformed manifest -- missing final newline
		{"manifest-2", zdata{
			"data/hello1":         "hello",
			"data/hello2":         "hello",
			"manifest-md5.txt":    "5d41402abc4b2a76b9719d911017c592 data/hello1",
			"manifest-sha256.txt": "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824 data/hello2\n",
			"tagmanifest-md5.txt": "2afc9fa64386fe74f0500bc6f83b9d9c manifest-md5.txt\nbd41f3fc8aa771760265275d3576a30a manifest-sha256.txt\n",
		}, true, false},
		// manifest line only has hash
		{"manifest-3", zdata{
			"data/hello1":         "hello",
			"manifest-md5.txt":    "5d41402abc4b2a76b9719d911017c592 data/hello1\n",
			"manifest-sha256.txt": "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824\n",
		}, false, true},
		// manifest for an algorithm nobody registered
		{"manifest-4", zdata{
			"data/hello1":        "hello",
			"manifest-whirl.txt": "5d41402abc4b2a76b9719d911017c592 data/hello1\n",
		}, false, true},
	}

	mstore := store.NewMemory()
	for _, tab := range table {
		t.Logf("Doing %s", tab.name)
		r := zipFromStore(t, mstore, tab.name, tab.contents)
		result, err := NewVerifier().VerifyBag(r)
		if tab.err {
			if err == nil {
				t.Errorf("%s: expected an error", tab.name)
			}
			continue
		}
		if err != nil {
			t.Errorf("%s: received error %s", tab.name, err)
			continue
		}
		if result.Success() != tab.ok {
			t.Errorf("%s: valid returned %v, expected %v\n%s", tab.name, result.Success(), tab.ok, result)
		}
	}
}

func TestZipOpen(t *testing.T) {
	r := zipFromStore(t, store.NewMemory(), "open", zdata{
		"data/hello1": "hello",
		"bagit.txt":   "BagIt-Version: 0.97\n",
	})
	if r.Name() != "test" {
		t.Errorf("Bag name is %q, expected %q", r.Name(), "test")
	}
	in, err := r.Open("hello1")
	if err != nil {
		t.Fatal(err)
	}
	data, _ := ioutil.ReadAll(in)
	in.Close()
	if string(data) != "hello" {
		t.Errorf("Read %s, expected %s", data, "hello")
	}
	if _, err := r.Open("nothere"); err != ErrNotFound {
		t.Errorf("Received %v, expected %v", err, ErrNotFound)
	}
	files, _ := r.Files()
	if len(files) != 2 || files[0] != "bagit.txt" || files[1] != "data/hello1" {
		t.Errorf("File list is %v", files)
	}
	src, _ := r.Resolve("data/hello1")
	if size, _ := src.Size(); size != 5 {
		t.Errorf("Size is %d, expected 5", size)
	}
}

func zipFromStore(t *testing.T, mstore *store.Memory, name string, contents zdata) *ZipBag {
	f, err := mstore.Create(name)
	if err != nil {
		t.Fatal(err)
	}
	makezipfile(f, contents)
	f.Close()

	f2, size, err := mstore.Open(name)
	if err != nil {
		t.Fatal(err)
	}
	r, err := NewZipBag(f2, size)
	if err != nil {
		t.Fatal(err)
	}
	return r
}

func makezipfile(w io.Writer, contents zdata) {
	const dirname = "test/"
	z := zip.NewWriter(w)
	for k, v := range contents {
		header := zip.FileHeader{
			Name:   dirname + k,
			Method: zip.Store,
		}
		header.Modified = time.Now()
		out, _ := z.CreateHeader(&header)
		// this should check the number of bytes written, and loop
		out.Write([]byte(v))
	}
	z.Close()
}
