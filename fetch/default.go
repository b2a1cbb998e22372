package fetch

// NewDefaultRegistry returns a registry with the file, http, https and s3
// protocols using their default settings.
func NewDefaultRegistry(creds CredentialsProvider) *Registry {
	r := NewRegistry(creds)
	h := &HTTP{}
	r.Register("file", &File{})
	r.Register("http", h)
	r.Register("https", h)
	r.Register("s3", &S3{})
	return r
}
