package transfer

import (
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/aws/aws-sdk-go/aws"
	"github.com/pkg/errors"

	"github.com/ndlib/bagfetch/fetch"
	"github.com/ndlib/bagfetch/util"
)

// Config describes how to run a fetch job. It is usually read from a TOML
// file:
//
//	policy = "threshold"
//	threshold = 5
//	max_attempts = 3
//	parallel = 4
//	rate_limit = 1048576
//	user_agent = "bagfetch/1.0"
//
//	[s3]
//	endpoint = "http://localhost:9000"
//	path_style = true
//
//	[credentials."example.com"]
//	username = "alice"
//	password = "secret"
type Config struct {
	// Policy is one of "continue", "retry", "fail-fast" or "threshold".
	Policy string `toml:"policy"`
	// Threshold is the number of consecutive failures allowed by the
	// threshold policy.
	Threshold int `toml:"threshold"`
	// ThresholdAction is "retry" or "continue", the answer of the
	// threshold policy before it stops.
	ThresholdAction string `toml:"threshold_action"`
	// FileRetries is the per-file failure cap of the threshold policy.
	FileRetries int `toml:"file_retries"`

	MaxAttempts int     `toml:"max_attempts"`
	Parallel    int     `toml:"parallel"`
	RateLimit   float64 `toml:"rate_limit"` // bytes per second; 0 is unlimited
	BufferSize  int     `toml:"buffer_size"`
	UserAgent   string  `toml:"user_agent"`

	S3          S3Config                     `toml:"s3"`
	Credentials map[string]fetch.Credentials `toml:"credentials"`
}

// S3Config configures the s3 protocol.
type S3Config struct {
	Endpoint   string `toml:"endpoint"`
	Region     string `toml:"region"`
	PathStyle  bool   `toml:"path_style"`
	DisableSSL bool   `toml:"disable_ssl"`
}

// ErrBadConfig means a configuration could not be used.
var ErrBadConfig = errors.New("bad transfer configuration")

// LoadConfig reads a TOML configuration file.
func LoadConfig(name string) (*Config, error) {
	c := &Config{}
	md, err := toml.DecodeFile(name, c)
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", name)
	}
	return c, checkUndecoded(md)
}

// DecodeConfig parses a TOML configuration.
func DecodeConfig(text string) (*Config, error) {
	c := &Config{}
	md, err := toml.Decode(text, c)
	if err != nil {
		return nil, err
	}
	return c, checkUndecoded(md)
}

func checkUndecoded(md toml.MetaData) error {
	if keys := md.Undecoded(); len(keys) > 0 {
		return errors.Wrapf(ErrBadConfig, "unknown key %s", keys[0])
	}
	return nil
}

// NewPolicy builds the failure policy named in the configuration. The
// default is to continue with the next file.
func (c *Config) NewPolicy() (Policy, error) {
	switch c.Policy {
	case "", "continue":
		return AlwaysContinue, nil
	case "retry":
		return AlwaysRetry, nil
	case "fail-fast":
		return FailFast, nil
	case "threshold":
		if c.Threshold < 1 {
			return nil, errors.Wrap(ErrBadConfig, "threshold must be at least 1")
		}
		p := NewThreshold(c.Threshold)
		p.PerFile = c.FileRetries
		switch c.ThresholdAction {
		case "", "retry":
		case "continue":
			p.Below = ContinueWithNext
		default:
			return nil, errors.Wrapf(ErrBadConfig, "threshold_action %q", c.ThresholdAction)
		}
		return p, nil
	}
	return nil, errors.Wrapf(ErrBadConfig, "policy %q", c.Policy)
}

// NewRegistry returns a protocol registry with every built-in protocol
// set up from the configuration.
func (c *Config) NewRegistry() *fetch.Registry {
	creds := make(fetch.StaticCredentials)
	for host, cred := range c.Credentials {
		creds[strings.ToLower(host)] = cred
	}
	r := fetch.NewRegistry(creds)
	h := &fetch.HTTP{UserAgent: c.UserAgent}
	r.Register("http", h)
	r.Register("https", h)
	r.Register("file", &fetch.File{})
	r.Register("s3", &fetch.S3{Config: c.AWSConfig()})
	return r
}

// AWSConfig returns the settings for talking to S3, both for fetching and
// for S3 backed destinations.
func (c *Config) AWSConfig() *aws.Config {
	conf := &aws.Config{}
	if c.S3.Endpoint != "" {
		conf.Endpoint = aws.String(c.S3.Endpoint)
	}
	if c.S3.Region != "" {
		conf.Region = aws.String(c.S3.Region)
	}
	if c.S3.PathStyle {
		conf.S3ForcePathStyle = aws.Bool(true)
	}
	if c.S3.DisableSSL {
		conf.DisableSSL = aws.Bool(true)
	}
	return conf
}

// NewCoordinator builds a coordinator writing to dst. Call Close on it when
// finished to release the bandwidth limiter.
func (c *Config) NewCoordinator(dst DestinationFactory) (*Coordinator, error) {
	p, err := c.NewPolicy()
	if err != nil {
		return nil, err
	}
	if c.Policy == "retry" && c.MaxAttempts < 1 {
		return nil, errors.Wrap(ErrBadConfig, "the retry policy needs max_attempts")
	}
	coord := &Coordinator{
		Registry:     c.NewRegistry(),
		Policy:       p,
		Destinations: dst,
		MaxAttempts:  c.MaxAttempts,
		Parallel:     c.Parallel,
		BufferSize:   c.BufferSize,
	}
	if c.RateLimit > 0 {
		coord.Limit = util.NewRateCounter(c.RateLimit)
	}
	return coord, nil
}
