// bagfetch verifies BagIt bags and completes holey bags by fetching the
// files listed in their fetch.txt.
//
// Example command lines:
//
//	$ bagfetch verify path/to/bag
//	$ bagfetch verify --oxum 1024.3 bag.zip
//	$ bagfetch fetch --config fetch.toml --progress s3://bucket/bags/bag1
//	$ bagfetch holes path/to/bag https://example.com/bag1 > fetch.txt
//
// A bag location is a directory, a zip file (read only), or a prefix in an
// S3 bucket written as "s3://bucket/prefix". S3 settings and download
// credentials come from the TOML configuration file.
//
// Errors are sent to Sentry if SENTRY_DSN is set in the environment.
package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	raven "github.com/getsentry/raven-go"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/ndlib/bagfetch/bagit"
	"github.com/ndlib/bagfetch/transfer"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

type options struct {
	configFile string
	version    string
}

func newRootCommand() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:          "bagfetch",
		Short:        "Verify BagIt bags and fetch the missing files of holey bags",
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVarP(&opts.configFile, "config", "c", "", "TOML configuration file")
	cmd.PersistentFlags().StringVar(&opts.version, "bagit-version", bagit.DefaultVersion, "BagIt version of the bags")
	cmd.AddCommand(
		newVerifyCommand(opts),
		newFetchCommand(opts),
		newHolesCommand(opts),
	)
	return cmd
}

func (o *options) config() (*transfer.Config, error) {
	if o.configFile == "" {
		return &transfer.Config{}, nil
	}
	return transfer.LoadConfig(o.configFile)
}

func (o *options) verifier() (*bagit.Verifier, error) {
	v, err := bagit.LookupVersion(o.version)
	if err != nil {
		return nil, err
	}
	verifier := bagit.NewVerifier()
	verifier.Version = v
	return verifier, nil
}

func (o *options) open(loc string) (*location, *transfer.Config, error) {
	conf, err := o.config()
	if err != nil {
		return nil, nil, err
	}
	l, err := parselocation(loc, conf)
	return l, conf, err
}

func newVerifyCommand(opts *options) *cobra.Command {
	var oxum string
	cmd := &cobra.Command{
		Use:   "verify <bag>",
		Short: "Check the manifests of a bag against its files",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			l, _, err := opts.open(args[0])
			if err != nil {
				return err
			}
			defer l.Close()
			v, err := opts.verifier()
			if err != nil {
				return err
			}
			var result *bagit.Result
			if oxum != "" {
				declared, err := bagit.ParseOxum(oxum)
				if err != nil {
					return err
				}
				result, err = bagit.QuickVerify(l.bag, v.Version, declared)
				if err != nil {
					return err
				}
			} else {
				result, err = v.VerifyBag(l.bag)
				if err != nil {
					return err
				}
			}
			return report(cmd.OutOrStdout(), args[0], result)
		},
	}
	cmd.Flags().StringVar(&oxum, "oxum", "", "only compare the payload against this Payload-Oxum")
	return cmd
}

func report(w io.Writer, name string, result *bagit.Result) error {
	fmt.Fprintln(w, result)
	if !result.Success() {
		return errors.Errorf("%s is not valid", name)
	}
	return nil
}

func newFetchCommand(opts *options) *cobra.Command {
	var (
		progress bool
		check    bool
		remain   string
	)
	cmd := &cobra.Command{
		Use:   "fetch <bag>",
		Short: "Fetch the files listed in a bag's fetch.txt, then verify the bag",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			l, conf, err := opts.open(args[0])
			if err != nil {
				return err
			}
			defer l.Close()
			if l.dest == nil {
				return errors.Errorf("%s is read only", args[0])
			}
			v, err := opts.verifier()
			if err != nil {
				return err
			}
			entries, err := readFetch(l.bag, v.Version)
			if err != nil {
				return err
			}
			c, err := conf.NewCoordinator(l.dest)
			if err != nil {
				return err
			}
			defer c.Close()
			if progress {
				c.Progress = transfer.NewProgressBar(cmd.ErrOrStderr())
			} else {
				c.Progress = transfer.NewLogProgress(64 << 20)
			}
			if check {
				c.Manifests, err = bagit.LoadManifests(l.bag, v.Registry, v.Version)
				if err != nil {
					return err
				}
			}
			result, err := c.Run(cmd.Context(), entries)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), result)
			if remain != "" {
				if err := writeRemaining(remain, result); err != nil {
					return err
				}
			}
			if result.State != transfer.Completed {
				err = errors.Errorf("fetch %s", result.State)
				raven.CaptureError(err, map[string]string{"Bag": args[0]})
				return err
			}
			verified, err := v.VerifyBag(l.bag)
			if err != nil {
				return err
			}
			return report(cmd.OutOrStdout(), args[0], verified)
		},
	}
	cmd.Flags().BoolVar(&progress, "progress", false, "show progress bars instead of log lines")
	cmd.Flags().BoolVar(&check, "check", false, "check each file against the manifests before keeping it")
	cmd.Flags().StringVar(&remain, "remaining", "", "write the entries not fetched to this file")
	return cmd
}

// readFetch parses the fetch file of b. A bag without one has nothing to
// fetch.
func readFetch(b bagit.Bag, v bagit.Version) ([]bagit.FetchEntry, error) {
	src, ok := b.Resolve(v.FetchFile)
	if !ok || !src.Exists() {
		log.Println("fetch: no", v.FetchFile, "nothing to do")
		return nil, nil
	}
	rc, err := src.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return bagit.ParseFetch(rc)
}

func writeRemaining(name string, result *transfer.JobResult) error {
	f, err := os.Create(name)
	if err != nil {
		return err
	}
	err = bagit.WriteFetch(f, result.Remaining())
	if err2 := f.Close(); err == nil {
		err = err2
	}
	return err
}

func newHolesCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "holes <bag> <base url>",
		Short: "Write fetch.txt lines for the payload of a bag, served from base url",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			l, _, err := opts.open(args[0])
			if err != nil {
				return err
			}
			defer l.Close()
			v, err := bagit.LookupVersion(opts.version)
			if err != nil {
				return err
			}
			files, err := l.bag.Files()
			if err != nil {
				return err
			}
			var sources []bagit.FileSource
			for _, f := range files {
				if !v.IsPayload(f) {
					continue
				}
				if src, ok := l.bag.Resolve(f); ok {
					sources = append(sources, src)
				}
			}
			entries, err := bagit.PunchHoles(args[1], sources)
			if err != nil {
				return err
			}
			return bagit.WriteFetch(cmd.OutOrStdout(), entries)
		},
	}
}
