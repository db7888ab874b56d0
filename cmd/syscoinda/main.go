// Command syscoinda submits blobs to and fetches blobs from a Syscoin node's
// blob API.
//
//	syscoinda [flags] submit <file|->
//	syscoinda [flags] fetch <blob-id>
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/cockroachdb/errors"
	"github.com/knadh/koanf"
	"github.com/knadh/koanf/providers/confmap"
	flag "github.com/spf13/pflag"
	"github.com/syscoin/syscoinda"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintf(os.Stderr, "syscoinda: %v\n", err)
		}
		stop()
		os.Exit(1)
	}
}

func usage(f *flag.FlagSet, w io.Writer) func() {
	return func() {
		fmt.Fprintf(w, "Usage:\n")
		fmt.Fprintf(w, "  syscoinda [flags] submit <file|->\n")
		fmt.Fprintf(w, "  syscoinda [flags] fetch <blob-id>\n\n")
		fmt.Fprintf(w, "Flags:\n%s", f.FlagUsages())
	}
}

// parseConfig builds the client configuration: defaults, then the TOML file
// named by --config, then any flags set explicitly on the command line.
func parseConfig(f *flag.FlagSet, configPath string) (syscoinda.Config, error) {
	cfg := syscoinda.DefaultConfig()
	if configPath != "" {
		var err error
		if cfg, err = syscoinda.LoadConfig(configPath); err != nil {
			return syscoinda.Config{}, err
		}
	}

	overrides := make(map[string]interface{})
	f.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "config", "out", "print-config":
		default:
			overrides[fl.Name] = fl.Value.String()
		}
	})
	k := koanf.New(".")
	if err := k.Load(confmap.Provider(overrides, "."), nil); err != nil {
		return syscoinda.Config{}, errors.Wrap(err, "loading flags")
	}
	if err := cfg.LoadFromKoanf(k, ""); err != nil {
		return syscoinda.Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return syscoinda.Config{}, errors.Wrap(err, "config validation failed")
	}
	return cfg, nil
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	f := flag.NewFlagSet("syscoinda", flag.ContinueOnError)
	f.SetOutput(stderr)
	f.Usage = usage(f, stderr)
	configPath := f.String("config", "", "TOML configuration file")
	outPath := f.String("out", "", "write fetched blob data to this file instead of stdout")
	printConfig := f.Bool("print-config", false, "print the effective configuration to stderr")
	syscoinda.ConfigAddOptions("", f)

	if err := f.Parse(args); err != nil {
		return err
	}
	cfg, err := parseConfig(f, *configPath)
	if err != nil {
		return err
	}
	if *printConfig {
		fmt.Fprint(stderr, cfg.PrintConfig())
	}

	if f.NArg() != 2 {
		f.Usage()
		return errors.New("expected a command and one argument")
	}
	client := syscoinda.NewSyscoinClient(cfg, syscoinda.WithLogger(syscoinda.NewWriterLogger(stderr)))

	switch cmd, arg := f.Arg(0), f.Arg(1); cmd {
	case "submit":
		return submit(ctx, client, arg, stdin, stdout, stderr)
	case "fetch":
		return fetch(ctx, client, arg, *outPath, stdout)
	default:
		f.Usage()
		return errors.Newf("unknown command %q", cmd)
	}
}

func submit(
	ctx context.Context, client *syscoinda.SyscoinClient, path string, stdin io.Reader, stdout, stderr io.Writer,
) error {
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return errors.Wrap(err, "reading blob")
	}

	resp, err := client.DispatchBlob(ctx, 0, data)
	if err != nil {
		return errors.Wrap(err, "submit")
	}
	fmt.Fprintln(stdout, resp.BlobID)
	if u, err := client.ExplorerURL(resp.BlobID); err == nil {
		fmt.Fprintf(stderr, "explorer: %s\n", u)
	}
	return nil
}

func fetch(ctx context.Context, client *syscoinda.SyscoinClient, blobID, outPath string, stdout io.Writer) error {
	incl, err := client.GetInclusionData(ctx, blobID)
	if err != nil {
		return errors.Wrap(err, "fetch")
	}
	if incl == nil {
		return errors.Newf("no record of blob %s", blobID)
	}
	if outPath != "" {
		return errors.Wrap(os.WriteFile(outPath, incl.Data, 0o644), "writing blob")
	}
	_, err = stdout.Write(incl.Data)
	return err
}
