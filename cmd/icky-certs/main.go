// icky-certs generates and inspects the development PKI used by icky and
// stickyd.
package main

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/pflag"

	"github.com/ickyclip/icky/internal/config"
	"github.com/ickyclip/icky/internal/tlsutil"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		printUsage(stderr)
		return 2
	}

	command, rest := args[0], args[1:]
	switch command {
	case "generate":
		return generateCmd(rest, stdout, stderr)
	case "show":
		return showCmd(rest, stdout, stderr)
	case "help", "-h", "--help":
		printUsage(stdout)
		return 0
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n", command)
		printUsage(stderr)
		return 2
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "icky-certs - development certificates for icky")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  icky-certs generate [flags]  - Generate a CA, server and client certificate")
	fmt.Fprintln(w, "  icky-certs show [flags]      - Display certificate information")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Run 'icky-certs <command> -h' for command-specific help")
}

func generateCmd(args []string, stdout, stderr io.Writer) int {
	var (
		dir        string
		hosts      []string
		clientName string
		validFor   time.Duration
		force      bool
	)
	fs := pflag.NewFlagSet("generate", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&dir, "dir", config.DefaultDir, "Certificate directory")
	fs.StringSliceVar(&hosts, "host", nil, "Server host name or IP (repeatable, default localhost,127.0.0.1,::1)")
	fs.StringVar(&clientName, "client-name", "icky", "Client certificate common name")
	fs.DurationVar(&validFor, "valid-for", 365*24*time.Hour, "Certificate lifetime")
	fs.BoolVar(&force, "force", false, "Overwrite existing files")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		return 2
	}

	dir, err := config.ExpandPath(dir)
	if err != nil {
		fmt.Fprintf(stderr, "Invalid directory: %v\n", err)
		return 1
	}

	pki, err := tlsutil.GeneratePKI(tlsutil.GenerateOptions{
		Hosts:      hosts,
		ClientName: clientName,
		ValidFor:   validFor,
	})
	if err != nil {
		fmt.Fprintf(stderr, "Failed to generate certificates: %v\n", err)
		return 1
	}

	if err := pki.WriteFiles(dir, force); err != nil {
		fmt.Fprintf(stderr, "%v\n", err)
		if errors.Is(err, tlsutil.ErrExists) {
			fmt.Fprintln(stderr, "Use --force to overwrite")
		}
		return 1
	}

	fmt.Fprintln(stdout, "Certificates generated successfully!")
	fmt.Fprintln(stdout)
	fmt.Fprintf(stdout, "Files stored in:\n  %s\n", dir)
	fmt.Fprintln(stdout)
	fmt.Fprintln(stdout, "Client configuration:")
	fmt.Fprintf(stdout, "  client_cert: %s\n", filepath.Join(dir, tlsutil.ClientFile))
	fmt.Fprintf(stdout, "  ca_cert: %s\n", filepath.Join(dir, tlsutil.CAFile))
	fmt.Fprintln(stdout)
	fmt.Fprintln(stdout, "Server:")
	fmt.Fprintf(stdout, "  stickyd --certs %s\n", dir)
	return 0
}

func showCmd(args []string, stdout, stderr io.Writer) int {
	var dir string
	fs := pflag.NewFlagSet("show", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&dir, "dir", config.DefaultDir, "Certificate directory")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		return 2
	}

	dir, err := config.ExpandPath(dir)
	if err != nil {
		fmt.Fprintf(stderr, "Invalid directory: %v\n", err)
		return 1
	}

	failed := false
	for _, name := range []string{tlsutil.CAFile, tlsutil.ClientFile, tlsutil.ServerCertFile} {
		path := filepath.Join(dir, name)
		certs, err := tlsutil.ReadCertificates(path)
		if err != nil {
			fmt.Fprintf(stderr, "%s: %v\n", name, err)
			failed = true
			continue
		}
		for _, cert := range certs {
			fmt.Fprintf(stdout, "%s:\n", name)
			fmt.Fprintf(stdout, "  Subject:     %s\n", cert.Subject)
			fmt.Fprintf(stdout, "  Issuer:      %s\n", cert.Issuer)
			fmt.Fprintf(stdout, "  Fingerprint: %s\n", tlsutil.Fingerprint(cert))
			fmt.Fprintf(stdout, "  Expires:     %s (%s)\n", cert.NotAfter.Format(time.RFC3339), humanize.Time(cert.NotAfter))
			if names := hostsOf(cert.DNSNames, cert.IPAddresses); names != "" {
				fmt.Fprintf(stdout, "  Hosts:       %s\n", names)
			}
			fmt.Fprintln(stdout)
		}
	}
	if failed {
		fmt.Fprintln(stderr, "Run 'icky-certs generate' first to create certificates")
		return 1
	}
	return 0
}

func hostsOf(dns []string, ips []net.IP) string {
	names := append([]string(nil), dns...)
	for _, ip := range ips {
		names = append(names, ip.String())
	}
	return strings.Join(names, ", ")
}
