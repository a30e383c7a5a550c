package main

import (
	"fmt"
	"io"

	"github.com/spf13/pflag"

	"github.com/ickyclip/icky/internal/config"
)

func printUsage(w io.Writer, fs *pflag.FlagSet) {
	fmt.Fprintf(w, "Usage: icky [options]\n")
	fmt.Fprintf(w, "Configure icky by setting the following fields in %s\n", config.DefaultConfigFile)
	fmt.Fprintf(w, "  curl_verbose: %t\n", config.DefaultVerbose)
	fmt.Fprintf(w, "  client_cert: %s\n", config.DefaultClientFile)
	fmt.Fprintf(w, "  ca_cert: %s\n", config.DefaultCAFile)
	fmt.Fprintf(w, "  server: %s\n", config.DefaultServer)
	fmt.Fprintf(w, "  method: %s\n", config.DefaultMethod)
	fmt.Fprintf(w, "  timeout: %s\n", config.DefaultTimeout)
	fmt.Fprintf(w, "\nThe following options control icky's behavior\n")
	fmt.Fprint(w, fs.FlagUsages())
}
