// Command depot-localfs is the localfs plugin code unit. Install it as both
// <importers>/localfs/importer and <distributors>/localfs/distributor.
package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/soyeahso/depot/internal/localfs"
	"github.com/soyeahso/depot/internal/unit"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := unit.Run(ctx, localfs.Program(), os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}
