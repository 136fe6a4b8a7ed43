package cmd

import (
	"fmt"
	"io"
	"runtime"

	"grimm.is/tunnelgate/internal/brand"
)

// RunVersion prints build information.
func RunVersion(out io.Writer) {
	fmt.Fprintf(out, "%s %s\n", brand.Name, brand.Version)
	fmt.Fprintf(out, "  commit: %s\n", brand.GitCommit)
	fmt.Fprintf(out, "  built:  %s\n", brand.BuildTime)
	fmt.Fprintf(out, "  go:     %s %s/%s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)
}
