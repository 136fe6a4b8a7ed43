package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"grimm.is/tunnelgate/cmd"
	"grimm.is/tunnelgate/internal/brand"
)

func main() {
	if len(os.Args) < 2 {
		// Container entrypoints run the binary without arguments.
		os.Args = append(os.Args, "serve")
	}

	switch os.Args[1] {
	case "serve":
		serveFlags := flag.NewFlagSet("serve", flag.ExitOnError)
		configFile := serveFlags.String("config", brand.GetConfigPath(), "Configuration file (optional)")
		serveFlags.StringVar(configFile, "c", brand.GetConfigPath(), "Configuration file (short)")
		serveFlags.Parse(os.Args[2:])

		if err := cmd.RunServe(*configFile); err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			os.Exit(1)
		}

	case "hash":
		if err := cmd.RunHash(os.Args[2:], os.Stdout); err != nil {
			if !errors.Is(err, cmd.ErrPasswordMismatch) {
				fmt.Fprintf(os.Stderr, "Hash failed: %v\n", err)
			}
			os.Exit(1)
		}

	case "version", "-v", "--version":
		cmd.RunVersion(os.Stdout)

	case "help", "-h", "--help":
		printUsage()

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `%s - %s

Usage:
  %s <command> [arguments]

Commands:
  serve [-c file]          Run the web UI and manage the WireGuard interface (default)
  hash [password [hash]]   Print a PASSWORD_HASH value, or check a password against a hash
  version                  Show version information
  help                     Show this help

Configuration is read from %s (if present) and the environment.
`, brand.Name, brand.Description, brand.LowerName, brand.GetConfigPath())
}
