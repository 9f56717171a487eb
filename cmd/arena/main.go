// Command arena runs battles between LLM providers, where every provider
// answers a prompt and then judges all answers, and serves the results over HTTP.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/ahrav/go-arena/internal/ports"
)

// Exit codes for different failure modes.
const (
	ExitSuccess = 0
	ExitError   = 1 // Runtime error
	ExitConfig  = 2 // Configuration error
)

func main() {
	if err := execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)

		var cfgErr *ports.ConfigError
		if errors.As(err, &cfgErr) {
			os.Exit(ExitConfig)
		}
		os.Exit(ExitError)
	}
}
