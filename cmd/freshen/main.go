package main

import (
	"fmt"
	"os"

	"github.com/freshen/freshen/pkg/exitcodes"
)

func main() {
	if err := Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "freshen: %v\n", err)
		if code, ok := exitcodes.IsExitCodeError(err); ok {
			os.Exit(code)
		}
		os.Exit(exitcodes.ExitGeneralRuntimeError)
	}
}
