package main

import (
	"os"

	"github.com/yoanbernabeu/shellwire/internal/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		if code, ok := cmd.ExitCode(err); ok && code > 0 && code < 256 {
			os.Exit(code)
		}
		os.Exit(1)
	}
}
