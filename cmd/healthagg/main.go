package main

import (
	"os"

	"github.com/TeoEchavarria/health-tech-app/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
