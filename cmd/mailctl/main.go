package main

import (
	"os"

	"github.com/austindbirch/harbor_mail/cmd/mailctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
