package main

import (
	"os"

	"github.com/rpattn/vendorflow/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
