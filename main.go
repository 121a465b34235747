package main

import (
	"os"

	"github.com/sadopc/fitarchive/internal/cli"
)

var version = "1.2.0"

func main() {
	os.Exit(cli.Execute(version))
}
