package main

import (
	"os"

	"github.com/kanna-karuppasamy/smart-grid-metering-parser/internal/cli"
)

func main() {
	os.Exit(int(cli.Run()))
}
