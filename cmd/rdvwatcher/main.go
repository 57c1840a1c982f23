package main

import (
	"github.com/anemtools/rdvwatcher/internal/cli"
)

func main() {
	cli.Execute()
}
