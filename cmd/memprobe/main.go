package main

import (
	"fmt"
	"os"

	"github.com/go-memprobe/memprobe/cmd/memprobe/cmds"
)

func main() {
	if err := cmds.New().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
