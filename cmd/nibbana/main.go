package main

import (
	"os"

	clientcmd "github.com/primlo/nibbana/internal/cmd/client"
)

func main() {
	if err := clientcmd.NewRoot().Execute(); err != nil {
		os.Exit(1)
	}
}
