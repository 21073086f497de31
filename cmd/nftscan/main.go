package main

import "github.com/vietddude/nftscan/internal/cli"

func main() {
	cli.Execute()
}
