package main

import "fxrec/internal/cli"

func main() {
	cli.Execute()
}
