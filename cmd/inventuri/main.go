package main

import "inventuri/internal/cli"

func main() {
	cli.Execute()
}
