package main

import "github.com/noven-pro/receiving/cmd/receivingctl/cli"

func main() {
	cli.Execute()
}
