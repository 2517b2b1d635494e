package main

import "dealflow/cmd/cli"

func main() {
	cli.Execute()
}
