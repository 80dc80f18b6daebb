package main

import "priceflow/internal/cli"

func main() {
	cli.Execute()
}
