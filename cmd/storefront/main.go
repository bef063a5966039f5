package main

import "github.com/mortasa/storefront/cmd/storefront/cmd"

func main() {
	cmd.Execute()
}
