package cmd

import (
	"fmt"
)

const banner = `
  __  __            _
 |  \/  | ___  _ __| |_ __ _ ___  __ _
 | |\/| |/ _ \| '__| __/ _` + "`" + ` / __|/ _` + "`" + ` |
 | |  | | (_) | |  | || (_| \__ \ (_| |
 |_|  |_|\___/|_|   \__\__,_|___/\__,_|
`

func printBanner() {
	fmt.Printf("\x1b[34m%s\x1b[0m", banner)
	fmt.Printf("\x1b[32m  Storefront Backend - Version %s\x1b[0m\n\n", Version)
}
