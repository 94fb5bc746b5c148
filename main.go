package main

import "github.com/variantdev/packrel/cmd"

func main() {
	cmd.Execute()
}
