package main

import "github.com/relloyd/forklift/cmd"

func main() {
	cmd.Execute()
}
