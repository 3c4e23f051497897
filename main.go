package main

import "github.com/example/skin-check/cmd"

func main() {
	cmd.Execute()
}
