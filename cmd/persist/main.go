package main

import "github.com/aweris/persist/cmd/persist/cmd"

func main() {
	cmd.Execute()
}
