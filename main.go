package main

import "vizdirector/cmd"

func main() {
	cmd.Execute()
}
