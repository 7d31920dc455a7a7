package main

import "overlay-core/cmd/overlay-cli/cmd"

func main() {
	cmd.Execute()
}
