package main

import "mdfetch/cmd"

func main() {
	cmd.Execute()
}
