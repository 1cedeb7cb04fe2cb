package main

import "midiplayer/cmd"

func main() {
	cmd.Execute()
}
