package main

import "github.com/tomaslejdung/watchroom/cmd/watchroom/cmd"

func main() {
	cmd.Execute()
}
