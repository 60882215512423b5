package main

import "github.com/marshallshelly/pebble-api/cmd/pebble-api/commands"

func main() {
	commands.Execute()
}
