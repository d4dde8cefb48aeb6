package main

import "github.com/haldis/webchat/cmd"

func main() {
	cmd.Execute()
}
