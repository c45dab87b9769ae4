package main

import "github.com/nextlevelbuilder/embergate/cmd"

func main() {
	cmd.Execute()
}
