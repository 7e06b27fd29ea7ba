package main

import "github.com/nextlevelbuilder/qabrowser/cmd"

func main() {
	cmd.Execute()
}
