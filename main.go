package main

import "github.com/asaidimu/manyjson/cmd"

func main() {
	cmd.Execute()
}
