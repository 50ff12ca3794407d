package main

import "github.com/rouzd/facegate/cmd"

func main() {
	cmd.Execute()
}
