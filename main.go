package main

import "github.com/docdbgo/driver/cmd"

func main() {
	cmd.Execute()
}
