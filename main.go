package main

import "headlines/internal/cmd"

func main() {
	cmd.Execute()
}
