package main

import "github.com/MeKo-Tech/moire/internal/cmd"

func main() {
	cmd.Execute()
}
