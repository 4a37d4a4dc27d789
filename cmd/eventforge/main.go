package main

import (
	"eventforge/cmd/cmd"
	"eventforge/internal/logger"
)

func main() {
	logger.Init() // Initialize the logger
	cmd.Execute()
}
