package main

import (
	"log"
	"os"

	"github.com/joho/godotenv"

	"career-compass/internal/cli"
)

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("warning: loading .env: %v", err)
	}
	if err := cli.RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
