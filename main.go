package main

import (
	"log"
	"os"

	"autogramhandoff/cli"

	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables from OS")
	}

	if err := cli.NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
