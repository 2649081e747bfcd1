package main

import (
	"log"

	"github.com/minetick/ticket-store/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
