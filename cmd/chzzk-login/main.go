package main

import (
	"log"

	"github.com/popop098/chzzk-login-example/cmd/internal/app"
)

func main() {
	if err := app.Run(); err != nil {
		log.Fatal(err)
	}
}
