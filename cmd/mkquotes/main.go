package main

import (
	"os"

	"horse.fit/mkquotes/internal/app"
)

func main() {
	os.Exit(app.Run(os.Args[1:]))
}
