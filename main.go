package main

import (
	_ "time/tzdata"

	"whosout/internal/app"
)

func main() {
	app.Main()
}
