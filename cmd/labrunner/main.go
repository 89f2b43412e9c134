package main

import app "labrunner/internal/app"

func main() {
	app.Run()
}
