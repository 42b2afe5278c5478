// Package main provides the entry point for the screenshot bot.
package main

import (
	_ "github.com/joho/godotenv/autoload"
)

func main() {
	execute()
}
