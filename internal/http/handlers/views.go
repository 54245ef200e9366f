package handlers

import (
	"fmt"

	html "github.com/gofiber/template/html/v2"
)

// Views loads the HTML templates under dir.
func Views(dir string) *html.Engine {
	engine := html.New(dir, ".html")
	engine.AddFunc("money", money)
	engine.AddFunc("lineTotal", func(price int64, qty int) int64 { return price * int64(qty) })
	return engine
}

// money formats minor units as a decimal amount, e.g. 12345 -> "123.45".
func money(cents int64) string {
	sign := ""
	if cents < 0 {
		sign, cents = "-", -cents
	}
	return fmt.Sprintf("%s%d.%02d", sign, cents/100, cents%100)
}
