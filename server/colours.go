package server

import "fmt"

const (
	Red     = "\033[31m"
	Green   = "\033[32m"
	Yellow  = "\033[33m"
	Blue    = "\033[34m"
	Magenta = "\033[35m"
	Cyan    = "\033[36m"
	Gray    = "\033[90m"

	ResetColor = "\033[0m"
)

var methodColors = map[string]string{
	"GET":    Green,
	"POST":   Blue,
	"PUT":    Cyan,
	"DELETE": Yellow,
	"PATCH":  Magenta,
}

func colourMethod(method string) string {
	colour, ok := methodColors[method]
	if !ok {
		colour = Gray
	}
	return colour + fmt.Sprintf(" %-7s", method) + ResetColor
}

func formatRoute(method, path string) string {
	return fmt.Sprintf("[%-19s] %s", colourMethod(method), path)
}
