// Command authd serves the authentication API.
package main

import (
	"fmt"
	"os"

	"github.com/MrEthical07/authsvc/internal/app"
)

func main() {
	if err := app.Run(); err != nil {
		fmt.Fprintln(os.Stderr, "authd:", err)
		os.Exit(1)
	}
}
