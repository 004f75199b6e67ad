package main

import (
	"context"

	"github.com/dnitsch/okta-cli-auth/cmd"
)

func main() {
	cmd.Execute(context.Background())
}
