package main

import (
	"github.com/fzft/go-probed-set/cmd"
)

func main() {
	cmd.Execute(Version())
}
