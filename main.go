package main

import (
	"fmt"
	"os"

	"github.com/kairos-io/diskbuild/commands"
	"github.com/twpayne/go-vfs/v4"
)

func main() {
	app := commands.NewApp(commands.Deps{FS: vfs.OSFS})
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		if commands.IsConfigurationError(err) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}
