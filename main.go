package main

import (
	"log"
	"os"

	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "mailarchive",
		Usage: "archive documents found in email",
		Commands: []*cli.Command{
			migrateCommand(),
			serverCommand(),
			fetchCommand(),
			refreshCommand(),
			verifyCommand(),
			accountCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatalf("mailarchive: %v", err)
	}
}
