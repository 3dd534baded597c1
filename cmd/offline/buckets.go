package main

import (
	"errors"
	"fmt"

	"github.com/urfave/cli/v2"
)

func bucketsCommand() *cli.Command {
	return &cli.Command{
		Name:  "buckets",
		Usage: "List the cache generations stored in a cache file",
		Flags: []cli.Flag{
			dbFlag(),
		},
		Action: bucketsAction,
	}
}

func bucketsAction(c *cli.Context) error {
	if c.String("db") == "" {
		return errors.New("--db is required")
	}

	store, err := openStore(c.Context, c.String("db"))
	if err != nil {
		return err
	}
	defer store.Close()

	names, err := store.Keys(c.Context)
	if err != nil {
		return err
	}

	if len(names) == 0 {
		fmt.Println("No caches found.")
		return nil
	}
	for _, name := range names {
		fmt.Println(name)
	}
	return nil
}
