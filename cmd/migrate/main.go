// migrate applies the archive schema from embedded SQL; run with go run ./cmd/migrate [up|down|version].
package main

import (
	"flag"
	"fmt"
	"os"

	"koursa/client/internal/config"
	"koursa/client/internal/db/migrate"
)

func main() {
	flag.Usage = func() {
		fmt.Fprintln(os.Stderr, "usage: migrate [up|down|version]")
		flag.PrintDefaults()
	}
	flag.Parse()
	cmd := "up"
	if flag.NArg() > 0 {
		cmd = flag.Arg(0)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	switch cmd {
	case "up", "down":
		if err := migrate.Run(cfg.DatabaseURL, cmd); err != nil {
			fmt.Fprintln(os.Stderr, "migrate:", err)
			os.Exit(1)
		}
	case "version":
		v, dirty, ok, err := migrate.Version(cfg.DatabaseURL)
		if err != nil {
			fmt.Fprintln(os.Stderr, "migrate:", err)
			os.Exit(1)
		}
		switch {
		case !ok:
			fmt.Println("no migrations applied")
		case dirty:
			fmt.Printf("version %d (dirty)\n", v)
		default:
			fmt.Printf("version %d\n", v)
		}
	default:
		flag.Usage()
		os.Exit(2)
	}
}
