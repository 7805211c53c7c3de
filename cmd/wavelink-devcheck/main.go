// Command wavelink-devcheck enumerates local capture devices and optionally
// probes one kind, for diagnosing media problems without starting the agent.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/wavelink/wavelink/internal/devices"
)

func main() {
	probe := flag.String("probe", "", "device kind to open briefly (microphone or camera)")
	level := flag.String("log-level", "warn", "log level (debug, info, warn, error)")
	flag.Parse()

	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(*level)); err != nil {
		fmt.Fprintf(os.Stderr, "error: invalid log level %q\n", *level)
		os.Exit(2)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))

	inventory := devices.NewInventory(logger)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	list, err := inventory.List(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: listing devices: %v\n", err)
		os.Exit(1)
	}
	if len(list) == 0 {
		fmt.Println("no devices found")
	}
	for _, d := range list {
		fmt.Printf("%-12s %-24s %s\n", d.Kind, d.ID, d.Label)
	}

	if *probe == "" {
		return
	}

	kind := devices.Kind(*probe)
	if kind != devices.KindMicrophone && kind != devices.KindCamera {
		fmt.Fprintf(os.Stderr, "error: probe must be %q or %q\n", devices.KindMicrophone, devices.KindCamera)
		os.Exit(2)
	}

	if err := inventory.Test(ctx, kind); err != nil {
		fmt.Fprintf(os.Stderr, "error: probing %s: %v\n", kind, err)
		os.Exit(1)
	}
	fmt.Printf("%s ok\n", kind)
}
