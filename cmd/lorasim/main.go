// Command lorasim runs the LoRa mesh simulator of spec.md: either
// interactively via a readline REPL, or in a single non-interactive batch
// pass driven entirely by flags. Grounded on the teacher's otns_main
// driver shape (flag-parsed entrypoint handing off to either a CLI loop or
// a headless run), adapted to this simulator's much smaller surface.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/openlora/lorasim/cli"
	"github.com/openlora/lorasim/config"
	"github.com/openlora/lorasim/logging"
	"github.com/openlora/lorasim/progctx"
	"github.com/openlora/lorasim/report"
	"github.com/openlora/lorasim/sim"
)

func main() {
	scenarioPath := flag.String("scenario", "", "scenario YAML file (batch mode if set together with -duration)")
	duration := flag.Uint64("duration", 0, "simulation duration in ms (batch mode)")
	exportPath := flag.String("export", "", "CSV report path (batch mode)")
	logLevel := flag.String("log-level", "info", "log level: trace|debug|info|warn|error|off")
	flag.Parse()

	logging.SetLevel(logging.ParseLevel(*logLevel))

	pctx := progctx.New()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		pctx.Cancel(sig)
	}()

	if *scenarioPath != "" && *duration > 0 {
		runBatch(pctx, *scenarioPath, *duration, *exportPath)
		return
	}

	repl, err := cli.New()
	if err != nil {
		logging.FatalIfError(err)
	}
	pctx.Defer(func() { repl.Close() })
	repl.Run()
	pctx.Cancel(nil)
}

func runBatch(pctx *progctx.ProgCtx, scenarioPath string, duration uint64, exportPath string) {
	sc, err := config.Load(scenarioPath)
	if err != nil {
		logging.FatalIfError(err)
	}
	s, err := sim.New(sc.Build())
	if err != nil {
		logging.FatalIfError(err)
	}
	s.SpawnAll()
	s.RunUntil(duration)
	s.CheckInvariants()
	pctx.Cancel(nil)

	if exportPath != "" {
		if err := report.ExportFile(exportPath, s.Nodes()); err != nil {
			logging.FatalIfError(err)
		}
		fmt.Fprintf(os.Stdout, "wrote %s\n", exportPath)
		return
	}

	if err := report.WriteCSV(os.Stdout, report.Summarize(s.Nodes())); err != nil {
		logging.FatalIfError(err)
	}
}
