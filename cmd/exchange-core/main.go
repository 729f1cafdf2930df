// Command exchange-core boots the matching core's pipeline: WAL, UBSCore,
// matching engine, and Settlement, wired by the five named ring buffers.
// It is a minimal bootstrap, not a client-facing gateway — HTTP/WebSocket
// ingress, auth, and CLI tooling are out of scope for this core; wire it
// into a gateway process by calling pipeline.Runner.Submit /
// pipeline.Runner.SubmitCancel from wherever that gateway decodes requests.
package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/rishav/exchange-core/internal/balance"
	"github.com/rishav/exchange-core/internal/config"
	"github.com/rishav/exchange-core/internal/marketdata"
	"github.com/rishav/exchange-core/internal/matching"
	"github.com/rishav/exchange-core/internal/pipeline"
	"github.com/rishav/exchange-core/internal/risk"
	"github.com/rishav/exchange-core/internal/settlement"
	"github.com/rishav/exchange-core/internal/wal"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file (optional)")
	flag.Parse()

	log := zerolog.New(zerolog.NewConsoleWriter()).With().Timestamp().Logger()

	reg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	walog, err := wal.Open(wal.Config{
		Path:                 reg.WAL.Path,
		FlushIntervalEntries: reg.WAL.FlushIntervalEntries,
		SyncOnFlush:          reg.WAL.SyncOnFlush,
	}, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open WAL")
	}
	defer walog.Close()

	bal := balance.NewCore(reg, log)
	eng := matching.NewEngine(reg)

	pub := marketdata.NewPublisher(256)
	defer pub.Close()

	sett, err := settlement.New(settlement.Config{
		TradeLedgerPath:   "trades.csv",
		BalanceLedgerPath: "balances.csv",
	}, pub, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open settlement ledgers")
	}
	defer sett.Close()

	lastSeq, err := pipeline.Recover(reg.WAL.Path, bal, eng, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to replay WAL on startup")
	}
	if lastSeq > 0 {
		log.Info().Uint64("last_seq", lastSeq).Msg("recovered state from WAL")
	}

	riskChecker := risk.NewChecker(risk.DefaultConfig())

	runner := pipeline.New(reg, log, walog, bal, eng, sett, riskChecker)
	runner.SetSeqCounter(lastSeq)
	runner.Start()

	log.Info().Msg("exchange-core pipeline started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info().Msg("shutting down")
	runner.Shutdown()
}
