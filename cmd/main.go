package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"

	"autotrader/src/executors"
)

var Version string

func main() {
	initLogging()

	app := cli.NewApp()
	app.Name = "Autotrader CMD"
	app.Usage = "The autotrader command line interface"
	app.Version = Version

	app.Commands = []cli.Command{
		runCMD,
		scanCMD,
		statusCMD,
		resumeCMD,
	}

	if err := app.Run(os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var (
	runCMD = cli.Command{
		Name:        "run",
		Usage:       "run the trading loop",
		Action:      runAction,
		ArgsUsage:   "",
		Flags:       []cli.Flag{},
		Description: `Run the scan, risk and expiry loops until interrupted`,
	}
	scanCMD = cli.Command{
		Name:        "scan",
		Usage:       "run one scan cycle",
		Action:      scanAction,
		ArgsUsage:   "",
		Flags:       []cli.Flag{},
		Description: `Run one synchronous signal-scan cycle and exit`,
	}
	statusCMD = cli.Command{
		Name:        "status",
		Usage:       "show portfolio status",
		Action:      statusAction,
		ArgsUsage:   "",
		Flags:       []cli.Flag{},
		Description: `Print open positions, drawdown and the paused flag`,
	}
	resumeCMD = cli.Command{
		Name:        "resume",
		Usage:       "resume paused trading",
		Action:      resumeAction,
		ArgsUsage:   "",
		Flags:       []cli.Flag{},
		Description: `Operator action: clear a risk-manager pause`,
	}
)

func initLogging() {
	level, err := logrus.ParseLevel(getenv("LOG_LEVEL", "info"))
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func runAction(_ *cli.Context) error {
	logrus.Info("Starting run CMD")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := executors.StartLoop(ctx); err != nil {
		logrus.WithError(err).Error("Starting cmd")
		return err
	}
	return nil
}

func scanAction(_ *cli.Context) error {
	logrus.Info("Starting scan CMD")

	if err := executors.RunScan(context.Background()); err != nil {
		logrus.WithError(err).Error("Starting cmd")
		return err
	}
	return nil
}

func statusAction(_ *cli.Context) error {
	if err := executors.ShowStatus(context.Background()); err != nil {
		logrus.WithError(err).Error("Starting cmd")
		return err
	}
	return nil
}

func resumeAction(_ *cli.Context) error {
	if err := executors.Resume(context.Background()); err != nil {
		logrus.WithError(err).Error("Starting cmd")
		return err
	}
	return nil
}
