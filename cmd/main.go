package main

import (
	"context"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"

	"workflowengine/cmd/engine"
	"workflowengine/cmd/keys"
	"workflowengine/src/database"
	"workflowengine/src/reconciler"
	"workflowengine/src/repository"
)

var Version string

func main() {
	app := cli.NewApp()
	app.Name = "Workflow Engine CMD"
	app.Usage = "The workflow engine command line interface"

	app.Commands = []cli.Command{
		engineCMD,
		reconcileCMD,
		keysCMD,
	}

	if err := app.Run(os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var (
	engineCMD = cli.Command{
		Name:        "engine",
		Usage:       "run the workflow engine",
		Action:      engineAction,
		ArgsUsage:   "",
		Flags:       []cli.Flag{},
		Description: `Run the review scheduler, the reconciler and the HTTP surface`,
	}
	reconcileCMD = cli.Command{
		Name:        "reconcile",
		Usage:       "run one reconciliation sweep",
		Action:      reconcileAction,
		ArgsUsage:   "",
		Flags:       []cli.Flag{},
		Description: `Align the local order ledger with exchange state once, then exit`,
	}
	keysCMD = cli.Command{
		Name:        "keys",
		Usage:       "manage workflow exchange credentials",
		Action:      keysAction,
		ArgsUsage:   "",
		Flags:       []cli.Flag{},
		Description: `Interactive CLI for storing encrypted exchange credentials`,
	}
)

func engineAction(_ *cli.Context) error {

	logrus.Info("Starting engine CMD")
	logrus.WithField("cmd", "engine")

	e := &engine.Engine{}
	err := e.Start()
	if err != nil {
		logrus.WithError(err).Error("Starting cmd")
		return err
	}

	return nil
}

// reconcileAction performs a single sweep, useful after a crash or before a
// deploy.
func reconcileAction(_ *cli.Context) error {

	logrus.Info("Starting reconcile CMD")
	if err := database.InitMainDB(); err != nil {
		logrus.WithError(err).Fatal("Failed to connect to database")
	}

	config := engine.GetConfig()
	rec := reconciler.NewReconciler(
		repository.NewLimitOrderRepository(),
		repository.NewWorkflowRepository(),
		engine.ResolveGateway,
		config.ReconcileWorkers,
	)

	if err := rec.Sweep(context.Background()); err != nil {
		logrus.WithError(err).Error("Reconciliation sweep failed")
		return err
	}

	return nil
}

func keysAction(_ *cli.Context) error {

	logrus.Info("Starting keys CMD")
	logrus.WithField("cmd", "keys")

	if err := keys.Run(); err != nil {
		logrus.WithError(err).Error("Starting cmd")
		return err
	}

	return nil
}
