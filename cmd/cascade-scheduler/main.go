package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/cascadehq/cascade/pkg/cmd"
	"github.com/cascadehq/cascade/pkg/log"
	"github.com/cascadehq/cascade/pkg/scheduler"
	"github.com/cascadehq/cascade/pkg/triggers/queue"
	cli "github.com/urfave/cli/v3"
)

func main() {
	command := &cli.Command{
		Name:                  "cascade-scheduler",
		Usage:                 "Fire schedule and queue triggered workflows",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for persistence",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus type (kafka, gochannel)",
				Value:   "kafka",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:    "redis-addr",
				Usage:   "Redis address for the queue trigger (empty disables it)",
				Value:   "",
				Sources: cli.EnvVars("REDIS_ADDR"),
			},
			&cli.StringFlag{
				Name:    "trigger-queue",
				Usage:   "Redis list the queue trigger consumes",
				Value:   queue.DefaultQueue,
				Sources: cli.EnvVars("TRIGGER_QUEUE"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: run,
	}

	err := command.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}

func run(ctx context.Context, command *cli.Command) error {
	log.Setup(command.String("log-level"))

	logger := log.WithModule("cascade-scheduler")
	logger.InfoContext(ctx, "Initializing scheduler")

	store, err := cmd.NewPersistence(ctx, logger, command.String("database-url"))
	if err != nil {
		return err
	}

	defer func() {
		err := store.Close(ctx)
		if err != nil {
			logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
		}
	}()

	eventBus, err := cmd.NewEventBus(command.String("event-bus"), "cascade-scheduler", logger)
	if err != nil {
		return err
	}

	defer func() {
		err := eventBus.Close()
		if err != nil {
			logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
		}
	}()

	sched := scheduler.New(store, eventBus, logger)

	err = sched.Start(ctx)
	if err != nil {
		return err
	}

	var queueTrigger *queue.Trigger

	if addr := command.String("redis-addr"); addr != "" {
		queueTrigger, err = queue.NewTrigger(queue.Config{
			Addr:  addr,
			Queue: command.String("trigger-queue"),
		}, eventBus, logger)
		if err != nil {
			return err
		}

		err = queueTrigger.Start(ctx)
		if err != nil {
			return err
		}
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	<-sigChan
	logger.InfoContext(ctx, "Shutting down scheduler")

	if queueTrigger != nil {
		err := queueTrigger.Stop(ctx)
		if err != nil {
			logger.ErrorContext(ctx, "Failed to stop queue trigger", "error", err)
		}
	}

	return sched.Stop(ctx)
}
