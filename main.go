package main

import (
	"context"
	"os/signal"
	"syscall"

	charla "github.com/charla-app/charla/app"
)

func main() {
	ctx, _ := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT, syscall.SIGHUP)

	config, err := charla.LoadConfig()
	if err != nil {
		panic(err)
	}

	app := charla.New(ctx, config)
	app.Start()
}
