package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/kenkoooo/AtCoderProblems-sub000/app/query"
	"github.com/kenkoooo/AtCoderProblems-sub000/pkg/utils"
)

func main() {
	if err := utils.LoadDotEnv(); err != nil {
		fmt.Fprintln(os.Stderr, "load .env:", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	app := query.Initialize(ctx)

	app.Start(ctx)
}
