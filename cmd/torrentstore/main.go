package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "torrentstore/notify/kafka"
	_ "torrentstore/notify/stdout"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}
