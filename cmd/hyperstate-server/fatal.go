package main

import (
	"context"
	"os"

	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
)

func fatal(ctx context.Context, msg string, err error) {
	logger := logging.GetFromContext(ctx)
	logger.Error(msg, "err", err.Error())
	os.Exit(1)
}
