package main

import (
	"log"

	"stream-clipper/internal/bootstrap"
	"stream-clipper/internal/config"
	"stream-clipper/internal/platform/logger"
)

func main() {
	_ = config.LoadEnv()
	appLog := logger.New(config.GetEnv(config.EnvLogLevel, "info"), config.GetEnv(config.EnvLogFormat, "text"))

	app, err := bootstrap.New(appLog)
	if err != nil {
		log.Fatalf("bootstrap app: %v", err)
	}

	if err := app.Run(); err != nil {
		log.Fatalf("run app: %v", err)
	}
}
