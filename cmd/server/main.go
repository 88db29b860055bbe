package main

import (
	"github.com/arborlabs/arbor/backend/internal/server"
	"github.com/arborlabs/arbor/backend/internal/util"
	"github.com/arborlabs/arbor/backend/pkg/logger"
	"github.com/arborlabs/arbor/backend/pkg/logger/console"

	_ "github.com/lib/pq"
)

func main() {
	util.LoadEnv()

	debug := util.GetEnvBool("DEBUG", false)

	consoleLogger := console.NewConsoleLogger(console.ConsoleLoggerParams{
		Debug: debug,
	})
	logger.Init(consoleLogger)

	server.Init()
}
