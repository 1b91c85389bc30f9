package main

import (
	"errors"
	"io/fs"

	"asphalt/cmd/asphalt/commands"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
)

func main() {
	// .env 先于环境变量读取，已有的环境变量不会被覆盖
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.WithError(err).Warn("failed to load .env")
	}

	if err := commands.Execute(); err != nil {
		log.Fatal(err)
	}
}
