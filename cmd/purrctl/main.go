package main

import (
	"os"

	"github.com/sirupsen/logrus"

	"github.com/CharanSaiVaddi/purrctl/internal/config"
	"github.com/CharanSaiVaddi/purrctl/internal/storage"
)

func main() {
	path := config.DefaultPath
	if p := os.Getenv("PURR_CONFIG"); p != "" {
		path = p
	}
	cfg, err := config.Load(path)
	if err != nil {
		logrus.WithError(err).Fatal("failed to load config")
	}
	if err := cfg.ApplyEnv(".env"); err != nil {
		logrus.WithError(err).Fatal("failed to apply environment")
	}
	log := newLogger(cfg.LogLevel)

	store := storage.NewSQLiteStorage()
	if err := store.Init(cfg.DBPath); err != nil {
		log.WithError(err).Fatal("failed to init storage")
	}

	err = Execute(path, cfg, store, log)
	store.Close()
	if err != nil {
		os.Exit(1)
	}
}

func newLogger(level string) *logrus.Entry {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	l.SetLevel(lvl)
	return logrus.NewEntry(l).WithField("app", "purrctl")
}
