package main

import (
	"context"
	"fmt"

	"companioncare/config"
	"companioncare/pkg/logger"
	"companioncare/storage/postgres"
)

func main() {
	cfg := config.Load()
	log := logger.New(cfg.ServiceName, cfg.LoggerLevel)

	pg, err := postgres.New(context.Background(), cfg, log)
	if err != nil {
		panic(err)
	}
	defer pg.Close()

	// CASCADE also clears claims and reviews that reference the other tables.
	_, err = pg.GetPool().Exec(context.Background(), "TRUNCATE TABLE parties, service_requests, claims, reviews CASCADE")
	if err != nil {
		log.Error(fmt.Sprintf("failed to truncate tables: %v", err))
	} else {
		log.Info("truncated parties, service_requests, claims and reviews")
	}
}
