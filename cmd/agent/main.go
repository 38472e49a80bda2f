package main

import (
	"context"
	"log"

	"github.com/owlivion-tech/owlivion-mail-sync/internal/client"
	"github.com/owlivion-tech/owlivion-mail-sync/internal/client/config"
)

func main() {

	ctx := context.Background()
	cfg := config.LoadConfig()
	app, err := client.NewApp(cfg)

	if err != nil {
		log.Printf("%v", err)
		return
	}

	app.Run(ctx)

}
