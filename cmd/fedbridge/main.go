// Command fedbridge runs the federation bridge server: it serves ActivityPub
// actors and inboxes for IndieWeb domains, accepts outbound Webmentions, and
// translates between the two worlds.
package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/heartmarshall/fedbridge/internal/app"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx); err != nil {
		log.Fatalf("fedbridge: %v", err)
	}
}
