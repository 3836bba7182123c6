// Command trawlerd runs the match ingestion daemon directly, without the
// trawler CLI wrapper. Deployment units that only ever run the daemon can
// ship this binary alone.
package main

import (
	"context"
	"log"

	"trawler/internal/config"
	"trawler/internal/daemonrun"
)

func main() {
	cfg, _, _, err := config.Load("")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := daemonrun.Run(context.Background(), cfg, daemonrun.Options{}); err != nil {
		log.Fatalf("trawlerd: %v", err)
	}
}
