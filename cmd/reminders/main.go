package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/ManuelReschke/FormFox/internal/pkg/cache"
	"github.com/ManuelReschke/FormFox/internal/pkg/database"
	"github.com/ManuelReschke/FormFox/internal/pkg/env"
	"github.com/ManuelReschke/FormFox/internal/pkg/jobqueue"
)

// Runs the cancel-reminder sweep once. Alert mail is queued in Redis and
// delivered by the workers of the running server.
func main() {
	at := flag.String("at", "", "evaluate as of this RFC3339 time instead of now")
	flag.Parse()

	env.SetupEnvFile()
	database.SetupDatabase()
	cache.SetupCache()

	now := time.Now()
	if *at != "" {
		parsed, err := time.Parse(time.RFC3339, *at)
		if err != nil {
			log.Fatalf("Invalid -at value: %v", err)
		}
		now = parsed
	}

	reminders, err := jobqueue.GetManager().RunReminderSweepOnce(context.Background(), now)
	if err != nil {
		log.Fatalf("Reminder sweep failed: %v", err)
	}

	if len(reminders) == 0 {
		log.Println("No schools with a pending cancellation")
		return
	}
	for _, r := range reminders {
		fmt.Printf("%s\t%s\t%s\t%s\n", r.Slug, r.Name, r.Kind, r.EffectiveAt.Format(time.RFC3339))
	}
}
