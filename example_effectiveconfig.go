package main

import (
	"fmt"
	"log"

	"github.com/jensmonne/RSS-webhook/internal/config"
)

func main() {
	// Example YAML configuration
	yamlConfig := `
log:
  level: info
  format: text

state:
  dir: ./state
  retention: 500

defaults:
  interval: 5m
  timeout: 20s
  format: discord
  backfill: 3
  pacing: 1s

retry:
  attempts: 5
  base_delay: 1s
  max_delay: 30s
  jitter: 500ms

metrics:
  enabled: true
  listen: ":9091"

feeds:
  - name: arch-news
    url: https://archlinux.org/feeds/news/
    webhook: https://discord.com/api/webhooks/123/abc
    color: 1791981
    username: Arch Linux Bot

  - name: arch-core-packages
    url: https://archlinux.org/feeds/packages/x86_64/core/
    webhook: https://discord.com/api/webhooks/123/abc
    schedule: "*/15 * * * *"
    filter: 'title.value contains "linux"'

  - name: release-notes
    url: https://example.com/releases.atom
    webhook: https://hooks.example.com/generic
    format: json
    interval: 1h
    retry:
      attempts: 8
`

	// Parse the YAML into the validated document
	doc, err := config.Parse([]byte(yamlConfig))
	if err != nil {
		log.Fatalf("Failed to parse config: %v", err)
	}

	// Display the effective per-feed settings after defaults and overrides
	fmt.Printf("State: %s (retention %d records per feed)\n", doc.State.Dir, doc.State.Retention)
	fmt.Printf("\nFeeds (%d):\n", len(doc.Feeds))
	fmt.Printf("%-22s %-14s %-9s %-8s %s\n", "Name", "Trigger", "Format", "Retries", "Filter")
	fmt.Printf("%-22s %-14s %-9s %-8s %s\n", "----", "-------", "------", "-------", "------")

	for _, f := range doc.Feeds {
		schedule := doc.IntervalFor(f).String()
		if f.Schedule != "" {
			schedule = f.Schedule
		}
		rule := f.Filter
		if rule == "" {
			rule = "-"
		}
		fmt.Printf("%-22s %-14s %-9s %-8d %s\n", f.Name, schedule, doc.FormatFor(f), doc.RetryFor(f).Attempts, rule)
	}
}
