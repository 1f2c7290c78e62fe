package config

import (
	"strings"
	"testing"
	"time"
)

func TestParseAppliesDefaults(t *testing.T) {
	data := []byte(`
feeds:
  - name: "news"
    url: "https://example.com/rss"
    webhook: "https://hooks.example.com/abc"
`)

	doc, err := Parse(data)
	if err != nil {
		t.Fatalf("Failed to parse document: %v", err)
	}

	if doc.Log.Level != "info" || doc.Log.Format != "text" {
		t.Errorf("unexpected log defaults: %+v", doc.Log)
	}
	if doc.State.Dir != DefaultStateDir {
		t.Errorf("expected state dir %q, got %q", DefaultStateDir, doc.State.Dir)
	}
	if doc.State.Retention != DefaultRetention {
		t.Errorf("expected retention %d, got %d", DefaultRetention, doc.State.Retention)
	}
	if doc.Defaults.Interval.Std() != DefaultInterval {
		t.Errorf("expected interval %v, got %v", DefaultInterval, doc.Defaults.Interval.Std())
	}
	if doc.Defaults.Timeout.Std() != DefaultTimeout {
		t.Errorf("expected timeout %v, got %v", DefaultTimeout, doc.Defaults.Timeout.Std())
	}
	if doc.Backfill() != DefaultBackfill {
		t.Errorf("expected backfill %d, got %d", DefaultBackfill, doc.Backfill())
	}
	if doc.Pacing() != DefaultPacing {
		t.Errorf("expected pacing %v, got %v", DefaultPacing, doc.Pacing())
	}
	if doc.Retry.Attempts != DefaultRetryAttempts {
		t.Errorf("expected %d retry attempts, got %d", DefaultRetryAttempts, doc.Retry.Attempts)
	}
	if doc.FormatFor(doc.Feeds[0]) != FormatDiscord {
		t.Errorf("expected default format discord, got %q", doc.FormatFor(doc.Feeds[0]))
	}
}

func TestParseExpandsEnvironmentReferences(t *testing.T) {
	t.Setenv("TEST_HOOK_URL", "https://hooks.example.com/secret")

	data := []byte(`
feeds:
  - name: "news"
    url: "https://example.com/rss"
    webhook: "${TEST_HOOK_URL}"
`)

	doc, err := Parse(data)
	if err != nil {
		t.Fatalf("Failed to parse document: %v", err)
	}
	if doc.Feeds[0].Webhook != "https://hooks.example.com/secret" {
		t.Errorf("expected env expansion, got %q", doc.Feeds[0].Webhook)
	}
}

func TestParseExtendedDurations(t *testing.T) {
	data := []byte(`
defaults:
  interval: "1d"
feeds:
  - name: "news"
    url: "https://example.com/rss"
    webhook: "https://hooks.example.com/abc"
    interval: "90s"
`)

	doc, err := Parse(data)
	if err != nil {
		t.Fatalf("Failed to parse document: %v", err)
	}
	if doc.Defaults.Interval.Std() != 24*time.Hour {
		t.Errorf("expected 24h default interval, got %v", doc.Defaults.Interval.Std())
	}
	if doc.IntervalFor(doc.Feeds[0]) != 90*time.Second {
		t.Errorf("expected 90s feed interval, got %v", doc.IntervalFor(doc.Feeds[0]))
	}
}

func TestValidateRequiresFeeds(t *testing.T) {
	_, err := Parse([]byte(`feeds: []`))
	if err == nil || !strings.Contains(err.Error(), "at least one feed") {
		t.Fatalf("expected missing-feeds error, got: %v", err)
	}
}

func TestValidateRejectsNonHTTPURL(t *testing.T) {
	data := []byte(`
feeds:
  - name: "news"
    url: "ftp://example.com/rss"
    webhook: "https://hooks.example.com/abc"
`)
	_, err := Parse(data)
	if err == nil || !strings.Contains(err.Error(), "http") {
		t.Fatalf("expected scheme error, got: %v", err)
	}
}

func TestValidateRejectsMissingWebhook(t *testing.T) {
	data := []byte(`
feeds:
  - name: "news"
    url: "https://example.com/rss"
`)
	_, err := Parse(data)
	if err == nil || !strings.Contains(err.Error(), "webhook") {
		t.Fatalf("expected webhook error, got: %v", err)
	}
}

func TestValidateRejectsIntervalWithSchedule(t *testing.T) {
	data := []byte(`
feeds:
  - name: "news"
    url: "https://example.com/rss"
    webhook: "https://hooks.example.com/abc"
    interval: "5m"
    schedule: "*/5 * * * *"
`)
	_, err := Parse(data)
	if err == nil || !strings.Contains(err.Error(), "mutually exclusive") {
		t.Fatalf("expected mutual-exclusion error, got: %v", err)
	}
}

func TestValidateRejectsBadSchedule(t *testing.T) {
	data := []byte(`
feeds:
  - name: "news"
    url: "https://example.com/rss"
    webhook: "https://hooks.example.com/abc"
    schedule: "every day at noon"
`)
	_, err := Parse(data)
	if err == nil || !strings.Contains(err.Error(), "invalid schedule") {
		t.Fatalf("expected schedule error, got: %v", err)
	}
}

func TestValidateRejectsBadFilter(t *testing.T) {
	data := []byte(`
feeds:
  - name: "news"
    url: "https://example.com/rss"
    webhook: "https://hooks.example.com/abc"
    filter: "title.value contains"
`)
	_, err := Parse(data)
	if err == nil || !strings.Contains(err.Error(), "invalid filter") {
		t.Fatalf("expected filter error, got: %v", err)
	}
}

func TestValidateRejectsUnknownFormat(t *testing.T) {
	data := []byte(`
feeds:
  - name: "news"
    url: "https://example.com/rss"
    webhook: "https://hooks.example.com/abc"
    format: "slack"
`)
	_, err := Parse(data)
	if err == nil || !strings.Contains(err.Error(), "format") {
		t.Fatalf("expected format error, got: %v", err)
	}
}

func TestValidateRejectsDuplicateNames(t *testing.T) {
	data := []byte(`
feeds:
  - name: "news"
    url: "https://example.com/rss"
    webhook: "https://hooks.example.com/abc"
  - name: "news"
    url: "https://example.org/rss"
    webhook: "https://hooks.example.com/def"
`)
	_, err := Parse(data)
	if err == nil || !strings.Contains(err.Error(), "duplicate name") {
		t.Fatalf("expected duplicate-name error, got: %v", err)
	}
}

func TestRetryForMergesFeedOverrides(t *testing.T) {
	data := []byte(`
retry:
  attempts: 5
  base_delay: "1s"
  max_delay: "30s"
feeds:
  - name: "news"
    url: "https://example.com/rss"
    webhook: "https://hooks.example.com/abc"
    retry:
      attempts: 2
`)

	doc, err := Parse(data)
	if err != nil {
		t.Fatalf("Failed to parse document: %v", err)
	}

	merged := doc.RetryFor(doc.Feeds[0])
	if merged.Attempts != 2 {
		t.Errorf("expected feed override of 2 attempts, got %d", merged.Attempts)
	}
	if merged.BaseDelay.Std() != time.Second {
		t.Errorf("expected inherited base delay 1s, got %v", merged.BaseDelay.Std())
	}
	if merged.MaxDelay.Std() != 30*time.Second {
		t.Errorf("expected inherited max delay 30s, got %v", merged.MaxDelay.Std())
	}
}
