// cmd/preflight/main.go
package main

import (
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/hamed0406/safezone/internal/config"
	"github.com/hamed0406/safezone/internal/domain"
	"github.com/hamed0406/safezone/internal/geofence"
)

func main() {
	failed := false
	fail := func(msg string) {
		fmt.Fprintln(os.Stderr, "✖", msg)
		failed = true
	}
	warn := func(msg string) { fmt.Fprintln(os.Stderr, "⚠", msg) }
	ok := func(msg string) { fmt.Println("✔", msg) }

	cfg := config.FromEnv()

	if len(cfg.AdminAPIKeys) == 0 && len(cfg.PublicAPIKeys) == 0 {
		warn("no API keys set; the inspection API is open to anyone who can reach " + cfg.Addr)
	} else if len(cfg.AdminAPIKeys) == 0 {
		warn("ADMIN_API_KEYS is empty (mutating routes will 401).")
	}
	for name, v := range map[string]string{"ADMIN_API_KEYS": os.Getenv("ADMIN_API_KEYS"), "PUBLIC_API_KEYS": os.Getenv("PUBLIC_API_KEYS")} {
		if strings.Contains(v, " ") {
			warn(name + " contains spaces; use comma-separated with no spaces, e.g. key1,key2")
		}
	}
	ok("API_ADDR=" + cfg.Addr)

	switch cfg.StoreDriver {
	case "badger":
		ok("STORE_DRIVER=badger at " + cfg.BadgerPath)
	case "memory":
		warn("STORE_DRIVER=memory; queued SOS alerts will not survive a restart.")
	case "postgres":
		if cfg.DatabaseURL == "" {
			fail("STORE_DRIVER=postgres but DATABASE_URL is empty.")
		} else {
			ok("DATABASE_URL present")
		}
	case "redis":
		ok("STORE_DRIVER=redis at " + cfg.RedisAddr)
	default:
		fail("STORE_DRIVER must be one of memory, badger, postgres, redis; got " + cfg.StoreDriver)
	}

	if cfg.GeofenceFile == "" {
		warn("GEOFENCE_FILE empty; only zones already in the store will be monitored.")
	} else if zones, err := geofence.ReadZoneFile(cfg.GeofenceFile); err != nil {
		fail("GEOFENCE_FILE: " + err.Error())
	} else {
		high := 0
		for _, z := range zones {
			if z.RiskLevel == domain.RiskHigh {
				high++
			}
		}
		ok(fmt.Sprintf("GEOFENCE_FILE has %d zones (%d high-risk)", len(zones), high))
	}

	if cfg.MQTTBroker == "" {
		warn("MQTT_BROKER empty; location stays unknown and no transitions will fire.")
	} else {
		ok("MQTT_BROKER=" + cfg.MQTTBroker + " topic=" + cfg.MQTTLocationTopic)
	}

	checkURL := func(name, v string, required string) {
		if v == "" {
			warn(name + " empty; " + required)
			return
		}
		u, err := url.ParseRequestURI(v)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			fail(name + " is not an http(s) URL: " + v)
			return
		}
		ok(name + "=" + v)
	}
	checkURL("SOS_API_BASE", cfg.SOSAPIBase, "SOS alerts will only be queued.")
	checkURL("SMS_GATEWAY_URL", cfg.SMSGatewayURL, "SMS messages will only be queued.")
	checkURL("PUSH_WEBHOOK", cfg.PushWebhook, "notifications go to the log only.")
	checkURL("CONNECTIVITY_PROBE_URL", cfg.ConnectivityProbeURL, "connectivity must be toggled manually.")
	if cfg.SOSAPIBase != "" && cfg.SOSAPIToken == "" {
		warn("SOS_API_TOKEN empty; background SOS drains will fail until a token is supplied.")
	}

	if failed {
		os.Exit(1)
	}
	ok("preflight passed")
}
