// ddos-radar-watch - Terminal follower for a running ddos-radar console.
//
// It subscribes to the console websocket and prints each view update as a
// table and each detector event as a log line.
//
// Usage:
//
//	ddos-radar-watch -url=ws://localhost:8080/ws -search=10.0 -status=ddos_detected
package main

import (
	"encoding/json"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hervehildenbrand/ddos-radar/pkg/feed"
	"github.com/hervehildenbrand/ddos-radar/pkg/render"
	"github.com/hervehildenbrand/ddos-radar/pkg/view"
)

var (
	urlFlag    = flag.String("url", "", "Console websocket URL")
	searchFlag = flag.String("search", "", "Traffic search filter")
	statusFlag = flag.String("status", "", "Traffic status filter (ddos_detected, flagged, safe)")
	eventsOnly = flag.Bool("events", false, "Only print detector events")
)

func main() {
	flag.Parse()

	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)

	url := *urlFlag
	if url == "" {
		url = os.Getenv("DDOS_RADAR_WATCH_URL")
	}
	if url == "" {
		url = "ws://localhost:8080/ws"
	}

	updates := make(chan feed.Update, 100)
	client := feed.NewClient(url, updates)
	client.Start()

	filter := view.Filter{Search: *searchFlag, Status: *statusFlag}
	wantFilter := filter.Normalized() != (view.Filter{}).Normalized()

	go func() {
		for u := range updates {
			now := time.Now()
			switch {
			case u.Event != nil:
				data, _ := json.Marshal(u.Event)
				log.Printf("EVENT: %s", data)
			case *eventsOnly:
			case u.Traffic != nil:
				// Each connection starts on the console's filter; apply ours.
				if wantFilter && !feed.FilterApplied(*u.Traffic, filter) {
					if err := client.SetTrafficFilter(filter); err != nil {
						log.Printf("Failed to set traffic filter: %v", err)
					}
					continue
				}
				render.Traffic(os.Stdout, *u.Traffic, now)
			case u.Summary != nil:
				render.Summary(os.Stdout, *u.Summary, now)
			case u.Blacklist != nil:
				render.Blacklist(os.Stdout, u.Blacklist, now)
			case u.Notifications != nil:
				render.Notifications(os.Stdout, u.Notifications, now)
			}
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	client.Stop()
	close(updates)
	log.Printf("Final stats: %v", client.Stats())
}
