package main

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jkbrsn/httpscope"
	"github.com/jkbrsn/httpscope/pkg/collector"
)

func main() {
	// The collector stores every measurement and every transport failure
	coll := collector.New()

	// The tracker pairs request starts with their completion and emits measurements
	tracker := httpscope.NewTracker(coll,
		httpscope.WithExceptionSink(coll),
		httpscope.WithFields(httpscope.ExtendedFields()),
	)

	client, err := httpscope.NewClient([]httpscope.Subscriber{tracker},
		httpscope.WithTimeouts(httpscope.Timeouts{Total: 10 * time.Second}))
	if err != nil {
		fmt.Printf("Error creating client: %v\n", err)
		return
	}

	for _, req := range httpBinRequests() {
		resp, err := client.Do(req)
		if err != nil {
			fmt.Printf("Error sending request: %v\n", err)
			continue
		}
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}

	for _, m := range coll.Measures() {
		fmt.Printf("%s\n", m.Label)
		fmt.Printf("  Duration:   %v\n", m.Duration())
		fmt.Printf("  Parameters: %v\n", m.Parameters)
		if m.Timing != nil {
			fmt.Printf("  Latency:    %v\n", m.Timing.Latency)
			if m.Timing.TLSHandshake != nil {
				fmt.Printf("  TLS:        %v\n", *m.Timing.TLSHandshake)
			}
		}
		fmt.Println()
	}
	for _, err := range coll.Exceptions() {
		fmt.Printf("Exception: %v\n", err)
	}
}

func httpBinRequests() []*http.Request {
	get, _ := http.NewRequest(http.MethodGet, "https://httpbin.org/get", nil)

	post, _ := http.NewRequest(http.MethodPost, "https://httpbin.org/post", strings.NewReader("Hello, World!"))
	post.Header.Add("Content-Type", "text/plain")

	teapot, _ := http.NewRequest(http.MethodGet, "https://httpbin.org/status/418", nil)

	unreachable, _ := http.NewRequest(http.MethodGet, "https://unreachable.invalid/", nil)

	return []*http.Request{get, post, teapot, unreachable}
}
