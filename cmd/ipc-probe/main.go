// ABOUTME: Diagnostic tool for the Discord IPC socket and LAN bridges
// ABOUTME: Performs the handshake and prints READY, or lists bridges via mDNS
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/bitfocus/companion-module-discord-api/internal/discovery"
	"github.com/bitfocus/companion-module-discord-api/pkg/ipc"
	"github.com/spf13/pflag"
)

var (
	clientID = pflag.String("client-id", os.Getenv("DISCORD_BRIDGE_CLIENT_ID"), "Discord application client id")
	timeout  = pflag.Duration("timeout", 5*time.Second, "How long to wait for READY or mDNS answers")
	find     = pflag.Bool("find", false, "List bridges advertised on the local network instead")
	debug    = pflag.Bool("debug", false, "Log every frame")
)

func main() {
	pflag.Parse()
	log.SetFlags(log.Ltime | log.Lmicroseconds)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if *find {
		findBridges(ctx)
		return
	}

	if *clientID == "" {
		log.Fatalf("--client-id is required")
	}

	fmt.Println("=== Discord IPC Probe ===")
	for _, ep := range ipc.Endpoints() {
		fmt.Printf("  candidate: %s\n", ep)
	}
	fmt.Println()

	ready := make(chan json.RawMessage, 1)
	session, err := ipc.Open(ctx, ipc.SessionConfig{
		ClientID: *clientID,
		Debug:    *debug,
		OnMessage: func(msg json.RawMessage) {
			var head struct {
				Cmd string `json:"cmd"`
				Evt string `json:"evt"`
			}
			if json.Unmarshal(msg, &head) == nil && head.Cmd == "DISPATCH" && head.Evt == "READY" {
				select {
				case ready <- msg:
				default:
				}
			}
		},
	})
	if err != nil {
		log.Fatalf("Connect failed: %v", err)
	}
	fmt.Printf("Connected to %s\n", session.Endpoint())

	select {
	case msg := <-ready:
		fmt.Printf("READY: %s\n", msg)
	case <-session.Disconnected():
		log.Printf("Disconnected before READY: %v", session.Err())
	case <-ctx.Done():
		log.Printf("No READY within %s", *timeout)
	}

	closeCtx, done := context.WithTimeout(context.Background(), 2*time.Second)
	defer done()
	if err := session.Close(closeCtx); err != nil {
		log.Printf("Close: %v", err)
	}
}

func findBridges(ctx context.Context) {
	bridges, err := discovery.Browse(ctx, *timeout)
	if err != nil {
		log.Fatalf("Browse failed: %v", err)
	}
	if len(bridges) == 0 {
		fmt.Println("No bridges found")
		return
	}
	for _, b := range bridges {
		fmt.Printf("%s\t%s:%d\t%v\n", b.Name, b.Host, b.Port, b.Info)
	}
}
