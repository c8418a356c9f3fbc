// ABOUTME: Discord local RPC client package
// ABOUTME: Authentication, request correlation and voice event handling
// Package rpc implements the Discord local RPC protocol on top of an IPC
// session.
//
// A Client connects, authorizes through OAuth, subscribes to voice events
// and mirrors what it learns into a voice.Store. Responses are matched to
// requests by nonce on the session's reader goroutine; everything else is
// queued and handled in arrival order by a single event worker, so event
// handlers may issue requests of their own.
//
// Example:
//
//	client, err := rpc.New(rpc.Config{
//	    ClientID:     "123456789012345678",
//	    ClientSecret: "...",
//	    TokenStore:   store,
//	})
//	client.Start()
//	defer client.Destroy(ctx)
package rpc
