// ABOUTME: Discord local IPC package
// ABOUTME: Framed transport and handshake session over the discord-ipc socket
// Package ipc implements the transport layer of Discord's local RPC.
//
// Frames are an 8-byte little-endian header (opcode, body length) followed
// by a JSON body. A Session dials the first reachable discord-ipc endpoint,
// sends the handshake and forwards every FRAME body to its owner.
//
// Example:
//
//	session, err := ipc.Open(ctx, ipc.SessionConfig{
//	    ClientID:  "123456789012345678",
//	    OnMessage: func(msg json.RawMessage) { ... },
//	})
//	err = session.Send(map[string]any{"cmd": "GET_GUILDS", "nonce": "..."})
//	err = session.Close(ctx)
package ipc
