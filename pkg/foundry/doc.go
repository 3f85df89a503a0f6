// Package foundry connects an MCP server to a Foundry VTT world.
//
// A Client logs in over HTTP, opens the world's Socket.IO channel bound to
// the session token and keeps it alive. On top of the session it offers
// generic document mutation (modifyDocument) with a single retry after
// transport faults, raw socket helpers, file upload and an out-of-band
// RPC channel to a companion module running inside a GM's browser.
//
// Basic usage:
//
//	client, err := foundry.NewClient(foundry.Config{
//		BaseURL:  "http://localhost:30000",
//		UserID:   "gm-user-id",
//		Password: "secret",
//	})
//	if err != nil {
//		return err
//	}
//	defer client.Close()
//
//	actors, err := client.Gateway().Get(ctx, documents.Actor, documents.Operation{})
package foundry
