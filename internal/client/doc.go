// Package client is the session object application code talks to.
//
// A Client owns a link chain, a normalized store and a hydrator. Queries
// and mutations flow through the chain; their lifecycle is recorded in the
// store with init, result and error actions; reads come back from the
// store, optionally hydrated.
//
// Lifecycle:
//
//	c, err := client.New(
//	    client.WithLinks(transport.Link(stack)),
//	    client.WithSchema(s),
//	    client.WithIdentity(metadata.Identity{Slug: "todos", Version: "1.2.0"}),
//	    client.WithAuthenticator(stack),
//	)
//	err = c.Login(ctx, nil)
//	resp, err := c.Query(ctx, query.Q("io.cozy.todos").Include("authors"))
//	_, err = c.Save(ctx, doc)
//	c.Logout(ctx)
//
// Thread-safety: a Client is safe for concurrent use. Operations under
// different names are not ordered relative to each other.
package client
