// Package sse delivers session events to browsers over Server-Sent Events.
//
// A Hub routes events to clients whose ID matches a glob pattern. Session
// subscribers register as "session:<id>:<client>" so publishing to
// "session:<id>:*" reaches every tab watching that session:
//
//	hub := sse.NewHub()
//	go hub.Run()
//	hub.Publish("session:"+id+":*", sse.Event{Name: "partial", Data: payload})
//
// ServeSSE streams one client's events over an HTTP response with periodic
// keep-alive comments.
package sse
