package v1

import (
	"bufio"
	"encoding/json"
	"fmt"
	"time"

	"github.com/karloscodes/cartridge"
)

const streamKeepAliveInterval = 25 * time.Second

// StreamHandler serves the live activity feed over server-sent events.
// Each hub message becomes one SSE event; a comment line goes out
// periodically to keep proxies from closing the idle connection.
func (a *API) StreamHandler(ctx *cartridge.Context) error {
	project, err := a.resolveProject(ctx)
	if err != nil {
		return handleError(ctx.Ctx, err)
	}

	ctx.Set("Content-Type", "text/event-stream")
	ctx.Set("Cache-Control", "no-cache")
	ctx.Set("Connection", "keep-alive")
	ctx.Set("X-Accel-Buffering", "no")

	hub := a.collector.Hub()
	projectID := project.ID

	ctx.Ctx.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		sub := hub.Subscribe(projectID)
		defer hub.Unsubscribe(sub)

		keepAlive := time.NewTicker(streamKeepAliveInterval)
		defer keepAlive.Stop()

		for {
			select {
			case msg, open := <-sub.C:
				if !open {
					return
				}
				data, err := json.Marshal(msg)
				if err != nil {
					continue
				}
				if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", msg.Type, data); err != nil {
					return
				}
				if err := w.Flush(); err != nil {
					return
				}
			case <-keepAlive.C:
				if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
					return
				}
				if err := w.Flush(); err != nil {
					return
				}
			}
		}
	})

	return nil
}
