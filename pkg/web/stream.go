package web

import (
	"bufio"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cajasmota/zeroclaw-squads-sub001/pkg/broadcast"
	"github.com/gofiber/fiber/v3"
	"github.com/valyala/fasthttp"
)

const defaultKeepAlive = 15 * time.Second

// ProjectEvents streams a project's notifications as Server-Sent Events. The
// connection joins the project topic and leaves it when the client goes away.
func (h *APIHandlers) ProjectEvents(c fiber.Ctx) error {
	projectID := c.Params("projectId")
	if projectID == "" {
		return badRequest(c, "Project ID is required")
	}

	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	sub := h.broadcaster.Join(projectID)
	logger := h.logger.With("project_id", projectID)
	logger.Debug("event stream opened", "subscribers", h.broadcaster.Subscribers(projectID))

	c.RequestCtx().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		defer func() {
			h.broadcaster.Leave(sub)
			logger.Debug("event stream closed", "subscribers", h.broadcaster.Subscribers(projectID))
		}()

		h.stream(w, sub)
	}))

	return nil
}

func (h *APIHandlers) stream(w *bufio.Writer, sub *broadcast.Subscription) {
	ticker := time.NewTicker(h.keepAlive)
	defer ticker.Stop()

	if err := writeComment(w, "connected"); err != nil {
		return
	}

	for {
		select {
		case <-h.done:
			return
		case msg, ok := <-sub.Events():
			if !ok {
				return
			}

			if err := writeEvent(w, msg); err != nil {
				return
			}
		case <-ticker.C:
			if err := writeComment(w, "keep-alive"); err != nil {
				return
			}
		}
	}
}

func writeEvent(w *bufio.Writer, msg broadcast.Message) error {
	data, err := json.Marshal(msg.Payload)
	if err != nil {
		return err
	}

	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", msg.Name, data)
	if err != nil {
		return err
	}

	return w.Flush()
}

func writeComment(w *bufio.Writer, text string) error {
	_, err := fmt.Fprintf(w, ": %s\n\n", text)
	if err != nil {
		return err
	}

	return w.Flush()
}
