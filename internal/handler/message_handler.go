package handler

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v3"

	"github.com/gtextsoft/LandlordNoAgent-sub001/internal/middleware"
	"github.com/gtextsoft/LandlordNoAgent-sub001/internal/port"
	"github.com/gtextsoft/LandlordNoAgent-sub001/internal/realtime"
	"github.com/gtextsoft/LandlordNoAgent-sub001/internal/service"
)

// heartbeatInterval keeps idle SSE connections from being reaped by proxies.
const heartbeatInterval = 25 * time.Second

// MessageHandler handles conversations, messages, and the realtime event
// stream.
type MessageHandler struct {
	messages *service.MessageService
	bus      *realtime.Bus
}

// NewMessageHandler creates a new message handler.
func NewMessageHandler(messages *service.MessageService, bus *realtime.Bus) *MessageHandler {
	return &MessageHandler{messages: messages, bus: bus}
}

// Register sets up messaging routes for any authenticated user.
func (h *MessageHandler) Register(api fiber.Router) {
	convos := api.Group("/conversations")
	convos.Get("/", h.List)
	convos.Post("/", h.Start)
	convos.Get("/:id/messages", h.Messages)
	convos.Post("/:id/messages", h.Send)

	api.Get("/events/stream", h.StreamEvents)
}

// Start opens (or returns) the conversation with a listing's landlord.
func (h *MessageHandler) Start(c fiber.Ctx) error {
	snap := middleware.GetSnapshot(c)

	var body struct {
		ListingID string `json:"listing_id" validate:"required,uuid4"`
	}
	if err := c.Bind().JSON(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid body"})
	}
	if err := validate.Struct(body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": validationMessage(err)})
	}

	convo, err := h.messages.StartConversation(c.Context(), snap.UserID(), body.ListingID)
	if err != nil {
		return messageError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(convo)
}

// List returns the caller's conversations.
func (h *MessageHandler) List(c fiber.Ctx) error {
	snap := middleware.GetSnapshot(c)
	convos, err := h.messages.MyConversations(c.Context(), snap.UserID())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	unread, err := h.messages.UnreadCount(c.Context(), snap.UserID())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	return c.JSON(fiber.Map{
		"conversations": convos,
		"count":         len(convos),
		"unread":        unread,
	})
}

// Messages returns a conversation's messages and marks them read.
func (h *MessageHandler) Messages(c fiber.Ctx) error {
	snap := middleware.GetSnapshot(c)
	limit, _ := strconv.Atoi(c.Query("limit", "50"))

	msgs, err := h.messages.Messages(c.Context(), snap.UserID(), c.Params("id"), limit)
	if err != nil {
		return messageError(c, err)
	}
	return c.JSON(fiber.Map{"messages": msgs, "count": len(msgs)})
}

// Send appends a message to the conversation.
func (h *MessageHandler) Send(c fiber.Ctx) error {
	snap := middleware.GetSnapshot(c)

	var body struct {
		Body string `json:"body" validate:"required,max=4000"`
	}
	if err := c.Bind().JSON(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid body"})
	}
	if err := validate.Struct(body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": validationMessage(err)})
	}

	msg, err := h.messages.Send(c.Context(), snap.UserID(), c.Params("id"), body.Body)
	if err != nil {
		return messageError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(msg)
}

// StreamEvents streams the caller's notifications via Server-Sent Events:
// new messages, application decisions, payment transitions, review results.
// The stream ends when the session does; sign-out closes the snapshot's Done
// channel and the loop below exits with it.
func (h *MessageHandler) StreamEvents(c fiber.Ctx) error {
	snap := middleware.GetSnapshot(c)
	userID := snap.UserID()
	if userID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
	}

	ch := h.bus.Subscribe(userID)
	done := snap.Done()

	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")

	return c.SendStreamWriter(func(w *bufio.Writer) {
		defer h.bus.Unsubscribe(userID, ch)

		fmt.Fprintf(w, "event: connected\ndata: {}\n\n")
		w.Flush()

		heartbeat := time.NewTicker(heartbeatInterval)
		defer heartbeat.Stop()

		for {
			select {
			case ev, ok := <-ch:
				if !ok {
					return
				}
				data, err := json.Marshal(ev)
				if err != nil {
					slog.Error("encode stream event", "error", err)
					continue
				}
				fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data)
				if err := w.Flush(); err != nil {
					return
				}
			case <-done:
				fmt.Fprintf(w, "event: session_ended\ndata: {}\n\n")
				w.Flush()
				return
			case <-heartbeat.C:
				fmt.Fprintf(w, ": ping\n\n")
				if err := w.Flush(); err != nil {
					return
				}
			}
		}
	})
}

// messageError maps service errors to HTTP responses.
func messageError(c fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, port.ErrConversationNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "conversation not found"})
	case errors.Is(err, port.ErrListingNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "listing not found"})
	case errors.Is(err, port.ErrForbidden):
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": err.Error()})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
}
