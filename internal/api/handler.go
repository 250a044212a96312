package api

import (
	"context"

	"github.com/fathima-sithara/chat-core/internal/domain"
	"github.com/gofiber/fiber/v2"
)

type messageBody struct {
	MessageID        string             `json:"message_id" validate:"omitempty,max=64"`
	Type             domain.MessageType `json:"type"`
	Text             string             `json:"text"`
	Media            *domain.Media      `json:"media"`
	ReplyToMessageID string             `json:"reply_to_message_id" validate:"omitempty,max=64"`
}

type sendRequest struct {
	ConversationID string `json:"conversation_id" validate:"required"`
	messageBody
}

func (r *messageBody) payload() domain.Payload {
	t := r.Type
	if t == "" {
		t = domain.MessageText
	}
	return domain.Payload{Type: t, Text: r.Text, Media: r.Media, ReplyToMessageID: r.ReplyToMessageID}
}

func (s *Server) ctx(c *fiber.Ctx) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.UserContext(), s.timeout)
}

func (s *Server) ensureConversation(c *fiber.Ctx) error {
	var req struct {
		RecipientID string `json:"recipient_id" validate:"required"`
	}
	if err := parseBody(c, &req); err != nil {
		return err
	}
	ctx, cancel := s.ctx(c)
	defer cancel()
	res, err := s.queries.EnsureConversation(ctx, userID(c), req.RecipientID)
	if err != nil {
		return err
	}
	return JSONSuccess(c, fiber.StatusOK, res)
}

func (s *Server) createGroup(c *fiber.Ctx) error {
	var req struct {
		MemberIDs []string `json:"member_ids" validate:"required,min=2,dive,required"`
	}
	if err := parseBody(c, &req); err != nil {
		return err
	}
	ctx, cancel := s.ctx(c)
	defer cancel()
	conv, err := s.messages.CreateGroup(ctx, userID(c), req.MemberIDs)
	if err != nil {
		return err
	}
	return JSONSuccess(c, fiber.StatusCreated, conv)
}

func (s *Server) listConversations(c *fiber.Ctx) error {
	ctx, cancel := s.ctx(c)
	defer cancel()
	rows, err := s.queries.ListConversations(ctx, userID(c))
	if err != nil {
		return err
	}
	return JSONSuccess(c, fiber.StatusOK, rows)
}

func (s *Server) readMessages(c *fiber.Ctx) error {
	ctx, cancel := s.ctx(c)
	defer cancel()
	page, err := s.queries.ReadMessages(ctx, c.Params("id"), userID(c), c.QueryInt("limit", 0), c.Query("before"))
	if err != nil {
		return err
	}
	return JSONSuccess(c, fiber.StatusOK, page)
}

func (s *Server) markAsRead(c *fiber.Ctx) error {
	var req struct {
		LastReadMessageID string `json:"last_read_message_id" validate:"omitempty,max=64"`
	}
	// the body is optional; no id means everything up to the newest message
	if len(c.Body()) > 0 {
		if err := parseBody(c, &req); err != nil {
			return err
		}
	}
	ctx, cancel := s.ctx(c)
	defer cancel()
	res, err := s.queries.MarkAsRead(ctx, c.Params("id"), userID(c), req.LastReadMessageID)
	if err != nil {
		return err
	}
	return JSONSuccess(c, fiber.StatusOK, res)
}

func (s *Server) sendMessage(c *fiber.Ctx) error {
	var req sendRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	ctx, cancel := s.ctx(c)
	defer cancel()
	msg, err := s.messages.IngestMessage(ctx, req.ConversationID, userID(c), req.payload(), req.MessageID)
	if err != nil {
		return err
	}
	return JSONSuccess(c, fiber.StatusCreated, msg)
}

func (s *Server) sendToUser(c *fiber.Ctx) error {
	var req messageBody
	if err := parseBody(c, &req); err != nil {
		return err
	}
	ctx, cancel := s.ctx(c)
	defer cancel()
	msg, err := s.messages.SendToUser(ctx, userID(c), c.Params("userId"), req.payload(), req.MessageID)
	if err != nil {
		return err
	}
	return JSONSuccess(c, fiber.StatusCreated, msg)
}
