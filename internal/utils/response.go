package utils

import "github.com/gofiber/fiber/v2"

// APIResponse is the envelope every chat endpoint answers with.
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Meta    interface{} `json:"meta,omitempty"`
	Message string      `json:"message"`
}

// PageMeta describes a slice of a scrollback or inbox listing.
type PageMeta struct {
	Count      int  `json:"count"`
	NextBefore uint `json:"next_before,omitempty"`
}

// SendSuccess answers 200 with the payload.
func SendSuccess(c *fiber.Ctx, message string, data interface{}) error {
	return SendSuccessWithStatus(c, fiber.StatusOK, message, data)
}

// SendSuccessWithStatus answers with the payload and the given status, 200 when zero.
func SendSuccessWithStatus(c *fiber.Ctx, status int, message string, data interface{}) error {
	return send(c, status, APIResponse{Success: true, Data: data, Message: message})
}

// SendPage answers 200 with a listing and its paging metadata.
func SendPage(c *fiber.Ctx, message string, data interface{}, meta PageMeta) error {
	return send(c, fiber.StatusOK, APIResponse{Success: true, Data: data, Meta: meta, Message: message})
}

// SendError answers with a failure envelope and no data.
func SendError(c *fiber.Ctx, status int, message string) error {
	if message == "" {
		message = "error"
	}
	return send(c, status, APIResponse{Success: false, Message: message})
}

func send(c *fiber.Ctx, status int, payload APIResponse) error {
	if status == 0 {
		status = fiber.StatusOK
	}
	if payload.Success && payload.Message == "" {
		payload.Message = "success"
	}
	return c.Status(status).JSON(payload)
}
