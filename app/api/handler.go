package api

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"sambot/types"
)

// Asker answers one question scoped to a jurisdiction.
type Asker interface {
	Answer(ctx context.Context, question, state string) (*types.SearchResponse, error)
}

type AskHandler struct {
	agent        Asker
	defaultState string
}

func NewAskHandler(agent Asker, defaultState string) *AskHandler {
	return &AskHandler{
		agent:        agent,
		defaultState: defaultState,
	}
}

func (h *AskHandler) HandleAsk(c *fiber.Ctx) error {
	var params types.AskParams
	if c.BodyParser(&params) != nil {
		return ErrBadRequest()
	}

	if errors := types.Validate(&params); len(errors) > 0 {
		return types.NewValidationError(errors)
	}

	state := params.State
	if state == "" {
		state = h.defaultState
	}

	resp, err := h.agent.Answer(c.Context(), params.Question, state)
	if err != nil {
		return err
	}
	return c.JSON(resp)
}
