package controllers

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/micropay-ai/micropay.go/lib/responses"
	"github.com/micropay-ai/micropay.go/lib/service"
)

// FeedbackController : Order feedback controller struct
type FeedbackController struct {
	svc *service.MicropayService
}

func NewFeedbackController(svc *service.MicropayService) *FeedbackController {
	return &FeedbackController{svc: svc}
}

type FeedbackRequestBody struct {
	OrderID  string `json:"order_id" validate:"required"`
	Rating   int    `json:"rating" validate:"required,gte=1,lte=5"`
	Feedback string `json:"feedback" validate:"max=2000"`
}

type FeedbackResponseBody struct {
	Status string `json:"status"`
}

func (controller *FeedbackController) Feedback(c echo.Context) error {
	var body FeedbackRequestBody
	if err := c.Bind(&body); err != nil {
		c.Logger().Errorf("Failed to load feedback request body: %v", err)
		return responses.HTTPError(responses.BadArgumentsError)
	}
	if err := c.Validate(&body); err != nil {
		c.Logger().Errorf("Invalid feedback request body: %v", err)
		return responses.HTTPError(responses.BadArgumentsError)
	}

	err := controller.svc.RecordFeedback(c.Request().Context(), body.OrderID, body.Rating, body.Feedback)
	if err != nil {
		if errors.Is(err, service.ErrOrderNotFound) {
			return responses.HTTPError(responses.OrderNotFoundError)
		}
		c.Logger().Errorf("Failed to record feedback: %v", err)
		return responses.HTTPError(responses.GeneralServerError)
	}

	return c.JSON(http.StatusOK, &FeedbackResponseBody{Status: "FEEDBACK_RECEIVED"})
}
