package handlers

import (
	"github.com/go-playground/validator/v10"

	"github.com/nfrund/huddle/internal/domain"
)

// CustomValidator wraps the go-playground/validator library to implement Echo's Validator interface.
type CustomValidator struct {
	validator *validator.Validate
}

// NewValidator creates a new CustomValidator.
func NewValidator() *CustomValidator {
	return &CustomValidator{validator: validator.New()}
}

// Validate implements the echo.Validator interface.
func (cv *CustomValidator) Validate(i interface{}) error {
	return cv.validator.Struct(i)
}

// CreateChatRequest is the body of POST /api/chats.
type CreateChatRequest struct {
	ParticipantIDs []string `json:"participantIds" validate:"required,min=1,dive,required"`
	IsGroup        bool     `json:"isGroup"`
	GroupName      string   `json:"groupName" validate:"required_if=IsGroup true,max=100"`
}

// toDomain builds the store request for creatorID.
func (r CreateChatRequest) toDomain(creatorID string) domain.NewChat {
	if !r.IsGroup {
		r.GroupName = ""
	}
	return domain.NewChat{
		CreatorID:      creatorID,
		ParticipantIDs: r.ParticipantIDs,
		IsGroup:        r.IsGroup,
		GroupName:      r.GroupName,
	}
}

// MessagesQuery binds the pagination query of GET /api/chats/:chatId/messages.
type MessagesQuery struct {
	ChatID string `param:"chatId" validate:"required"`
	Cursor string `query:"cursor"`
}
