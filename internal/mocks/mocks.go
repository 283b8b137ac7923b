package mocks

import (
	"context"
	"io"

	"github.com/stretchr/testify/mock"

	"chat-client/internal/api"
	"chat-client/internal/models"
)

type BackendMock struct {
	mock.Mock
}

func (m *BackendMock) Conversation(ctx context.Context, conversationID string) (models.Conversation, error) {
	args := m.Called(ctx, conversationID)
	var conv models.Conversation
	if val := args.Get(0); val != nil {
		conv = val.(models.Conversation)
	}
	return conv, args.Error(1)
}

func (m *BackendMock) ListMessages(ctx context.Context, conversationID string) ([]models.Message, error) {
	args := m.Called(ctx, conversationID)
	var msgs []models.Message
	if val := args.Get(0); val != nil {
		msgs = val.([]models.Message)
	}
	return msgs, args.Error(1)
}

func (m *BackendMock) SendMessage(ctx context.Context, conversationID string, req api.SendRequest) (models.Message, error) {
	args := m.Called(ctx, conversationID, req)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *BackendMock) EditMessage(ctx context.Context, conversationID, messageID, body string) (models.Message, error) {
	args := m.Called(ctx, conversationID, messageID, body)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *BackendMock) DeleteForEveryone(ctx context.Context, conversationID, messageID string) error {
	args := m.Called(ctx, conversationID, messageID)
	return args.Error(0)
}

func (m *BackendMock) RemoveForMe(ctx context.Context, conversationID, messageID string) error {
	args := m.Called(ctx, conversationID, messageID)
	return args.Error(0)
}

func (m *BackendMock) React(ctx context.Context, conversationID, messageID, emoji string, added bool) error {
	args := m.Called(ctx, conversationID, messageID, emoji, added)
	return args.Error(0)
}

func (m *BackendMock) Star(ctx context.Context, conversationID, messageID string, starred bool) error {
	args := m.Called(ctx, conversationID, messageID, starred)
	return args.Error(0)
}

func (m *BackendMock) Pin(ctx context.Context, conversationID, messageID string, pinned bool) error {
	args := m.Called(ctx, conversationID, messageID, pinned)
	return args.Error(0)
}

func (m *BackendMock) UploadImage(ctx context.Context, name string, content io.Reader) (string, error) {
	args := m.Called(ctx, name, content)
	return args.String(0), args.Error(1)
}
