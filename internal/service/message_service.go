package service

import (
	"context"
	"fmt"

	"github.com/gtextsoft/LandlordNoAgent-sub001/internal/adapter/store"
	"github.com/gtextsoft/LandlordNoAgent-sub001/internal/domain"
	"github.com/gtextsoft/LandlordNoAgent-sub001/internal/port"
	"github.com/gtextsoft/LandlordNoAgent-sub001/internal/realtime"
)

// MessageService manages renter-landlord conversations.
type MessageService struct {
	store *store.PostgresStore
	bus   *realtime.Bus
}

// NewMessageService creates a new message service.
func NewMessageService(s *store.PostgresStore, bus *realtime.Bus) *MessageService {
	return &MessageService{store: s, bus: bus}
}

// StartConversation opens (or returns the existing) conversation between the
// renter and the listing's landlord.
func (s *MessageService) StartConversation(ctx context.Context, renterID, listingID string) (*domain.Conversation, error) {
	listing, err := s.store.GetListing(ctx, listingID)
	if err != nil {
		return nil, err
	}
	if listing.Status != domain.ListingStatusPublished {
		return nil, port.ErrListingNotFound
	}
	if listing.LandlordID == renterID {
		return nil, fmt.Errorf("own listing: %w", port.ErrForbidden)
	}
	return s.store.EnsureConversation(ctx, listingID, renterID, listing.LandlordID)
}

// Send appends a message to a conversation the sender participates in and
// notifies the other side.
func (s *MessageService) Send(ctx context.Context, senderID, conversationID, body string) (*domain.Message, error) {
	convo, err := s.participantConversation(ctx, senderID, conversationID)
	if err != nil {
		return nil, err
	}

	msg, err := s.store.CreateMessage(ctx, &domain.Message{
		ConversationID: conversationID,
		SenderID:       senderID,
		Body:           body,
	})
	if err != nil {
		return nil, err
	}

	s.bus.Publish(convo.Recipient(senderID), realtime.EventMessageReceived, msg)
	return msg, nil
}

// MyConversations returns the user's conversations, most recently active first.
func (s *MessageService) MyConversations(ctx context.Context, userID string) ([]domain.Conversation, error) {
	return s.store.ConversationsForUser(ctx, userID)
}

// Messages returns a conversation's messages to a participant and marks
// the ones addressed to them as read.
func (s *MessageService) Messages(ctx context.Context, userID, conversationID string, limit int) ([]domain.Message, error) {
	if _, err := s.participantConversation(ctx, userID, conversationID); err != nil {
		return nil, err
	}
	msgs, err := s.store.MessagesForConversation(ctx, conversationID, limit)
	if err != nil {
		return nil, err
	}
	if err := s.store.MarkMessagesRead(ctx, conversationID, userID); err != nil {
		return nil, err
	}
	return msgs, nil
}

// UnreadCount counts unread messages across all of the user's conversations.
func (s *MessageService) UnreadCount(ctx context.Context, userID string) (int, error) {
	return s.store.UnreadMessageCount(ctx, userID)
}

// participantConversation loads a conversation and verifies membership.
func (s *MessageService) participantConversation(ctx context.Context, userID, conversationID string) (*domain.Conversation, error) {
	convo, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !convo.HasParticipant(userID) {
		return nil, port.ErrConversationNotFound
	}
	return convo, nil
}
