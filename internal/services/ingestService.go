package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/arzan03/mediadrop/internal/models"
	"github.com/arzan03/mediadrop/internal/utils"
)

// Messenger sends text replies to message senders.
type Messenger interface {
	SendText(ctx context.Context, to, body string) error
}

// IngestResult describes what happened to one inbound message.
type IngestResult struct {
	MessageID string
	Binding   *models.MediaBinding
	Err       error
}

type IngestOptions struct {
	// PublicURL prefixes download links in replies.
	PublicURL  string
	Extensions ExtensionTable
}

// IngestService turns inbound media notifications into bindings and tells
// the sender their code.
type IngestService struct {
	allocator *Allocator
	messenger Messenger
	archiver  *Archiver
	policy    ExpiryPolicy
	opts      IngestOptions
	logger    *slog.Logger
}

// NewIngestService builds the service. archiver may be nil.
func NewIngestService(allocator *Allocator, messenger Messenger, archiver *Archiver, policy ExpiryPolicy, opts IngestOptions, logger *slog.Logger) *IngestService {
	if opts.Extensions == nil {
		opts.Extensions = NewExtensionTable(nil)
	}
	opts.PublicURL = strings.TrimRight(opts.PublicURL, "/")
	return &IngestService{
		allocator: allocator,
		messenger: messenger,
		archiver:  archiver,
		policy:    policy,
		opts:      opts,
		logger:    logger.With(slog.String("component", "ingest")),
	}
}

// MediaRefFromMessage extracts the media reference of a document or image
// message.
func MediaRefFromMessage(msg models.Message, extensions ExtensionTable) (models.MediaRef, error) {
	var media *models.MediaObject
	switch msg.Type {
	case models.MessageTypeDocument:
		media = msg.Document
	case models.MessageTypeImage:
		media = msg.Image
	default:
		return models.MediaRef{}, fmt.Errorf("%w: %q", ErrUnsupportedMessage, msg.Type)
	}
	if media == nil {
		return models.MediaRef{}, fmt.Errorf("%w: %s message without %s object", ErrInvalidMediaRef, msg.Type, msg.Type)
	}

	ref := models.MediaRef{
		ExternalMediaID: media.ID,
		MimeType:        normalizeMime(media.MimeType),
		OriginalName:    strings.TrimSpace(media.Filename),
		SenderID:        msg.From,
	}
	ref.Extension = extensions.For(ref.MimeType, ref.OriginalName)
	if err := ref.Validate(); err != nil {
		return models.MediaRef{}, err
	}
	return ref, nil
}

// HandleWebhook processes every message in the payload concurrently. It
// never fails as a whole; per-message errors are in the results.
func (s *IngestService) HandleWebhook(ctx context.Context, payload *models.WebhookPayload) []IngestResult {
	messages := payload.Messages()
	if len(messages) == 0 {
		return nil
	}

	tasks := make([]utils.Task[*models.MediaBinding], len(messages))
	for i, msg := range messages {
		msg := msg // per-iteration copy; go directive is pre-1.22
		tasks[i] = func() (*models.MediaBinding, error) {
			return s.HandleMessage(ctx, msg)
		}
	}
	bindings, errs := utils.RunParallel(tasks)

	results := make([]IngestResult, len(messages))
	for i, msg := range messages {
		results[i] = IngestResult{MessageID: msg.ID, Binding: bindings[i], Err: errs[i]}
	}
	return results
}

// HandleMessage allocates a code for a media message and replies to the
// sender. A failed reply is logged; the binding stays valid.
func (s *IngestService) HandleMessage(ctx context.Context, msg models.Message) (*models.MediaBinding, error) {
	log := s.logger.With("message_id", msg.ID, "type", msg.Type)

	if msg.Type == models.MessageTypeText {
		s.reply(ctx, log, msg.From, "Send me a document or an image and I will give you a download code for it.")
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedMessage, msg.Type)
	}

	ref, err := MediaRefFromMessage(msg, s.opts.Extensions)
	if err != nil {
		return nil, err
	}

	b, err := s.allocator.Allocate(ctx, ref)
	if err != nil {
		s.reply(ctx, log, msg.From, "Sorry, your file could not be registered right now. Please send it again later.")
		return nil, fmt.Errorf("allocate code: %w", err)
	}
	log.Info("media bound", "code", b.Code, "media_id", b.ExternalMediaID, "mime_type", b.MimeType)

	if s.archiver != nil {
		s.archiver.Enqueue(b)
	}

	s.reply(ctx, log, msg.From, s.codeMessage(b))
	return b, nil
}

func (s *IngestService) codeMessage(b *models.MediaBinding) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Your code is %s.", b.Code)
	if s.opts.PublicURL != "" {
		fmt.Fprintf(&sb, "\nDownload: %s/download/%s", s.opts.PublicURL, b.Code)
	}
	if d := s.policy.Describe(); d != "" {
		fmt.Fprintf(&sb, "\nThe link %s.", d)
	}
	return sb.String()
}

func (s *IngestService) reply(ctx context.Context, log *slog.Logger, to, body string) {
	if s.messenger == nil || to == "" {
		return
	}
	if err := s.messenger.SendText(ctx, to, body); err != nil {
		log.Error("failed to send reply", "to", to, "error", err)
	}
}
