package prep

import (
	"context"
	"fmt"
	"io"
	"mime"
	"slices"
	"strings"

	"github.com/lukas-holzner/codefusion-hackathon/internal/conversation"
)

// Audio is an uploaded voice message.
type Audio struct {
	Filename    string
	ContentType string
	Body        io.Reader
}

// Rejection reasons recorded in metrics.
const (
	rejectType = "bad_type"
	rejectSize = "too_large"
)

// SendAudio transcribes a voice message and runs it as a normal turn.
// The type and size are checked before the provider is called.
func (s *Service) SendAudio(ctx context.Context, meetingID, userID int64, a Audio) (conversation.State, error) {
	if s.stt == nil {
		return conversation.State{}, fmt.Errorf("transcription: %w", ErrUnavailable)
	}

	if err := s.checkAudioType(a.ContentType); err != nil {
		s.metrics.AudioRejected(rejectType)
		return conversation.State{}, err
	}

	data, err := io.ReadAll(io.LimitReader(a.Body, s.cfg.MaxUploadBytes+1))
	if err != nil {
		return conversation.State{}, fmt.Errorf("read audio: %w", err)
	}
	if int64(len(data)) > s.cfg.MaxUploadBytes {
		s.metrics.AudioRejected(rejectSize)
		return conversation.State{}, &TooLargeError{Limit: s.cfg.MaxUploadBytes}
	}
	if len(data) == 0 {
		return conversation.State{}, fmt.Errorf("%w: empty audio", ErrInvalid)
	}

	// Fail before paying for a transcription.
	if _, err := s.store.LoadConversation(ctx, meetingID, userID); err != nil {
		return conversation.State{}, err
	}

	text, err := s.stt.TranscribeAudio(ctx, audioFilename(a), data)
	if err != nil {
		return conversation.State{}, fmt.Errorf("transcribe audio: %w", err)
	}
	s.logger.Debug("audio transcribed",
		"meeting_id", meetingID,
		"user_id", userID,
		"bytes", len(data),
		"chars", len(text),
	)

	if strings.TrimSpace(text) == "" {
		return conversation.State{}, fmt.Errorf("%w: no speech recognized", ErrInvalid)
	}
	return s.SendMessage(ctx, meetingID, userID, text)
}

// Speak converts text to MP3 audio. An empty voice selects the default.
func (s *Service) Speak(ctx context.Context, text, voice string) ([]byte, error) {
	if s.tts == nil {
		return nil, fmt.Errorf("speech synthesis: %w", ErrUnavailable)
	}
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: empty text", ErrInvalid)
	}
	if voice == "" {
		voice = s.cfg.DefaultVoice
	}

	audio, err := s.tts.SynthesizeSpeech(ctx, text, voice)
	if err != nil {
		return nil, fmt.Errorf("synthesize speech: %w", err)
	}
	return audio, nil
}

// UnsupportedTypeError reports an audio upload with a MIME type outside
// the allowed list. It matches ErrInvalid.
type UnsupportedTypeError struct {
	ContentType string
}

func (e *UnsupportedTypeError) Error() string {
	return fmt.Sprintf("unsupported audio type %q", e.ContentType)
}

func (e *UnsupportedTypeError) Is(target error) bool { return target == ErrInvalid }

// TooLargeError reports an audio upload above the size ceiling. It
// matches ErrInvalid.
type TooLargeError struct {
	Limit int64
}

func (e *TooLargeError) Error() string {
	return fmt.Sprintf("audio exceeds %d bytes", e.Limit)
}

func (e *TooLargeError) Is(target error) bool { return target == ErrInvalid }

func (s *Service) checkAudioType(contentType string) error {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil || !slices.Contains(s.cfg.AllowedTypes, strings.ToLower(mediaType)) {
		return &UnsupportedTypeError{ContentType: contentType}
	}
	return nil
}

// audioFilename gives the provider an extension matching the type, as
// transcription APIs sniff the container from it.
func audioFilename(a Audio) string {
	if a.Filename != "" {
		return a.Filename
	}
	mediaType, _, _ := mime.ParseMediaType(a.ContentType)
	switch mediaType {
	case "audio/wav":
		return "audio.wav"
	case "audio/ogg":
		return "audio.ogg"
	default:
		return "audio.mp3"
	}
}
