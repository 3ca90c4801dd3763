package bot

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/fulfillment-backend/internal/transitions"
	"github.com/angelmondragon/fulfillment-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/fulfillment-backend/pkg/errors"
	"github.com/angelmondragon/fulfillment-backend/pkg/logger"
	"github.com/angelmondragon/fulfillment-backend/pkg/telegram"
)

const (
	helpText         = "Commands:\n/status <fileId> show the file status\n/eta <fileId> <minutes> set the processing estimate"
	unauthorizedText = "This chat is not allowed to manage files"
)

// FileTransitioner is the part of the transitions controller the bot drives.
type FileTransitioner interface {
	TransitionFileStatus(ctx context.Context, input transitions.FileTransitionInput) (*transitions.Result, error)
	SetEstimate(ctx context.Context, input transitions.EstimateInput) (*transitions.Result, error)
}

// FileFinder loads a tuning file for /status.
type FileFinder interface {
	Find(ctx context.Context, id uuid.UUID) (*models.TuningFile, error)
}

// Chat answers callbacks and replies to commands.
type Chat interface {
	AnswerCallbackQuery(ctx context.Context, callbackID, text string) error
	SendMessage(ctx context.Context, chatID int64, text string, markup *telegram.InlineKeyboard) error
}

// Ack is the bot's answer to one update.
type Ack struct {
	OK   bool   `json:"ok"`
	Text string `json:"text"`
}

type ServiceParams struct {
	Transitions FileTransitioner
	Files       FileFinder
	Chat        Chat
	Namespaces  []string
	// AdminChats lists the chats allowed to run commands and press buttons.
	// An empty list rejects every chat.
	AdminChats []int64
	Logger     *logger.Logger
}

// Service turns bot updates into file transitions.
type Service struct {
	transitions FileTransitioner
	files       FileFinder
	chat        Chat
	namespaces  []string
	adminChats  []int64
	logg        *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Transitions == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transitions controller required")
	}
	if params.Files == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "file finder required")
	}
	if params.Chat == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "chat client required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	namespaces := params.Namespaces
	if len(namespaces) == 0 {
		namespaces = []string{DefaultNamespace}
	}
	return &Service{
		transitions: params.Transitions,
		files:       params.Files,
		chat:        params.Chat,
		namespaces:  namespaces,
		adminChats:  slices.Clone(params.AdminChats),
		logg:        params.Logger,
	}, nil
}

// Parse decodes an update against the service's namespace allow-list.
func (s *Service) Parse(raw []byte) Payload {
	return ParsePayload(raw, s.namespaces...)
}

// Handle acts on one payload. It never returns an error; failures are folded
// into the Ack so the chat platform stops redelivering.
func (s *Service) Handle(ctx context.Context, payload Payload) Ack {
	switch p := payload.(type) {
	case FileStatusCallback:
		return s.handleCallback(ctx, p)
	case CommandMessage:
		return s.handleCommand(ctx, p)
	case UnknownPayload:
		ack := Ack{OK: false, Text: "Unsupported action"}
		if p.CallbackID != "" {
			s.answer(ctx, p.CallbackID, ack.Text)
		} else if p.ChatID != 0 && p.Reason == "not a command" {
			ack.Text = helpText
		}
		return ack
	}
	return Ack{OK: false, Text: "Unsupported action"}
}

// admin reports whether chatID may drive file transitions.
func (s *Service) admin(chatID int64) bool {
	return chatID != 0 && slices.Contains(s.adminChats, chatID)
}

func (s *Service) handleCallback(ctx context.Context, cb FileStatusCallback) Ack {
	ctx = s.logg.WithFileID(ctx, cb.FileID.String())
	var chatID int64
	if cb.Message != nil {
		chatID = cb.Message.ChatID
	}
	if !s.admin(chatID) {
		s.logg.Warn(s.logg.WithField(ctx, "chat_id", chatID), "bot callback from unauthorized chat")
		ack := Ack{OK: false, Text: unauthorizedText}
		s.answer(ctx, cb.CallbackID, ack.Text)
		return ack
	}
	result, err := s.transitions.TransitionFileStatus(ctx, transitions.FileTransitionInput{
		FileID:  cb.FileID,
		Status:  cb.Status,
		Actor:   transitions.WebhookActor(transitions.ActorFileAdminBot),
		Message: cb.Message,
	})

	ack := Ack{OK: true}
	switch {
	case err != nil:
		s.logg.WarnErr(ctx, "bot file transition rejected", err)
		ack = Ack{OK: false, Text: failureText(err)}
	case !result.Changed:
		ack.Text = "Already " + result.NewStatus
	default:
		ack.Text = fmt.Sprintf("%s -> %s", result.OldStatus, result.NewStatus)
	}
	s.answer(ctx, cb.CallbackID, ack.Text)
	return ack
}

func (s *Service) handleCommand(ctx context.Context, cmd CommandMessage) Ack {
	if !s.admin(cmd.ChatID) {
		s.logg.Warn(s.logg.WithField(ctx, "chat_id", cmd.ChatID), "bot command from unauthorized chat")
		return Ack{OK: false, Text: unauthorizedText}
	}
	var ack Ack
	switch cmd.Command {
	case "status":
		ack = s.status(ctx, cmd.Args)
	case "eta":
		ack = s.estimate(ctx, cmd)
	case "help", "start":
		ack = Ack{OK: true, Text: helpText}
	default:
		ack = Ack{OK: false, Text: helpText}
	}
	if err := s.chat.SendMessage(ctx, cmd.ChatID, ack.Text, nil); err != nil {
		s.logg.WarnErr(ctx, "bot reply failed", err)
	}
	return ack
}

func (s *Service) status(ctx context.Context, args []string) Ack {
	if len(args) != 1 {
		return Ack{OK: false, Text: "Usage: /status <fileId>"}
	}
	fileID, err := uuid.Parse(args[0])
	if err != nil {
		return Ack{OK: false, Text: "Invalid file id"}
	}
	file, err := s.files.Find(ctx, fileID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Ack{OK: false, Text: "File not found"}
		}
		s.logg.WarnErr(s.logg.WithFileID(ctx, fileID.String()), "bot status lookup failed", err)
		return Ack{OK: false, Text: "File lookup failed"}
	}
	text := fmt.Sprintf("%s: %s", file.FileName, file.Status)
	if file.EstimatedProcessingTime != nil {
		text += fmt.Sprintf(" (ETA %d min)", *file.EstimatedProcessingTime)
	}
	return Ack{OK: true, Text: text}
}

func (s *Service) estimate(ctx context.Context, cmd CommandMessage) Ack {
	if len(cmd.Args) != 2 {
		return Ack{OK: false, Text: "Usage: /eta <fileId> <minutes>"}
	}
	fileID, err := uuid.Parse(cmd.Args[0])
	if err != nil {
		return Ack{OK: false, Text: "Invalid file id"}
	}
	minutes, err := strconv.Atoi(cmd.Args[1])
	if err != nil {
		return Ack{OK: false, Text: "Minutes must be a number"}
	}
	ctx = s.logg.WithFileID(ctx, fileID.String())
	_, err = s.transitions.SetEstimate(ctx, transitions.EstimateInput{
		FileID:  fileID,
		Minutes: minutes,
		Actor:   transitions.WebhookActor(transitions.ActorTelegramBot),
	})
	if err != nil {
		s.logg.WarnErr(ctx, "bot estimate rejected", err)
		return Ack{OK: false, Text: failureText(err)}
	}
	return Ack{OK: true, Text: fmt.Sprintf("ETA set to %d min", minutes)}
}

func (s *Service) answer(ctx context.Context, callbackID, text string) {
	if callbackID == "" {
		return
	}
	if err := s.chat.AnswerCallbackQuery(ctx, callbackID, text); err != nil {
		s.logg.WarnErr(ctx, "answer callback failed", err)
	}
}

func failureText(err error) string {
	typed := pkgerrors.As(err)
	if typed == nil {
		return "Something went wrong"
	}
	switch typed.Code() {
	case pkgerrors.CodeValidation, pkgerrors.CodeStateConflict, pkgerrors.CodeNotFound:
		return typed.Message()
	}
	return pkgerrors.MetadataFor(typed.Code()).PublicMessage
}
