// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/jeranaias/nova/internal/cloud"
	"github.com/jeranaias/nova/internal/conversation"
	"github.com/jeranaias/nova/internal/export"
	"github.com/jeranaias/nova/internal/model"
	"github.com/jeranaias/nova/internal/session"
	"github.com/jeranaias/nova/internal/settings"
)

// ============================================================================
// WIRE TYPES
// ============================================================================

type healthResponse struct {
	Status            string `json:"status"`
	Version           string `json:"version"`
	Route             string `json:"route"`
	ProviderAvailable bool   `json:"providerAvailable"`
	Chats             int    `json:"chats"`
	Busy              bool   `json:"busy"`
}

type chatListResponse struct {
	Chats        []*model.Chat `json:"chats"`
	ActiveChatID string        `json:"activeChatId"`
}

type titleRequest struct {
	Title string `json:"title"`
}

type sendRequest struct {
	Content string `json:"content"`
}

type turnResponse struct {
	ChatID    string         `json:"chatId"`
	Created   bool           `json:"created"`
	User      model.Message  `json:"user"`
	Assistant *model.Message `json:"assistant"`
}

type activeBody struct {
	ID string `json:"id"`
}

// aiSettingsResponse never carries the raw key.
type aiSettingsResponse struct {
	Model         string `json:"model"`
	APIKey        string `json:"apiKey"`
	BaseURL       string `json:"baseUrl"`
	ContextLength int    `json:"contextLength"`
	Configured    bool   `json:"configured"`
}

// aiSettingsRequest fields left out keep their stored value. An apiKey equal
// to the masked form also keeps the stored key, so a GET/PUT round trip from
// a form is harmless.
type aiSettingsRequest struct {
	Model         *string `json:"model"`
	APIKey        *string `json:"apiKey"`
	BaseURL       *string `json:"baseUrl"`
	ContextLength *int    `json:"contextLength"`
}

type preambleBody struct {
	Preamble string `json:"preamble"`
}

type sidebarBody struct {
	Width int `json:"width"`
}

type errorBody struct {
	Error  errorDetail `json:"error"`
	ChatID string      `json:"chatId,omitempty"`
}

type errorDetail struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// ============================================================================
// HEALTH
// ============================================================================

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	route := cloud.RouteNone
	if s.routes != nil {
		route = s.routes.RouteFor(s.session.Settings().AI())
	}
	writeJSON(w, http.StatusOK, healthResponse{
		Status:            "ok",
		Version:           s.version,
		Route:             route.String(),
		ProviderAvailable: route != cloud.RouteNone,
		Chats:             s.session.Chats().Len(),
		Busy:              s.session.Busy(),
	})
}

// ============================================================================
// CHATS
// ============================================================================

func (s *Server) handleListChats(w http.ResponseWriter, r *http.Request) {
	chats := s.session.Chats()
	writeJSON(w, http.StatusOK, chatListResponse{
		Chats:        chats.List(),
		ActiveChatID: chats.ActiveID(),
	})
}

func (s *Server) handleCreateChat(w http.ResponseWriter, r *http.Request) {
	var req titleRequest
	if !s.decode(w, r, &req, true) {
		return
	}
	chat := s.session.Chats().Create(req.Title)
	writeJSON(w, http.StatusCreated, chat)
}

func (s *Server) handleGetChat(w http.ResponseWriter, r *http.Request) {
	chat, err := s.session.Chats().Get(mux.Vars(r)["id"])
	if err != nil {
		s.fail(w, err, "")
		return
	}
	writeJSON(w, http.StatusOK, chat)
}

// handleExportChat serves a chat as a download, markdown unless
// ?format=json.
func (s *Server) handleExportChat(w http.ResponseWriter, r *http.Request) {
	chat, err := s.session.Chats().Get(mux.Vars(r)["id"])
	if err != nil {
		s.fail(w, err, "")
		return
	}
	format, err := export.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	exp, err := export.New(format, nil)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	body, err := exp.Export(chat)
	if err != nil {
		s.fail(w, err, chat.ID)
		return
	}
	w.Header().Set("Content-Type", exp.MimeType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.Filename(chat, exp, time.Now())))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func (s *Server) handleRenameChat(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var req titleRequest
	if !s.decode(w, r, &req, false) {
		return
	}
	chats := s.session.Chats()
	if err := chats.Rename(id, req.Title); err != nil {
		s.fail(w, err, "")
		return
	}
	chat, err := chats.Get(id)
	if err != nil {
		s.fail(w, err, "")
		return
	}
	writeJSON(w, http.StatusOK, chat)
}

func (s *Server) handleDeleteChat(w http.ResponseWriter, r *http.Request) {
	if err := s.session.Chats().Delete(mux.Vars(r)["id"]); err != nil {
		s.fail(w, err, "")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleSend serves both /api/chats/{id}/messages and /api/messages; the
// latter has no id and targets the active chat.
func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	if !s.decode(w, r, &req, false) {
		return
	}
	// RELIABILITY: a dispatched request runs to completion even if the
	// client goes away; the dispatcher's timeout still bounds it.
	turn, err := s.session.Send(context.WithoutCancel(r.Context()), mux.Vars(r)["id"], req.Content)
	if err != nil {
		chatID := ""
		if turn != nil {
			chatID = turn.ChatID
		}
		s.fail(w, err, chatID)
		return
	}
	status := http.StatusOK
	if turn.Created {
		status = http.StatusCreated
	}
	writeJSON(w, status, turnResponse{
		ChatID:    turn.ChatID,
		Created:   turn.Created,
		User:      turn.User,
		Assistant: turn.Assistant,
	})
}

func (s *Server) handleGetActive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, activeBody{ID: s.session.Chats().ActiveID()})
}

func (s *Server) handleSetActive(w http.ResponseWriter, r *http.Request) {
	var req activeBody
	if !s.decode(w, r, &req, false) {
		return
	}
	if err := s.session.Chats().Select(strings.TrimSpace(req.ID)); err != nil {
		s.fail(w, err, "")
		return
	}
	writeJSON(w, http.StatusOK, activeBody{ID: s.session.Chats().ActiveID()})
}

// ============================================================================
// SETTINGS
// ============================================================================

func aiResponse(ai model.AISettings) aiSettingsResponse {
	return aiSettingsResponse{
		Model:         ai.Model,
		APIKey:        ai.MaskedKey(),
		BaseURL:       ai.BaseURL,
		ContextLength: ai.ContextLength,
		Configured:    ai.Configured(),
	}
}

func (s *Server) handleGetAI(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, aiResponse(s.session.Settings().AI()))
}

func (s *Server) handlePutAI(w http.ResponseWriter, r *http.Request) {
	var req aiSettingsRequest
	if !s.decode(w, r, &req, false) {
		return
	}
	prefs := s.session.Settings()
	ai := prefs.AI()
	if req.Model != nil {
		ai.Model = strings.TrimSpace(*req.Model)
	}
	if req.APIKey != nil && *req.APIKey != ai.MaskedKey() {
		ai.APIKey = strings.TrimSpace(*req.APIKey)
	}
	if req.BaseURL != nil {
		ai.BaseURL = strings.TrimSpace(*req.BaseURL)
	}
	if req.ContextLength != nil {
		if *req.ContextLength < 0 {
			writeError(w, http.StatusBadRequest, "bad_request", "contextLength cannot be negative")
			return
		}
		ai.ContextLength = *req.ContextLength
	}
	prefs.SetAI(ai)
	writeJSON(w, http.StatusOK, aiResponse(prefs.AI()))
}

func (s *Server) handleGetInterface(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.session.Settings().Interface())
}

func (s *Server) handlePutInterface(w http.ResponseWriter, r *http.Request) {
	var req model.InterfaceSettings
	if !s.decode(w, r, &req, false) {
		return
	}
	prefs := s.session.Settings()
	prefs.SetInterface(req)
	writeJSON(w, http.StatusOK, prefs.Interface())
}

func (s *Server) handleGetPreamble(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, preambleBody{Preamble: s.session.Settings().Preamble()})
}

func (s *Server) handlePutPreamble(w http.ResponseWriter, r *http.Request) {
	var req preambleBody
	if !s.decode(w, r, &req, false) {
		return
	}
	prefs := s.session.Settings()
	prefs.SetPreamble(req.Preamble)
	writeJSON(w, http.StatusOK, preambleBody{Preamble: prefs.Preamble()})
}

func (s *Server) handleGetSidebar(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, sidebarBody{Width: s.session.Settings().SidebarWidth()})
}

func (s *Server) handlePutSidebar(w http.ResponseWriter, r *http.Request) {
	var req sidebarBody
	if !s.decode(w, r, &req, false) {
		return
	}
	prefs := s.session.Settings()
	if err := prefs.SetSidebarWidth(req.Width); err != nil {
		s.fail(w, err, "")
		return
	}
	writeJSON(w, http.StatusOK, sidebarBody{Width: prefs.SidebarWidth()})
}

// ============================================================================
// HELPERS
// ============================================================================

// decode reads a JSON body into v. With allowEmpty an absent body leaves v
// untouched. It writes the error response itself and reports success.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any, allowEmpty bool) bool {
	err := json.NewDecoder(r.Body).Decode(v)
	switch {
	case err == nil:
		return true
	case errors.Is(err, io.EOF) && allowEmpty:
		return true
	case errors.Is(err, io.EOF):
		writeError(w, http.StatusBadRequest, "bad_request", "request body is required")
	default:
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "bad_request",
				fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit))
			return false
		}
		s.log.WithError(err).Debug("Rejected request body")
		writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
	}
	return false
}

// fail maps err onto a status and writes the error body.
func (s *Server) fail(w http.ResponseWriter, err error, chatID string) {
	status, kind := classify(err)
	if status >= http.StatusInternalServerError {
		s.log.WithError(err).WithField("kind", kind).Warn("Request failed")
	}
	writeJSON(w, status, errorBody{
		Error:  errorDetail{Kind: kind, Message: err.Error()},
		ChatID: chatID,
	})
}

// classify returns the HTTP status and error kind for err.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, session.ErrEmptyInput),
		errors.Is(err, session.ErrEmptyHistory),
		errors.Is(err, conversation.ErrEmptyTitle),
		errors.Is(err, settings.ErrInvalidSidebarWidth):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, session.ErrBusy):
		return http.StatusConflict, "busy"
	case errors.Is(err, conversation.ErrChatNotFound):
		return http.StatusNotFound, "not_found"
	}

	switch cloud.KindOf(err) {
	case cloud.KindConfiguration:
		return http.StatusPreconditionFailed, cloud.KindConfiguration.String()
	case cloud.KindProvider:
		return http.StatusBadGateway, cloud.KindProvider.String()
	case cloud.KindNetwork:
		return http.StatusGatewayTimeout, cloud.KindNetwork.String()
	}
	return http.StatusInternalServerError, "internal"
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes {"error":{"kind","message"}}.
func writeError(w http.ResponseWriter, status int, kind, message string) {
	writeJSON(w, status, errorBody{Error: errorDetail{Kind: kind, Message: message}})
}
