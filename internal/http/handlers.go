package http

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"voiceledger/internal/capture"
	"voiceledger/internal/core"
	"voiceledger/internal/extract"
	"voiceledger/internal/services"
)

// uploadMic and uploadCamera bridge an HTTP media upload to the capture
// device ports. Permission is implicit: the client already chose to send
// the bytes.
type uploadMic struct {
	media extract.Media
}

func (m uploadMic) RequestPermission(context.Context) (bool, error) { return true, nil }

func (m uploadMic) Open(context.Context) (capture.Stream, error) {
	return uploadStream{media: m.media}, nil
}

type uploadStream struct {
	media extract.Media
}

func (s uploadStream) Stop(context.Context) (extract.Media, error) { return s.media, nil }

type uploadCamera struct {
	media extract.Media
}

func (c uploadCamera) RequestPermission(context.Context) (bool, error) { return true, nil }

func (c uploadCamera) Capture(context.Context) (capture.Photo, error) {
	return capture.Photo{Media: c.media}, nil
}

type mediaRequest struct {
	MIMEType string `json:"mime_type"`
	Data     string `json:"data"` // base64-encoded media bytes
}

type transactionResponse struct {
	ID        int64     `json:"id"`
	Item      string    `json:"item"`
	Cents     int64     `json:"amount_cents"`
	Formatted string    `json:"amount"`
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
}

func (s *Server) transactionJSON(tx core.Transaction) transactionResponse {
	symbol := ""
	if region, err := s.svc.Region(); err == nil {
		symbol = region.Symbol
	}
	return transactionResponse{
		ID:        tx.ID,
		Item:      tx.Item,
		Cents:     tx.Amount.Cents,
		Formatted: tx.Amount.Format(symbol),
		Type:      string(tx.Type),
		Timestamp: tx.Timestamp,
	}
}

func (s *Server) transactionsJSON(txs []core.Transaction) []transactionResponse {
	out := make([]transactionResponse, 0, len(txs))
	for _, tx := range txs {
		out = append(out, s.transactionJSON(tx))
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// statusFor maps service and extraction errors onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, services.ErrBusy), errors.Is(err, capture.ErrCaptureInFlight):
		return http.StatusConflict
	case errors.Is(err, services.ErrNotSetUp):
		return http.StatusConflict
	case errors.Is(err, extract.ErrLimitReached):
		return http.StatusTooManyRequests
	case errors.Is(err, extract.ErrNothingCaught):
		return http.StatusUnprocessableEntity
	case errors.Is(err, extract.ErrModelConfused):
		return http.StatusBadGateway
	case errors.Is(err, capture.ErrPermissionDenied):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleRegions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, core.Regions)
}

func (s *Server) handleSetup(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Region string `json:"region"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	region, err := s.svc.SetupUser(r.Context(), strings.TrimSpace(req.Region))
	if err != nil {
		slog.ErrorContext(r.Context(), "Setup failed", "region", req.Region, "error", err)
		writeError(w, http.StatusUnprocessableEntity, "unknown region")
		return
	}
	writeJSON(w, http.StatusOK, region)
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	balance := s.svc.Balance()
	symbol := ""
	if region, err := s.svc.Region(); err == nil {
		symbol = region.Symbol
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"cents":     balance.Cents,
		"formatted": balance.Format(symbol),
	})
}

// handleDay returns the entries and totals for one calendar day. Without a
// date parameter it serves the cursor's currently viewed day.
func (s *Server) handleDay(w http.ResponseWriter, r *http.Request) {
	var (
		day time.Time
		err error
	)
	if v := strings.TrimSpace(r.URL.Query().Get("date")); v != "" {
		day, err = time.ParseInLocation(time.DateOnly, v, time.Local)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid date, want YYYY-MM-DD")
			return
		}
	} else {
		day, _, _, err = s.svc.ViewDay()
		if err != nil {
			writeError(w, statusFor(err), "complete setup first")
			return
		}
	}

	txs, summary := s.svc.Day(day)
	symbol := ""
	if region, rerr := s.svc.Region(); rerr == nil {
		symbol = region.Symbol
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"date":         day.Format(time.DateOnly),
		"transactions": s.transactionsJSON(txs),
		"sales_cents":  summary.Sales.Cents,
		"debt_cents":   summary.Debt.Cents,
		"sales":        summary.Sales.Format(symbol),
		"debt":         summary.Debt.Format(symbol),
	})
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	if v := strings.TrimSpace(r.URL.Query().Get("date")); v != "" {
		day, err := time.ParseInLocation(time.DateOnly, v, time.Local)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid date, want YYYY-MM-DD")
			return
		}
		txs, _ := s.svc.Day(day)
		writeJSON(w, http.StatusOK, s.transactionsJSON(txs))
		return
	}
	writeJSON(w, http.StatusOK, s.transactionsJSON(s.svc.Transactions()))
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid transaction id")
		return
	}
	if err := s.svc.DeleteTransaction(r.Context(), id); err != nil {
		writeError(w, http.StatusInternalServerError, "delete failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCaptureVoice(w http.ResponseWriter, r *http.Request) {
	media, ok := s.decodeMedia(w, r, "audio/mp4")
	if !ok {
		return
	}

	var recorded core.Transaction
	session := capture.NewSession(uploadMic{media: media}, nil, func(ctx context.Context, m extract.Media, src capture.Source) error {
		tx, err := s.svc.HandleMedia(ctx, m, src)
		if err != nil {
			return err
		}
		recorded = tx
		return nil
	})

	if err := session.PressIn(r.Context()); err != nil {
		s.captureError(w, r, err)
		return
	}
	if err := session.PressOut(r.Context()); err != nil {
		s.captureError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, s.transactionJSON(recorded))
}

func (s *Server) handleCaptureReceipt(w http.ResponseWriter, r *http.Request) {
	media, ok := s.decodeMedia(w, r, "image/jpeg")
	if !ok {
		return
	}

	var recorded core.Transaction
	session := capture.NewSession(nil, uploadCamera{media: media}, func(ctx context.Context, m extract.Media, src capture.Source) error {
		tx, err := s.svc.HandleMedia(ctx, m, src)
		if err != nil {
			return err
		}
		recorded = tx
		return nil
	})

	if err := session.ScanReceipt(r.Context()); err != nil {
		s.captureError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, s.transactionJSON(recorded))
}

// decodeMedia parses and validates an uploaded media body. It reports false
// after writing the error response itself.
func (s *Server) decodeMedia(w http.ResponseWriter, r *http.Request, defaultMIME string) (extract.Media, bool) {
	var req mediaRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return extract.Media{}, false
	}
	if strings.TrimSpace(req.Data) == "" {
		writeError(w, http.StatusBadRequest, "missing media data")
		return extract.Media{}, false
	}
	if _, err := base64.StdEncoding.DecodeString(req.Data); err != nil {
		writeError(w, http.StatusBadRequest, "media data must be base64-encoded")
		return extract.Media{}, false
	}
	mime := req.MIMEType
	if mime == "" {
		mime = defaultMIME
	}
	return extract.Media{MIMEType: mime, Data: req.Data}, true
}

// captureError writes a classified capture failure. The active notice, if
// any, travels with the error so clients can show the same message a
// device UI would.
func (s *Server) captureError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	body := map[string]string{"error": err.Error()}
	if notice, active := s.svc.Notice(); active {
		body["notice"] = notice.Message
	}
	slog.ErrorContext(r.Context(), "Capture failed", "status", status, "error", err)
	writeJSON(w, status, body)
}

func (s *Server) handleCursorPrev(w http.ResponseWriter, r *http.Request) {
	day, moved, err := s.svc.CursorPrev()
	s.writeCursor(w, day, moved, err)
}

func (s *Server) handleCursorNext(w http.ResponseWriter, r *http.Request) {
	day, moved, err := s.svc.CursorNext()
	s.writeCursor(w, day, moved, err)
}

func (s *Server) handleCursorToday(w http.ResponseWriter, r *http.Request) {
	day, err := s.svc.CursorToday()
	s.writeCursor(w, day, true, err)
}

func (s *Server) writeCursor(w http.ResponseWriter, day time.Time, moved bool, err error) {
	if err != nil {
		writeError(w, statusFor(err), "complete setup first")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"date":  day.Format(time.DateOnly),
		"moved": moved,
	})
}

// handleReset wipes all persisted state; the next boot is a first launch.
func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Reset(r.Context()); err != nil {
		slog.ErrorContext(r.Context(), "Reset failed", "error", err)
		writeError(w, statusFor(err), "reset failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleNotice(w http.ResponseWriter, r *http.Request) {
	notice, active := s.svc.Notice()
	if !active {
		writeJSON(w, http.StatusOK, map[string]any{"active": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"active":     true,
		"message":    notice.Message,
		"expires_at": notice.ExpiresAt.Format(time.RFC3339Nano),
	})
}
