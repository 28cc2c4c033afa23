// Package handlers is made to handle requests
package handlers

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"musiclocker-backend/audio"
	"musiclocker-backend/config"
	"musiclocker-backend/locker"
	"musiclocker-backend/models"

	"github.com/gin-gonic/gin"
)

const (
	sessionCookie = "locker_session"
	sessionKey    = "session"
	trackPath     = "/api/v1/track/"
)

// AudioInspector describes tracks and converts them for export.
type AudioInspector interface {
	locker.Inspector
	ExportWAV(data []byte) ([]byte, error)
}

type LockerHandler struct {
	store        *locker.Store
	auth         *locker.Authenticator
	audioDecoder AudioInspector
	sessionTTL   time.Duration
	uploadDelay  time.Duration
}

func NewLockerHandler(cfg *config.Config, store *locker.Store, auth *locker.Authenticator) *LockerHandler {
	return &LockerHandler{
		store:        store,
		auth:         auth,
		audioDecoder: audio.NewAudioDecoder(),
		sessionTTL:   cfg.Session.TTL,
		uploadDelay:  cfg.Upload.Delay,
	}
}

func (h *LockerHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":   "healthy",
		"message":  "Music locker is running",
		"version":  "1.0.0",
		"sessions": h.store.Len(),
	})
}

// Session attaches the caller's session, starting a new one when the cookie
// is missing or expired.
func (h *LockerHandler) Session(c *gin.Context) {
	if id, err := c.Cookie(sessionCookie); err == nil {
		if s, ok := h.store.Get(id); ok {
			c.Set(sessionKey, s)
			c.Next()
			return
		}
	}

	h.setSession(c, h.store.Create())
	c.Next()
}

// setSession issues the cookie for s. It is the only cookie the locker sets,
// so a cookie issued earlier in the same request is replaced.
func (h *LockerHandler) setSession(c *gin.Context, s *locker.Session) {
	c.Writer.Header().Del("Set-Cookie")
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(sessionCookie, s.ID, int(h.sessionTTL.Seconds()), "/", "", false, true)
	c.Set(sessionKey, s)
}

func (h *LockerHandler) RequireAuth(c *gin.Context) {
	if !currentSession(c).Authenticated() {
		c.AbortWithStatusJSON(http.StatusUnauthorized, models.ErrorResponse{
			Success: false,
			Message: "Login required",
		})
		return
	}
	c.Next()
}

func (h *LockerHandler) Login(c *gin.Context) {
	var req models.LoginRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.LoginResponse{
			Success: false,
			Message: fmt.Sprintf("Invalid login request: %v", err),
		})
		return
	}

	ok, err := h.auth.Verify(c.Request.Context(), req.Password)
	if err != nil {
		// client went away during the login delay
		c.Status(http.StatusRequestTimeout)
		return
	}

	s := currentSession(c)
	if !ok {
		slog.Info("login rejected", "session", s.ID, "ip", c.ClientIP())
		c.JSON(http.StatusUnauthorized, models.LoginResponse{
			Success: false,
			Message: "wrong password",
		})
		return
	}

	// a cookie handed out before login must not carry the authentication
	renewed := h.store.Renew(s)
	h.setSession(c, renewed)
	slog.Info("login accepted", "session", renewed.ID, "previous", s.ID, "ip", c.ClientIP())
	c.JSON(http.StatusOK, models.LoginResponse{
		Success:       true,
		Authenticated: true,
	})
}

func (h *LockerHandler) Logout(c *gin.Context) {
	s := currentSession(c)
	released := s.Logout()
	slog.Info("logout", "session", s.ID, "released", released)
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *LockerHandler) GetSession(c *gin.Context) {
	s := currentSession(c)
	resp := models.SessionResponse{Authenticated: s.Authenticated()}
	if resp.Authenticated {
		if t := s.Track(); t != nil {
			resp.Track = trackResponse(t)
		}
	}
	c.JSON(http.StatusOK, resp)
}

// UploadTrack reads the whole file into memory and makes it the active track,
// replacing any previous one.
func (h *LockerHandler) UploadTrack(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, models.ErrorResponse{
				Success: false,
				Message: fmt.Sprintf("File too large. Maximum size: %d bytes", tooLarge.Limit),
			})
			return
		}
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Success: false,
			Message: "Audio file is required",
		})
		return
	}

	contentType := fileHeader.Header.Get("Content-Type")
	if !locker.AcceptsAudio(contentType) {
		c.JSON(http.StatusUnsupportedMediaType, models.ErrorResponse{
			Success: false,
			Message: "Only audio files are accepted",
		})
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Success: false,
			Message: fmt.Sprintf("Failed to open audio file: %v", err),
		})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Success: false,
			Message: fmt.Sprintf("Failed to read audio file: %v", err),
		})
		return
	}

	if err := wait(c.Request.Context(), h.uploadDelay); err != nil {
		c.Status(http.StatusRequestTimeout)
		return
	}

	track := locker.LoadTrack(fileHeader.Filename, contentType, data, h.audioDecoder)
	s := currentSession(c)
	released := s.Replace(track)
	slog.Info("track loaded",
		"session", s.ID,
		"file", track.Name,
		"size", track.Size(),
		"cover", track.Cover != nil,
		"released", released)

	c.JSON(http.StatusOK, trackResponse(track))
}

func (h *LockerHandler) RemoveTrack(c *gin.Context) {
	s := currentSession(c)
	released := s.Remove()
	slog.Info("track removed", "session", s.ID, "released", released)
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// StreamAudio serves the track with range support so the player can seek.
func (h *LockerHandler) StreamAudio(c *gin.Context) {
	track, ok := lookupTrack(c)
	if !ok {
		return
	}
	c.Header("Content-Type", track.ContentType)
	c.Header("Cache-Control", "no-store")
	http.ServeContent(c.Writer, c.Request, track.Name, track.UploadedAt, bytes.NewReader(track.Data))
}

func (h *LockerHandler) Cover(c *gin.Context) {
	track, ok := lookupTrack(c)
	if !ok {
		return
	}
	if track.Cover == nil {
		c.JSON(http.StatusNotFound, models.ErrorResponse{
			Success: false,
			Message: "No cover art",
		})
		return
	}
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, track.Cover.MIMEType, track.Cover.Data)
}

func (h *LockerHandler) Download(c *gin.Context) {
	track, ok := lookupTrack(c)
	if !ok {
		return
	}
	sendAttachment(c, track.Name, track.ContentType, track.Data)
}

func (h *LockerHandler) ExportWAV(c *gin.Context) {
	track, ok := lookupTrack(c)
	if !ok {
		return
	}
	if !track.Exportable {
		c.JSON(http.StatusConflict, models.ErrorResponse{
			Success: false,
			Message: "Track is already WAV",
		})
		return
	}

	wavData, err := h.audioDecoder.ExportWAV(track.Data)
	if err != nil {
		slog.Warn("wav export failed", "file", track.Name, "err", err)
		c.JSON(http.StatusUnprocessableEntity, models.ErrorResponse{
			Success: false,
			Message: fmt.Sprintf("Failed to export WAV: %v", err),
		})
		return
	}

	baseFilename := strings.TrimSuffix(track.Name, filepath.Ext(track.Name))
	sendAttachment(c, baseFilename+".wav", "audio/wav", wavData)
}

func sendAttachment(c *gin.Context, filename, contentType string, data []byte) {
	c.Header("Content-Description", "File Transfer")
	c.Header("Content-Transfer-Encoding", "binary")
	c.Header("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": filename}))
	c.Header("Content-Length", fmt.Sprintf("%d", len(data)))
	c.Data(http.StatusOK, contentType, data)
}

func lookupTrack(c *gin.Context) (*locker.Track, bool) {
	track, ok := currentSession(c).Lookup(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, models.ErrorResponse{
			Success: false,
			Message: "File not found",
		})
		return nil, false
	}
	return track, true
}

func currentSession(c *gin.Context) *locker.Session {
	return c.MustGet(sessionKey).(*locker.Session)
}

func trackResponse(t *locker.Track) *models.TrackResponse {
	base := trackPath + t.ID
	resp := &models.TrackResponse{
		Success:     true,
		ID:          t.ID,
		Name:        t.Name,
		Size:        t.Size(),
		SizeMB:      fmt.Sprintf("%.1f", float64(t.Size())/1024/1024),
		ContentType: t.ContentType,
		AudioURL:    base + "/" + locker.HandleAudio,
		DownloadURL: base + "/" + locker.HandleDownload,
		Info:        t.Info,
	}
	if t.Exportable {
		resp.ExportURL = base + "/" + locker.HandleExport + ".wav"
	}
	if t.Cover != nil {
		resp.CoverURL = base + "/" + locker.HandleCover
		resp.CoverType = t.Cover.MIMEType
	}
	return resp
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
