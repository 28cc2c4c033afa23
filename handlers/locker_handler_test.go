package handlers

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"musiclocker-backend/config"
	"musiclocker-backend/locker"
	"musiclocker-backend/models"

	qt "github.com/frankban/quicktest"
	"github.com/gin-gonic/gin"
)

var coverJPEG = []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 'J', 'F', 'I', 'F', 0x00, 0x01, 0x01, 0x00, 0xFF, 0xD9}

type fakeDecoder struct {
	exportErr error
}

func (f *fakeDecoder) Inspect(contentType string, data []byte) *models.TrackInfo {
	return &models.TrackInfo{Title: "Song", Duration: 61, Length: "1:01"}
}

func (f *fakeDecoder) ExportWAV(data []byte) ([]byte, error) {
	if f.exportErr != nil {
		return nil, f.exportErr
	}
	return []byte("RIFF....WAVE"), nil
}

// client replays the session cookie the way a browser would.
type client struct {
	c       *qt.C
	router  http.Handler
	cookies []*http.Cookie
}

func newClient(c *qt.C, decoder *fakeDecoder) *client {
	gin.SetMode(gin.TestMode)

	cfg := config.Default()
	cfg.Auth.LoginDelay = 0
	cfg.Upload.Delay = 0
	cfg.Server.MaxUploadMB = 1

	h := NewLockerHandler(cfg, locker.NewStore(cfg.Session.TTL), locker.NewAuthenticator(cfg.Auth))
	h.audioDecoder = decoder
	return &client{c: c, router: NewRouter(cfg, h)}
}

func (cl *client) do(req *http.Request) *httptest.ResponseRecorder {
	for _, cookie := range cl.cookies {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	cl.router.ServeHTTP(rec, req)
	if cookies := rec.Result().Cookies(); len(cookies) > 0 {
		cl.cookies = cookies
	}
	return rec
}

func (cl *client) get(path string) *httptest.ResponseRecorder {
	return cl.do(httptest.NewRequest(http.MethodGet, path, nil))
}

func (cl *client) login(password string) *httptest.ResponseRecorder {
	body, err := json.Marshal(models.LoginRequest{Password: password})
	cl.c.Assert(err, qt.IsNil)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/login", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return cl.do(req)
}

func (cl *client) upload(filename, contentType string, data []byte) *httptest.ResponseRecorder {
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	header := textproto.MIMEHeader{}
	header.Set("Content-Disposition", `form-data; name="file"; filename="`+filename+`"`)
	header.Set("Content-Type", contentType)
	part, err := w.CreatePart(header)
	cl.c.Assert(err, qt.IsNil)
	_, err = part.Write(data)
	cl.c.Assert(err, qt.IsNil)
	cl.c.Assert(w.Close(), qt.IsNil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/track", body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return cl.do(req)
}

func decode[T any](c *qt.C, rec *httptest.ResponseRecorder) T {
	var v T
	c.Assert(json.Unmarshal(rec.Body.Bytes(), &v), qt.IsNil, qt.Commentf("body: %s", rec.Body.String()))
	return v
}

// taggedMP3 is an ID3v2.3 tag with a single JPEG picture followed by audio bytes.
func taggedMP3() []byte {
	content := append([]byte("\x00image/jpeg\x00\x03\x00"), coverJPEG...)
	frame := &bytes.Buffer{}
	frame.WriteString("APIC")
	binary.Write(frame, binary.BigEndian, uint32(len(content)))
	frame.Write([]byte{0, 0})
	frame.Write(content)

	size := frame.Len()
	data := []byte{'I', 'D', '3', 3, 0, 0, 0, 0, byte(size >> 7), byte(size & 0x7F)}
	data = append(data, frame.Bytes()...)
	return append(data, bytes.Repeat([]byte{0xAA}, 64)...)
}

func TestHealthCheck(t *testing.T) {
	c := qt.New(t)
	cl := newClient(c, &fakeDecoder{})

	rec := cl.get("/api/v1/health")
	c.Assert(rec.Code, qt.Equals, http.StatusOK)
	c.Assert(rec.Body.String(), qt.Contains, `"status":"healthy"`)
}

func TestIndexPage(t *testing.T) {
	c := qt.New(t)
	cl := newClient(c, &fakeDecoder{})

	rec := cl.get("/")
	c.Assert(rec.Code, qt.Equals, http.StatusOK)
	c.Assert(rec.Header().Get("Content-Type"), qt.Equals, "text/html; charset=utf-8")
	c.Assert(rec.Body.String(), qt.Contains, `id="loginForm"`)
}

func TestLogin(t *testing.T) {
	c := qt.New(t)
	cl := newClient(c, &fakeDecoder{})

	rec := cl.get("/api/v1/session")
	c.Assert(rec.Code, qt.Equals, http.StatusOK)
	c.Assert(decode[models.SessionResponse](c, rec).Authenticated, qt.IsFalse)
	c.Assert(cl.cookies, qt.HasLen, 1)
	c.Assert(cl.cookies[0].Name, qt.Equals, sessionCookie)
	c.Assert(cl.cookies[0].HttpOnly, qt.IsTrue)

	rec = cl.login("not it")
	c.Assert(rec.Code, qt.Equals, http.StatusUnauthorized)
	c.Assert(decode[models.LoginResponse](c, rec).Message, qt.Equals, "wrong password")

	rec = cl.get("/api/v1/session")
	c.Assert(decode[models.SessionResponse](c, rec).Authenticated, qt.IsFalse)

	rec = cl.login(config.DefaultPassphrase)
	c.Assert(rec.Code, qt.Equals, http.StatusOK)
	c.Assert(decode[models.LoginResponse](c, rec), qt.DeepEquals, models.LoginResponse{
		Success:       true,
		Authenticated: true,
	})

	rec = cl.get("/api/v1/session")
	c.Assert(decode[models.SessionResponse](c, rec), qt.DeepEquals, models.SessionResponse{Authenticated: true})
}

func TestLoginRenewsSession(t *testing.T) {
	c := qt.New(t)
	cl := newClient(c, &fakeDecoder{})

	cl.get("/api/v1/session")
	c.Assert(cl.cookies, qt.HasLen, 1)
	before := cl.cookies[0].Value

	rec := cl.login(config.DefaultPassphrase)
	c.Assert(rec.Code, qt.Equals, http.StatusOK)
	c.Assert(cl.cookies, qt.HasLen, 1)
	c.Assert(cl.cookies[0].Value, qt.Not(qt.Equals), before)

	stale := &client{c: c, router: cl.router, cookies: []*http.Cookie{{Name: sessionCookie, Value: before}}}
	c.Assert(decode[models.SessionResponse](c, stale.get("/api/v1/session")).Authenticated, qt.IsFalse)
	c.Assert(decode[models.SessionResponse](c, cl.get("/api/v1/session")).Authenticated, qt.IsTrue)

	fresh := &client{c: c, router: cl.router}
	c.Assert(fresh.login(config.DefaultPassphrase).Code, qt.Equals, http.StatusOK)
	c.Assert(fresh.cookies, qt.HasLen, 1)
	c.Assert(decode[models.SessionResponse](c, fresh.get("/api/v1/session")).Authenticated, qt.IsTrue)

	// logging in again keeps the loaded track
	track := decode[models.TrackResponse](c, cl.upload("a.mp3", "audio/mpeg", taggedMP3()))
	cl.login(config.DefaultPassphrase)
	session := decode[models.SessionResponse](c, cl.get("/api/v1/session"))
	c.Assert(session.Track, qt.IsNotNil)
	c.Assert(session.Track.ID, qt.Equals, track.ID)
	c.Assert(cl.get(track.AudioURL).Code, qt.Equals, http.StatusOK)
}

func TestSessionsAreIndependent(t *testing.T) {
	c := qt.New(t)
	cl := newClient(c, &fakeDecoder{})
	cl.login(config.DefaultPassphrase)

	other := &client{c: c, router: cl.router}
	rec := other.get("/api/v1/session")
	c.Assert(decode[models.SessionResponse](c, rec).Authenticated, qt.IsFalse)
}

func TestTrackRoutesRequireLogin(t *testing.T) {
	c := qt.New(t)
	cl := newClient(c, &fakeDecoder{})

	rec := cl.upload("song.mp3", "audio/mpeg", taggedMP3())
	c.Assert(rec.Code, qt.Equals, http.StatusUnauthorized)
	c.Assert(decode[models.ErrorResponse](c, rec).Message, qt.Equals, "Login required")

	rec = cl.get("/api/v1/track/anything/audio")
	c.Assert(rec.Code, qt.Equals, http.StatusUnauthorized)
}

func TestUploadRejectsNonAudio(t *testing.T) {
	c := qt.New(t)
	cl := newClient(c, &fakeDecoder{})
	cl.login(config.DefaultPassphrase)

	rec := cl.upload("song.mp3", "audio/mpeg", taggedMP3())
	c.Assert(rec.Code, qt.Equals, http.StatusOK)
	first := decode[models.TrackResponse](c, rec)

	rec = cl.upload("notes.txt", "text/plain", []byte("hello"))
	c.Assert(rec.Code, qt.Equals, http.StatusUnsupportedMediaType)

	// the loaded track is untouched
	rec = cl.get("/api/v1/session")
	session := decode[models.SessionResponse](c, rec)
	c.Assert(session.Track, qt.IsNotNil)
	c.Assert(session.Track.ID, qt.Equals, first.ID)
	c.Assert(cl.get(first.AudioURL).Code, qt.Equals, http.StatusOK)
}

func TestUploadWithoutFile(t *testing.T) {
	c := qt.New(t)
	cl := newClient(c, &fakeDecoder{})
	cl.login(config.DefaultPassphrase)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/track", strings.NewReader(""))
	rec := cl.do(req)
	c.Assert(rec.Code, qt.Equals, http.StatusBadRequest)
	c.Assert(decode[models.ErrorResponse](c, rec).Message, qt.Equals, "Audio file is required")
}

func TestUploadTooLarge(t *testing.T) {
	c := qt.New(t)
	cl := newClient(c, &fakeDecoder{})
	cl.login(config.DefaultPassphrase)

	rec := cl.upload("big.mp3", "audio/mpeg", make([]byte, 2<<20))
	c.Assert(rec.Code, qt.Equals, http.StatusRequestEntityTooLarge)
}

func TestUploadAndServeTrack(t *testing.T) {
	c := qt.New(t)
	cl := newClient(c, &fakeDecoder{})
	cl.login(config.DefaultPassphrase)

	data := taggedMP3()
	rec := cl.upload("my song.mp3", "audio/mpeg", data)
	c.Assert(rec.Code, qt.Equals, http.StatusOK)

	track := decode[models.TrackResponse](c, rec)
	c.Assert(track.Success, qt.IsTrue)
	c.Assert(track.Name, qt.Equals, "my song.mp3")
	c.Assert(track.Size, qt.Equals, len(data))
	c.Assert(track.SizeMB, qt.Equals, "0.0")
	c.Assert(track.CoverType, qt.Equals, "image/jpeg")
	c.Assert(track.AudioURL, qt.Equals, "/api/v1/track/"+track.ID+"/audio")
	c.Assert(track.CoverURL, qt.Equals, "/api/v1/track/"+track.ID+"/cover")
	c.Assert(track.ExportURL, qt.Equals, "/api/v1/track/"+track.ID+"/export.wav")
	c.Assert(track.Info.Title, qt.Equals, "Song")

	c.Run("audio", func(c *qt.C) {
		rec := cl.get(track.AudioURL)
		c.Assert(rec.Code, qt.Equals, http.StatusOK)
		c.Assert(rec.Header().Get("Content-Type"), qt.Equals, "audio/mpeg")
		c.Assert(rec.Body.Bytes(), qt.DeepEquals, data)
	})

	c.Run("audio range", func(c *qt.C) {
		req := httptest.NewRequest(http.MethodGet, track.AudioURL, nil)
		req.Header.Set("Range", "bytes=0-2")
		rec := cl.do(req)
		c.Assert(rec.Code, qt.Equals, http.StatusPartialContent)
		c.Assert(rec.Body.String(), qt.Equals, "ID3")
		c.Assert(rec.Header().Get("Content-Range"), qt.Matches, `bytes 0-2/\d+`)
	})

	c.Run("cover", func(c *qt.C) {
		rec := cl.get(track.CoverURL)
		c.Assert(rec.Code, qt.Equals, http.StatusOK)
		c.Assert(rec.Header().Get("Content-Type"), qt.Equals, "image/jpeg")
		c.Assert(rec.Body.Bytes(), qt.DeepEquals, coverJPEG)
	})

	c.Run("download", func(c *qt.C) {
		rec := cl.get(track.DownloadURL)
		c.Assert(rec.Code, qt.Equals, http.StatusOK)
		c.Assert(rec.Header().Get("Content-Disposition"), qt.Equals, `attachment; filename="my song.mp3"`)
		c.Assert(rec.Body.Bytes(), qt.DeepEquals, data)
	})

	c.Run("export", func(c *qt.C) {
		rec := cl.get(track.ExportURL)
		c.Assert(rec.Code, qt.Equals, http.StatusOK)
		c.Assert(rec.Header().Get("Content-Type"), qt.Equals, "audio/wav")
		c.Assert(rec.Header().Get("Content-Disposition"), qt.Equals, `attachment; filename="my song.wav"`)
		c.Assert(rec.Body.String(), qt.Equals, "RIFF....WAVE")
	})

	c.Run("session", func(c *qt.C) {
		rec := cl.get("/api/v1/session")
		session := decode[models.SessionResponse](c, rec)
		c.Assert(session.Track, qt.DeepEquals, &track)
	})

	c.Run("unknown id", func(c *qt.C) {
		rec := cl.get("/api/v1/track/nope/audio")
		c.Assert(rec.Code, qt.Equals, http.StatusNotFound)
		c.Assert(decode[models.ErrorResponse](c, rec).Message, qt.Equals, "File not found")
	})
}

func TestUploadWithoutCover(t *testing.T) {
	c := qt.New(t)
	cl := newClient(c, &fakeDecoder{})
	cl.login(config.DefaultPassphrase)

	rec := cl.upload("plain.mp3", "audio/mpeg", bytes.Repeat([]byte{0xFF, 0xFB, 0x90, 0x00}, 16))
	c.Assert(rec.Code, qt.Equals, http.StatusOK)
	track := decode[models.TrackResponse](c, rec)
	c.Assert(track.CoverURL, qt.Equals, "")

	rec = cl.get("/api/v1/track/" + track.ID + "/cover")
	c.Assert(rec.Code, qt.Equals, http.StatusNotFound)
	c.Assert(decode[models.ErrorResponse](c, rec).Message, qt.Equals, "No cover art")
}

func TestExportWAVTrack(t *testing.T) {
	c := qt.New(t)
	cl := newClient(c, &fakeDecoder{})
	cl.login(config.DefaultPassphrase)

	wavData := append([]byte("RIFF\x24\x00\x00\x00WAVE"), make([]byte, 32)...)
	rec := cl.upload("take.wav", "audio/wav", wavData)
	c.Assert(rec.Code, qt.Equals, http.StatusOK)
	track := decode[models.TrackResponse](c, rec)
	c.Assert(track.ExportURL, qt.Equals, "")

	rec = cl.get("/api/v1/track/" + track.ID + "/export.wav")
	c.Assert(rec.Code, qt.Equals, http.StatusConflict)
}

func TestExportFailure(t *testing.T) {
	c := qt.New(t)
	cl := newClient(c, &fakeDecoder{exportErr: errors.New("no audio frames decoded")})
	cl.login(config.DefaultPassphrase)

	track := decode[models.TrackResponse](c, cl.upload("song.mp3", "audio/mpeg", taggedMP3()))
	rec := cl.get(track.ExportURL)
	c.Assert(rec.Code, qt.Equals, http.StatusUnprocessableEntity)
	c.Assert(decode[models.ErrorResponse](c, rec).Message, qt.Contains, "no audio frames decoded")
}

func TestReplaceReleasesOldHandles(t *testing.T) {
	c := qt.New(t)
	cl := newClient(c, &fakeDecoder{})
	cl.login(config.DefaultPassphrase)

	first := decode[models.TrackResponse](c, cl.upload("a.mp3", "audio/mpeg", taggedMP3()))
	second := decode[models.TrackResponse](c, cl.upload("b.mp3", "audio/mpeg", taggedMP3()))
	c.Assert(second.ID, qt.Not(qt.Equals), first.ID)

	for _, url := range []string{first.AudioURL, first.CoverURL, first.DownloadURL, first.ExportURL} {
		c.Assert(cl.get(url).Code, qt.Equals, http.StatusNotFound, qt.Commentf("url: %s", url))
	}
	for _, url := range []string{second.AudioURL, second.CoverURL, second.DownloadURL} {
		c.Assert(cl.get(url).Code, qt.Equals, http.StatusOK, qt.Commentf("url: %s", url))
	}
}

func TestRemoveTrack(t *testing.T) {
	c := qt.New(t)
	cl := newClient(c, &fakeDecoder{})
	cl.login(config.DefaultPassphrase)

	track := decode[models.TrackResponse](c, cl.upload("a.mp3", "audio/mpeg", taggedMP3()))

	rec := cl.do(httptest.NewRequest(http.MethodDelete, "/api/v1/track", nil))
	c.Assert(rec.Code, qt.Equals, http.StatusOK)

	session := decode[models.SessionResponse](c, cl.get("/api/v1/session"))
	c.Assert(session.Authenticated, qt.IsTrue)
	c.Assert(session.Track, qt.IsNil)
	c.Assert(cl.get(track.AudioURL).Code, qt.Equals, http.StatusNotFound)
	c.Assert(cl.get(track.CoverURL).Code, qt.Equals, http.StatusNotFound)
}

func TestLogout(t *testing.T) {
	c := qt.New(t)
	cl := newClient(c, &fakeDecoder{})
	cl.login(config.DefaultPassphrase)

	track := decode[models.TrackResponse](c, cl.upload("a.mp3", "audio/mpeg", taggedMP3()))

	rec := cl.do(httptest.NewRequest(http.MethodPost, "/api/v1/logout", nil))
	c.Assert(rec.Code, qt.Equals, http.StatusOK)

	session := decode[models.SessionResponse](c, cl.get("/api/v1/session"))
	c.Assert(session, qt.DeepEquals, models.SessionResponse{})
	c.Assert(cl.get(track.AudioURL).Code, qt.Equals, http.StatusUnauthorized)

	// logging back in does not bring the track back
	cl.login(config.DefaultPassphrase)
	c.Assert(cl.get(track.AudioURL).Code, qt.Equals, http.StatusNotFound)
}

func TestWaitHonoursContext(t *testing.T) {
	c := qt.New(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c.Assert(wait(ctx, time.Hour), qt.Not(qt.IsNil))
	c.Assert(wait(ctx, 0), qt.IsNil)
}
