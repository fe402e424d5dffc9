package publish

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"google.golang.org/api/youtube/v3"

	"shorts-site/config"
	"shorts-site/database"
	"shorts-site/titles"
)

func quietLog() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

func TestSealerRoundTrip(t *testing.T) {
	s, err := NewSealer("secret")
	if err != nil {
		t.Fatal(err)
	}
	a, err := s.Seal("ya29.token")
	if err != nil {
		t.Fatal(err)
	}
	b, _ := s.Seal("ya29.token")
	if a == b {
		t.Fatalf("sealing twice gave the same output")
	}
	if strings.Contains(a, "ya29") {
		t.Fatalf("sealed value leaks plaintext")
	}
	got, err := s.Open(a)
	if err != nil || got != "ya29.token" {
		t.Fatalf("Open = %q, %v", got, err)
	}
	if empty, _ := s.Seal(""); empty != "" {
		t.Fatalf("empty plaintext sealed to %q", empty)
	}
}

func TestSealerRejectsTampering(t *testing.T) {
	s, _ := NewSealer("secret")
	sealed, _ := s.Seal("refresh-token")

	other, _ := NewSealer("another secret")
	if _, err := other.Open(sealed); !errors.Is(err, ErrSealedData) {
		t.Fatalf("wrong secret err = %v", err)
	}

	raw := []byte(sealed)
	i := len(raw) / 2
	if raw[i] == 'A' {
		raw[i] = 'B'
	} else {
		raw[i] = 'A'
	}
	if _, err := s.Open(string(raw)); !errors.Is(err, ErrSealedData) {
		t.Fatalf("tampered err = %v", err)
	}
	if _, err := s.Open("c2hvcnQ="); !errors.Is(err, ErrSealedData) {
		t.Fatalf("short input err = %v", err)
	}
	if _, err := NewSealer(""); err == nil {
		t.Fatalf("expected an error for an empty secret")
	}
}

func newService(t *testing.T, cfg config.PublishConfig) (*Service, *AccountStore) {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "publish.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { database.Close(db) })
	accounts := NewAccountStore(db)
	if err := accounts.Migrate(); err != nil {
		t.Fatal(err)
	}
	sealer, _ := NewSealer("secret")
	return NewService(cfg, accounts, sealer, quietLog()), accounts
}

func TestConnectUploadDisconnect(t *testing.T) {
	ctx := context.Background()

	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		if r.Form.Get("code") != "auth-code" {
			t.Errorf("code = %q", r.Form.Get("code"))
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"access_token":"access-1","refresh_token":"refresh-1","token_type":"Bearer","expires_in":3600}`)
	}))
	defer tokenSrv.Close()

	var gotMeta youtube.Video
	var gotVideo string
	apiSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/youtube/v3/videos") {
			t.Errorf("path = %q", r.URL.Path)
		}
		if got := r.URL.Query().Get("part"); got != "snippet,status" {
			t.Errorf("part = %q", got)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer access-1" {
			t.Errorf("Authorization = %q", got)
		}
		mediaType, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
		if err != nil || mediaType != "multipart/related" {
			t.Errorf("content type %q: %v", mediaType, err)
		}
		mr := multipart.NewReader(r.Body, params["boundary"])
		meta, err := mr.NextPart()
		if err != nil {
			t.Errorf("metadata part: %v", err)
			return
		}
		json.NewDecoder(meta).Decode(&gotMeta)
		video, err := mr.NextPart()
		if err != nil {
			t.Errorf("video part: %v", err)
			return
		}
		data, _ := io.ReadAll(video)
		gotVideo = string(data)
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"id":"vid123"}`)
	}))
	defer apiSrv.Close()

	svc, accounts := newService(t, config.PublishConfig{
		ClientID:     "client",
		ClientSecret: "secret",
		AuthURL:      tokenSrv.URL + "/auth",
		TokenURL:     tokenSrv.URL + "/token",
		APIEndpoint:  apiSrv.URL + "/",
		RedirectURL:  "http://localhost/api/publish/callback",
	})

	if u := svc.AuthURL("state-1"); !strings.Contains(u, "state=state-1") || !strings.Contains(u, "access_type=offline") {
		t.Fatalf("AuthURL = %q", u)
	}

	acct, err := svc.Connect(ctx, "auth-code")
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	stored, err := accounts.Get(ctx, acct.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.AccessToken == "access-1" || stored.RefreshToken == "refresh-1" {
		t.Fatalf("tokens stored in the clear")
	}

	list, err := svc.Accounts(ctx)
	if err != nil || len(list) != 1 || list[0].ID != acct.ID || list[0].Provider != Provider {
		t.Fatalf("Accounts = %+v, %v", list, err)
	}

	video := filepath.Join(t.TempDir(), "clip.mp4")
	os.WriteFile(video, []byte("mp4 bytes"), 0o644)
	res, err := svc.Upload(ctx, UploadRequest{
		AccountID: acct.ID,
		VideoPath: video,
		Metadata:  titles.Metadata{Title: "Clip", Description: "desc", Tags: []string{"shorts"}},
	})
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if res.VideoID != "vid123" || res.URL != "https://youtube.com/shorts/vid123" {
		t.Fatalf("result = %+v", res)
	}
	if gotMeta.Snippet == nil || gotMeta.Status == nil {
		t.Fatalf("upload metadata missing parts: %+v", gotMeta)
	}
	if gotMeta.Snippet.Title != "Clip" || gotMeta.Snippet.CategoryId != "22" || gotMeta.Status.PrivacyStatus != "private" || gotVideo != "mp4 bytes" {
		t.Fatalf("upload body meta=%+v video=%q", gotMeta, gotVideo)
	}

	if err := svc.Disconnect(ctx, acct.ID); err != nil {
		t.Fatal(err)
	}
	if err := svc.Disconnect(ctx, acct.ID); !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("second Disconnect err = %v", err)
	}
	if _, err := svc.Upload(ctx, UploadRequest{AccountID: acct.ID, VideoPath: video}); !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("upload to removed account err = %v", err)
	}
}
