package handlers

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"slices"

	"github.com/google/uuid"
	"github.com/gorilla/sessions"
	"github.com/labstack/echo/v4"

	"shorts-site/jobs"
	"shorts-site/publish"
	"shorts-site/storage"
	"shorts-site/titles"
)

const (
	publishSession = "publish"
	stateKey       = "oauth_state"
)

// NewSessionStore holds the OAuth state between connect and callback.
func NewSessionStore(key []byte, secure bool) *sessions.CookieStore {
	store := sessions.NewCookieStore(key)
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   15 * 60, // seconds
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
	return store
}

func (s *Server) publishEnabled(c echo.Context) error {
	if s.Publish == nil || s.Sessions == nil {
		return fail(c, http.StatusServiceUnavailable, codePublishDisabled, "Publishing is not configured")
	}
	return nil
}

// PublishConnect starts the OAuth flow, remembering the state in a cookie
// session.
func (s *Server) PublishConnect(c echo.Context) error {
	if s.Publish == nil || s.Sessions == nil {
		return s.publishEnabled(c)
	}
	session, err := s.Sessions.Get(c.Request(), publishSession)
	if err != nil {
		s.log.Warnln("discarding unreadable publish session:", err)
	}
	state := uuid.NewString()
	session.Values[stateKey] = state
	if err := session.Save(c.Request(), c.Response()); err != nil {
		return s.internal(c, "Could not start publishing authorization", err)
	}
	return c.Redirect(http.StatusFound, s.Publish.AuthURL(state))
}

func (s *Server) PublishCallback(c echo.Context) error {
	if s.Publish == nil || s.Sessions == nil {
		return s.publishEnabled(c)
	}
	if msg := c.QueryParam("error"); msg != "" {
		return fail(c, http.StatusBadRequest, codeBadRequest, "Authorization was refused: "+msg)
	}
	session, err := s.Sessions.Get(c.Request(), publishSession)
	if err != nil {
		return fail(c, http.StatusBadRequest, codeBadRequest, "Authorization session expired")
	}
	want, _ := session.Values[stateKey].(string)
	got := c.QueryParam("state")
	if want == "" || subtle.ConstantTimeCompare([]byte(want), []byte(got)) != 1 {
		return fail(c, http.StatusBadRequest, codeBadRequest, "Authorization state does not match")
	}
	delete(session.Values, stateKey)
	if err := session.Save(c.Request(), c.Response()); err != nil {
		s.log.Warnln("clear publish session:", err)
	}

	acct, err := s.Publish.Connect(c.Request().Context(), c.QueryParam("code"))
	if err != nil {
		s.log.Errorln("publish connect:", err)
		return fail(c, http.StatusBadGateway, codeInternal, "Could not connect the account")
	}
	return c.JSON(http.StatusOK, acct.Info())
}

func (s *Server) PublishAccounts(c echo.Context) error {
	if s.Publish == nil {
		return s.publishEnabled(c)
	}
	accounts, err := s.Publish.Accounts(c.Request().Context())
	if err != nil {
		return s.internal(c, "Could not list accounts", err)
	}
	return c.JSON(http.StatusOK, map[string]any{"accounts": accounts})
}

func (s *Server) PublishDisconnect(c echo.Context) error {
	if s.Publish == nil {
		return s.publishEnabled(c)
	}
	err := s.Publish.Disconnect(c.Request().Context(), c.Param("id"))
	if errors.Is(err, publish.ErrAccountNotFound) {
		return fail(c, http.StatusNotFound, codeNotFound, "Account not found")
	}
	if err != nil {
		return s.internal(c, "Could not disconnect the account", err)
	}
	return c.NoContent(http.StatusNoContent)
}

type publishRequest struct {
	AccountID   string   `json:"accountId"`
	Privacy     string   `json:"privacy"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
}

// PublishClip uploads one rendered clip. Metadata the request leaves out is
// generated.
func (s *Server) PublishClip(c echo.Context) error {
	if s.Publish == nil {
		return s.publishEnabled(c)
	}
	var req publishRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, codeBadRequest, "Request body must be JSON")
	}
	if req.AccountID == "" {
		return fail(c, http.StatusBadRequest, codeBadRequest, "accountId is required")
	}
	if req.Privacy != "" && !slices.Contains([]string{"private", "unlisted", "public"}, req.Privacy) {
		return fail(c, http.StatusBadRequest, codeBadRequest, "privacy must be private, unlisted or public")
	}

	j, err := s.lookup(c)
	if j == nil {
		return err
	}
	if j.Status != jobs.StatusCompleted || j.Result == nil {
		return fail(c, http.StatusConflict, codeConflict, "Job has not completed")
	}
	clipID := c.Param("clipId")
	index := slices.IndexFunc(j.Result.Clips, func(ci jobs.ClipInfo) bool { return ci.ID == clipID })
	if index < 0 {
		return fail(c, http.StatusNotFound, codeNotFound, "Clip not found")
	}

	ctx := c.Request().Context()
	md := titles.Metadata{Title: req.Title, Description: req.Description, Tags: req.Tags}
	if md.Title == "" || md.Description == "" {
		generated, err := s.Metadata.GenerateMetadata(ctx, j.Result.SourceTitle, index, len(j.Result.Clips))
		if err != nil {
			return s.internal(c, "Could not prepare metadata", err)
		}
		if md.Title == "" {
			md.Title = generated.Title
			if t := j.Result.Clips[index].Title; t != "" {
				md.Title = t
			}
		}
		if md.Description == "" {
			md.Description = generated.Description
		}
		if len(md.Tags) == 0 {
			md.Tags = generated.Tags
		}
	}

	res, err := s.Publish.Upload(ctx, publish.UploadRequest{
		AccountID: req.AccountID,
		VideoPath: s.Storage.LocalPath(storage.ClipKey(j.ID, clipID)),
		Metadata:  md,
		Privacy:   req.Privacy,
	})
	if errors.Is(err, publish.ErrAccountNotFound) {
		return fail(c, http.StatusNotFound, codeNotFound, "Account not found")
	}
	if err != nil {
		s.log.Errorln("publish clip:", err)
		return fail(c, http.StatusBadGateway, codeInternal, "Upload failed")
	}
	return c.JSON(http.StatusOK, res)
}
