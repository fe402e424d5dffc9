package publish

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"

	"shorts-site/config"
	"shorts-site/titles"
)

const Provider = "youtube"

var ErrDisabled = errors.New("publishing is not configured")

type UploadRequest struct {
	AccountID string
	VideoPath string
	Metadata  titles.Metadata
	// Privacy is private, unlisted or public. Empty means private.
	Privacy string
}

type UploadResult struct {
	VideoID string `json:"videoId"`
	URL     string `json:"url"`
}

// Service connects publishing accounts through OAuth and uploads rendered
// clips to them.
type Service struct {
	oauth    *oauth2.Config
	endpoint string
	accounts *AccountStore
	sealer   *Sealer
	log      *logrus.Entry
	now      func() time.Time
}

func NewService(cfg config.PublishConfig, accounts *AccountStore, sealer *Sealer, log *logrus.Entry) *Service {
	return &Service{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       cfg.Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:  cfg.AuthURL,
				TokenURL: cfg.TokenURL,
			},
		},
		endpoint: cfg.APIEndpoint,
		accounts: accounts,
		sealer:   sealer,
		log:      log,
		now:      time.Now,
	}
}

// AuthURL is where the user grants access. state is echoed to the callback.
func (s *Service) AuthURL(state string) string {
	return s.oauth.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// Connect exchanges an authorization code and stores the new account.
func (s *Service) Connect(ctx context.Context, code string) (*Account, error) {
	tok, err := s.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("exchange authorization code: %w", err)
	}
	acct := &Account{
		Provider: Provider,
		Name:     fmt.Sprintf("%s account connected %s", Provider, s.now().UTC().Format("2006-01-02 15:04")),
	}
	if err := s.storeToken(ctx, acct, tok); err != nil {
		return nil, err
	}
	s.log.Infoln("connected account", acct.ID)
	return acct, nil
}

func (s *Service) Accounts(ctx context.Context) ([]AccountInfo, error) {
	accounts, err := s.accounts.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]AccountInfo, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, a.Info())
	}
	return out, nil
}

func (s *Service) Disconnect(ctx context.Context, id string) error {
	if err := s.accounts.Delete(ctx, id); err != nil {
		return err
	}
	s.log.Infoln("disconnected account", id)
	return nil
}

// Upload sends the video at req.VideoPath to the account, refreshing its
// token first when needed.
func (s *Service) Upload(ctx context.Context, req UploadRequest) (*UploadResult, error) {
	acct, err := s.accounts.Get(ctx, req.AccountID)
	if err != nil {
		return nil, err
	}
	stored, err := s.token(acct)
	if err != nil {
		return nil, err
	}
	tok, err := s.oauth.TokenSource(ctx, stored).Token()
	if err != nil {
		return nil, fmt.Errorf("refresh token: %w", err)
	}
	if tok.AccessToken != stored.AccessToken {
		s.log.Debugln("refreshed token for account", acct.ID)
		if err := s.storeToken(ctx, acct, tok); err != nil {
			return nil, err
		}
	}

	f, err := os.Open(req.VideoPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	opts := []option.ClientOption{option.WithHTTPClient(oauth2.NewClient(ctx, oauth2.StaticTokenSource(tok)))}
	if s.endpoint != "" {
		opts = append(opts, option.WithEndpoint(s.endpoint))
	}
	svc, err := youtube.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("youtube client: %w", err)
	}

	privacy := req.Privacy
	if privacy == "" {
		privacy = "private"
	}
	video := &youtube.Video{
		Snippet: &youtube.VideoSnippet{
			Title:       req.Metadata.Title,
			Description: req.Metadata.Description,
			Tags:        req.Metadata.Tags,
			CategoryId:  "22",
		},
		Status: &youtube.VideoStatus{PrivacyStatus: privacy},
	}

	s.log.Infoln("uploading", req.VideoPath, "to account", acct.ID)
	uploaded, err := svc.Videos.Insert([]string{"snippet", "status"}, video).
		Media(f, googleapi.ContentType("video/mp4")).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("upload: %w", err)
	}
	if uploaded.Id == "" {
		return nil, errors.New("upload: response carried no video id")
	}
	return &UploadResult{VideoID: uploaded.Id, URL: "https://youtube.com/shorts/" + uploaded.Id}, nil
}

func (s *Service) token(acct *Account) (*oauth2.Token, error) {
	access, err := s.sealer.Open(acct.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("open access token: %w", err)
	}
	refresh, err := s.sealer.Open(acct.RefreshToken)
	if err != nil {
		return nil, fmt.Errorf("open refresh token: %w", err)
	}
	return &oauth2.Token{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    acct.TokenType,
		Expiry:       acct.Expiry,
	}, nil
}

func (s *Service) storeToken(ctx context.Context, acct *Account, tok *oauth2.Token) error {
	access, err := s.sealer.Seal(tok.AccessToken)
	if err != nil {
		return err
	}
	// refresh responses may omit the refresh token
	if tok.RefreshToken != "" {
		refresh, err := s.sealer.Seal(tok.RefreshToken)
		if err != nil {
			return err
		}
		acct.RefreshToken = refresh
	}
	acct.AccessToken = access
	acct.TokenType = tok.TokenType
	acct.Expiry = tok.Expiry
	return s.accounts.Save(ctx, acct)
}
