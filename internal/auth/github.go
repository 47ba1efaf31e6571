package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"strconv"

	"github.com/google/go-github/v57/github"
	"golang.org/x/oauth2"
	githuboauth "golang.org/x/oauth2/github"

	"studypool-backend/internal/model"
)

var ErrNoVerifiedEmail = errors.New("github account has no verified primary email")

// GitHubAuthenticator GitHub OAuth2 authorization code flow
type GitHubAuthenticator struct {
	oauth      *oauth2.Config
	apiBaseURL *url.URL
}

// NewGitHubAuthenticator GitHubAuthenticator 생성
func NewGitHubAuthenticator(clientID, clientSecret, redirectURL string) *GitHubAuthenticator {
	return &GitHubAuthenticator{
		oauth: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Scopes:       []string{"read:user", "user:email"},
			Endpoint:     githuboauth.Endpoint,
		},
	}
}

// WithEndpoints 토큰 엔드포인트와 API 주소 교체 (GitHub Enterprise, 테스트)
func (g *GitHubAuthenticator) WithEndpoints(endpoint oauth2.Endpoint, apiBaseURL string) (*GitHubAuthenticator, error) {
	u, err := url.Parse(apiBaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse github api url: %w", err)
	}
	if u.Path == "" || u.Path[len(u.Path)-1] != '/' {
		u.Path += "/"
	}
	cfg := *g.oauth
	cfg.Endpoint = endpoint
	return &GitHubAuthenticator{oauth: &cfg, apiBaseURL: u}, nil
}

// NewState CSRF 방지용 state 값
func NewState() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// AuthCodeURL GitHub 로그인 페이지 주소
func (g *GitHubAuthenticator) AuthCodeURL(state string) string {
	return g.oauth.AuthCodeURL(state)
}

// Exchange code 를 토큰으로 교환한 뒤 사용자 정보 조회
func (g *GitHubAuthenticator) Exchange(ctx context.Context, code string) (*Identity, error) {
	token, err := g.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("github code exchange: %w", err)
	}

	client := github.NewClient(g.oauth.Client(ctx, token))
	if g.apiBaseURL != nil {
		client.BaseURL = g.apiBaseURL
	}

	user, _, err := client.Users.Get(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("github get user: %w", err)
	}

	emails, _, err := client.Users.ListEmails(ctx, &github.ListOptions{PerPage: 100})
	if err != nil {
		return nil, fmt.Errorf("github list emails: %w", err)
	}

	email := ""
	for _, e := range emails {
		if e.GetPrimary() && e.GetVerified() {
			email = e.GetEmail()
			break
		}
	}
	if email == "" {
		return nil, ErrNoVerifiedEmail
	}

	name := user.GetName()
	if name == "" {
		name = user.GetLogin()
	}

	return &Identity{
		Provider:   model.AuthProviderGitHub.String(),
		ProviderID: strconv.FormatInt(user.GetID(), 10),
		Email:      email,
		Name:       name,
		Picture:    user.GetAvatarURL(),
	}, nil
}
