package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"

	"github.com/qs3c/homework_helper/config"
)

const githubAPI = "https://api.github.com"

// Identity 第三方登录返回的身份信息
type Identity struct {
	ProviderID    string
	Email         string
	EmailVerified bool
	Name          string
	AvatarURL     string
}

type githubUser struct {
	ID        int64  `json:"id"`
	Login     string `json:"login"`
	Email     string `json:"email"`
	AvatarURL string `json:"avatar_url"`
	Name      string `json:"name"`
}

type githubEmail struct {
	Email    string `json:"email"`
	Primary  bool   `json:"primary"`
	Verified bool   `json:"verified"`
}

type GitHub struct {
	config  *oauth2.Config
	apiBase string
}

func NewGitHub(cfg config.GithubOAuthConfig) *GitHub {
	return &GitHub{
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURI,
			Scopes:       []string{"user:email"},
			Endpoint:     github.Endpoint,
		},
		apiBase: githubAPI,
	}
}

// Enabled 是否配置了 GitHub 登录
func (g *GitHub) Enabled() bool {
	return g.config.ClientID != "" && g.config.ClientSecret != ""
}

// AuthURL 获取授权跳转地址
func (g *GitHub) AuthURL(state string) string {
	return g.config.AuthCodeURL(state)
}

// Identify 用授权码换取令牌并读取用户身份
func (g *GitHub) Identify(ctx context.Context, code string) (*Identity, error) {
	token, err := g.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("github code exchange: %w", err)
	}
	client := g.config.Client(ctx, token)

	var user githubUser
	if err := g.getJSON(ctx, client, "/user", &user); err != nil {
		return nil, err
	}

	id := &Identity{
		ProviderID: strconv.FormatInt(user.ID, 10),
		Email:      user.Email,
		Name:       user.Name,
		AvatarURL:  user.AvatarURL,
	}
	if id.Name == "" {
		id.Name = user.Login
	}

	// 公开邮箱可能为空，或未标注验证状态，以邮箱列表为准
	var emails []githubEmail
	if err := g.getJSON(ctx, client, "/user/emails", &emails); err == nil {
		if e := pickEmail(emails, user.Email); e != nil {
			id.Email = e.Email
			id.EmailVerified = e.Verified
		}
	}

	if id.Email == "" {
		return nil, fmt.Errorf("github account has no email address")
	}
	return id, nil
}

func pickEmail(emails []githubEmail, public string) *githubEmail {
	for i := range emails {
		if public != "" && emails[i].Email == public {
			return &emails[i]
		}
	}
	for i := range emails {
		if emails[i].Primary {
			return &emails[i]
		}
	}
	if len(emails) > 0 {
		return &emails[0]
	}
	return nil
}

func (g *GitHub) getJSON(ctx context.Context, client *http.Client, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.apiBase+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("github %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("github %s: status %d: %s", path, resp.StatusCode, string(body))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
