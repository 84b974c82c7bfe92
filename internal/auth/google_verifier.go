package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

const defaultGoogleTokenInfoURL = "https://oauth2.googleapis.com/tokeninfo"

// GoogleVerifierConfig はGoogle IDトークン検証の設定。
type GoogleVerifierConfig struct {
	ClientID string

	// テスト用にオーバーライド可能なURL
	TokenInfoURL string
}

// GoogleTokenVerifier はGoogleのtokeninfoエンドポイントでIDトークンを検証する。
// 署名検証はGoogle側で行われ、こちらではaudienceと有効期限を確認する。
type GoogleTokenVerifier struct {
	httpClient *http.Client
	config     GoogleVerifierConfig
}

// NewGoogleTokenVerifier はGoogleTokenVerifierを生成する。
func NewGoogleTokenVerifier(config GoogleVerifierConfig) *GoogleTokenVerifier {
	if config.TokenInfoURL == "" {
		config.TokenInfoURL = defaultGoogleTokenInfoURL
	}
	return &GoogleTokenVerifier{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		config:     config,
	}
}

// googleTokenInfo はtokeninfoエンドポイントのレスポンス。
type googleTokenInfo struct {
	Aud   string `json:"aud"`
	Sub   string `json:"sub"`
	Email string `json:"email"`
	Name  string `json:"name"`
	Exp   string `json:"exp"` // UNIX秒（文字列）
}

// Verify はIDトークンをtokeninfoエンドポイントで検証し、クレームを返す。
func (v *GoogleTokenVerifier) Verify(ctx context.Context, idToken string) (*TokenClaims, error) {
	reqURL := v.config.TokenInfoURL + "?" + url.Values{"id_token": {idToken}}.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("トークン検証リクエストの作成に失敗しました: %w", err)
	}

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("トークン検証リクエストに失敗しました: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return nil, fmt.Errorf("トークン検証レスポンスの読み取りに失敗しました: %w", err)
	}

	// 無効なトークンは400系で返る
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("トークンが無効です (status %d)", resp.StatusCode)
	}

	var info googleTokenInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, fmt.Errorf("トークン検証レスポンスの解析に失敗しました: %w", err)
	}

	// audienceの確認: 他アプリ向けに発行されたトークンを拒否する
	if info.Aud != v.config.ClientID {
		return nil, fmt.Errorf("トークンのaudienceが一致しません")
	}

	if info.Sub == "" {
		return nil, fmt.Errorf("トークンにsubクレームがありません")
	}

	// 有効期限の確認
	exp, err := strconv.ParseInt(info.Exp, 10, 64)
	if err != nil || time.Now().Unix() >= exp {
		return nil, fmt.Errorf("トークンの有効期限が切れています")
	}

	return &TokenClaims{
		ProviderUserID: info.Sub,
		Email:          info.Email,
		Name:           info.Name,
		Provider:       "google",
	}, nil
}

var _ TokenVerifier = (*GoogleTokenVerifier)(nil)
