// Package faceid は顔認証サービス連携機能を提供する。
// 顔照合APIの呼び出しと端末から送られる顔画像サンプルの正規化を含む。
package faceid

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

// VerifyResult は顔照合APIの照合結果。
// 候補が1件も返らなかった場合はSubjectが空文字列、Similarityが0になる。
type VerifyResult struct {
	Subject    string
	Similarity float64
}

// Client は顔照合APIのクライアント。
// 登録済みの顔データに対する照合と、被写体の登録状況確認を行う。
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	baseURL    string // テスト用にエンドポイントを差し替え可能
	apiKey     string
}

// NewClient はClient の新しいインスタンスを生成する。
func NewClient(httpClient *http.Client, logger *slog.Logger, baseURL, apiKey string) *Client {
	return &Client{
		httpClient: httpClient,
		logger:     logger,
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
	}
}

// verifyRequest は照合APIへのリクエストボディ。
type verifyRequest struct {
	Image   string `json:"image"`
	Subject string `json:"subject,omitempty"`
	Limit   int    `json:"limit"`
}

// verifyResponse は照合APIのレスポンスボディ。
type verifyResponse struct {
	Result []struct {
		Subject    string  `json:"subject"`
		Similarity float64 `json:"similarity"`
	} `json:"result"`
}

// Verify は顔画像サンプルを登録済みの顔データと照合する。
// sampleは正規化済みのJPEGバイト列、subjectHintは照合対象を絞り込むためのユーザーIDを指定する。
// 候補が返らなかった場合はエラーではなくSimilarity 0の結果を返す。
// 通信失敗やAPIエラー時はエラーを返す（照合不成立とは区別される）。
func (c *Client) Verify(ctx context.Context, sample []byte, subjectHint string) (*VerifyResult, error) {
	if len(sample) == 0 {
		return nil, fmt.Errorf("顔画像サンプルが空です")
	}

	reqBody, err := json.Marshal(verifyRequest{
		Image:   base64.StdEncoding.EncodeToString(sample),
		Subject: subjectHint,
		Limit:   1,
	})
	if err != nil {
		return nil, fmt.Errorf("リクエストボディの生成に失敗しました: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/recognize", bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("顔認証APIの呼び出しに失敗しました",
			slog.String("error", err.Error()),
			slog.String("subject_hint", subjectHint),
		)
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.logger.Error("顔認証APIがエラーステータスを返しました",
			slog.Int("http_status", resp.StatusCode),
			slog.String("subject_hint", subjectHint),
		)
		return nil, fmt.Errorf("顔認証APIがステータス %d を返しました", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.logger.Error("レスポンスボディの読み取りに失敗しました",
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("レスポンスボディの読み取りに失敗しました: %w", err)
	}

	var parsed verifyResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		c.logger.Error("顔認証APIのレスポンスのパースに失敗しました",
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("レスポンスJSONのパースに失敗しました: %w", err)
	}

	// 候補なしは「似ている顔が見つからなかった」として扱い、エラーにしない
	if len(parsed.Result) == 0 {
		return &VerifyResult{}, nil
	}

	top := parsed.Result[0]
	return &VerifyResult{
		Subject:    top.Subject,
		Similarity: top.Similarity,
	}, nil
}

// CheckEnrollment は指定ユーザーの顔データが顔認証サービスに登録済みかを確認する。
// 登録済みならtrue、未登録ならfalseを返す。判定できない場合はエラーを返す。
func (c *Client) CheckEnrollment(ctx context.Context, userID string) (bool, error) {
	reqURL := c.baseURL + "/subjects/" + url.PathEscape(userID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return false, fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("x-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("顔認証APIの登録状況確認に失敗しました",
			slog.String("error", err.Error()),
			slog.String("user_id", userID),
		)
		return false, err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	switch resp.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		c.logger.Error("顔認証APIの登録状況確認がエラーステータスを返しました",
			slog.Int("http_status", resp.StatusCode),
			slog.String("user_id", userID),
		)
		return false, fmt.Errorf("顔認証APIがステータス %d を返しました", resp.StatusCode)
	}
}
