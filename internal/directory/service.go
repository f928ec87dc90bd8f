package directory

import (
	"context"
	"fmt"

	"github.com/hitoshi/dakoku/internal/model"
	"github.com/hitoshi/dakoku/internal/repository"
)

// Service はスタッフ名簿のサービス層。
// 名簿参照をTTLキャッシュ越しに提供する。
type Service struct {
	repo  repository.StaffRepository
	cache *Cache
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(repo repository.StaffRepository, cache *Cache) *Service {
	return &Service{
		repo:  repo,
		cache: cache,
	}
}

// Lookup はユーザーIDでスタッフを検索する。
// キャッシュが有効な間は名簿への問い合わせを省略する。
// 見つからない場合は(nil, nil)を返し、否定結果はキャッシュしない。
func (s *Service) Lookup(ctx context.Context, userID string) (*model.StaffMember, error) {
	if staff, ok := s.cache.Get(userID); ok {
		return staff, nil
	}

	staff, err := s.repo.FindByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("スタッフの取得に失敗しました: %w", err)
	}
	if staff == nil {
		return nil, nil
	}

	s.cache.Set(userID, *staff)
	return staff, nil
}

// Invalidate は指定ユーザーのキャッシュを破棄する。
// 名簿の更新を即座に反映させたい場合に使用する。
func (s *Service) Invalidate(userID string) {
	s.cache.Invalidate(userID)
}
