// Package model はドメインモデルを定義する。
package model

import (
	"strings"
	"time"
)

// StaffMember はスタッフ名簿のエントリを表す。
// 名簿は管理者が外部で管理し、本サービスからは読み取り専用。
type StaffMember struct {
	UserID               string
	Name                 string
	Active               bool
	AllowedLocationNames []string
	FaceEnrolledAt       *time.Time // 顔認証サービスで登録が確認できた日時
	EnrollmentCheckedAt  *time.Time // 登録状態を最後に確認した日時
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// AllowedAt は指定された拠点での打刻が許可されているかを返す。
// 拠点名は大文字小文字を区別せずに比較する。許可リストが空の場合は常にfalse。
func (s *StaffMember) AllowedAt(office string) bool {
	for _, name := range s.AllowedLocationNames {
		if strings.EqualFold(name, office) {
			return true
		}
	}
	return false
}
