// Package model はドメインモデルを定義する。
package model

// Location は承認済みオフィスの円形ジオフェンスを表す。
// 設定ファイルで管理される参照データであり、ワークフローからは変更されない。
type Location struct {
	Name         string
	Latitude     float64
	Longitude    float64
	RadiusMeters float64
}

// GeoPoint はリクエストごとに与えられる現在地を表す。
type GeoPoint struct {
	Latitude  float64
	Longitude float64
}
