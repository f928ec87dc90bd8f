// Package geo は現在地と承認済みオフィスの円形ジオフェンス判定を提供する。
package geo

import (
	"math"

	"github.com/hitoshi/dakoku/internal/model"
)

// earthRadiusMeters はハーバーサイン距離計算に用いる地球半径（6371km）。
const earthRadiusMeters = 6371000.0

// DistanceMeters は2点間の大円距離をメートルで返す（ハーバーサイン公式）。
// 入力は度で受け取り、内部でラジアンに変換する。
func DistanceMeters(a, b model.GeoPoint) float64 {
	lat1 := a.Latitude * math.Pi / 180
	lat2 := b.Latitude * math.Pi / 180
	dLat := (b.Latitude - a.Latitude) * math.Pi / 180
	dLon := (b.Longitude - a.Longitude) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return earthRadiusMeters * c
}

// ResolveOffice は現在地を含む最初のジオフェンスの名前を返す。
// ジオフェンスは与えられた順に判定され、最初に一致したものが勝つ
// （重なり合う場合のタイブレークも先頭優先）。境界上（距離 == 半径）は内側扱い。
// どのジオフェンスにも含まれない場合はok=falseを返す。これはエラーではない。
func ResolveOffice(point model.GeoPoint, locations []model.Location) (string, bool) {
	for _, loc := range locations {
		center := model.GeoPoint{Latitude: loc.Latitude, Longitude: loc.Longitude}
		if DistanceMeters(point, center) <= loc.RadiusMeters {
			return loc.Name, true
		}
	}
	return "", false
}
