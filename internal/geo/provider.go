package geo

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hitoshi/dakoku/internal/model"
)

// DefaultRadiusMeters は半径未指定のジオフェンスに適用される既定値。
const DefaultRadiusMeters = 150.0

// locationsFile はジオフェンス設定ファイルのトップレベル構造。
type locationsFile struct {
	Locations []locationEntry `yaml:"locations"`
}

type locationEntry struct {
	Name         string  `yaml:"name"`
	Latitude     float64 `yaml:"latitude"`
	Longitude    float64 `yaml:"longitude"`
	RadiusMeters float64 `yaml:"radius_meters"`
}

// FileProvider はYAML設定ファイルからジオフェンス一覧を読み込むプロバイダ。
// 一覧の寿命はrefreshIntervalで区切られ、期限切れ後の参照時に再読み込みされる。
// 再読み込みに失敗した場合は直近の正常な一覧を使い続ける。
type FileProvider struct {
	path            string
	refreshInterval time.Duration
	logger          *slog.Logger

	mu        sync.RWMutex
	locations []model.Location
	loadedAt  time.Time

	// テスト用に時刻を差し替えるためのフック
	now func() time.Time
}

// NewFileProvider は設定ファイルを初回読み込みしてプロバイダを生成する。
// 初回読み込みの失敗は起動エラーとしてそのまま返す。
func NewFileProvider(path string, refreshInterval time.Duration, logger *slog.Logger) (*FileProvider, error) {
	locs, err := loadLocations(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load locations file: %w", err)
	}
	p := &FileProvider{
		path:            path,
		refreshInterval: refreshInterval,
		logger:          logger,
		locations:       locs,
		now:             time.Now,
	}
	p.loadedAt = p.now()
	return p, nil
}

// Locations は現在のジオフェンス一覧をファイル記載順で返す。
func (p *FileProvider) Locations(ctx context.Context) ([]model.Location, error) {
	p.mu.RLock()
	fresh := p.now().Sub(p.loadedAt) < p.refreshInterval
	locs := p.locations
	p.mu.RUnlock()

	if fresh {
		return locs, nil
	}
	return p.refresh(), nil
}

// refresh は設定ファイルを再読み込みする。失敗時は直近の一覧を返す。
func (p *FileProvider) refresh() []model.Location {
	p.mu.Lock()
	defer p.mu.Unlock()

	// 他のゴルーチンが先に更新済みならそのまま返す
	if p.now().Sub(p.loadedAt) < p.refreshInterval {
		return p.locations
	}

	locs, err := loadLocations(p.path)
	if err != nil {
		p.logger.Error("ジオフェンス設定の再読み込みに失敗しました。直近の設定を使い続けます",
			slog.String("path", p.path),
			slog.String("error", err.Error()),
		)
		p.loadedAt = p.now()
		return p.locations
	}

	p.locations = locs
	p.loadedAt = p.now()
	p.logger.Info("ジオフェンス設定を再読み込みしました",
		slog.String("path", p.path),
		slog.Int("count", len(locs)),
	)
	return p.locations
}

// loadLocations はYAMLを読み込み、検証済みのジオフェンス一覧を返す。
func loadLocations(path string) ([]model.Location, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var f locationsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("invalid yaml: %w", err)
	}
	if len(f.Locations) == 0 {
		return nil, fmt.Errorf("no locations defined in %s", path)
	}

	seen := make(map[string]struct{}, len(f.Locations))
	locs := make([]model.Location, 0, len(f.Locations))
	for i, e := range f.Locations {
		if strings.TrimSpace(e.Name) == "" {
			return nil, fmt.Errorf("locations[%d]: name is required", i)
		}
		// オフィス名の一意性は大文字小文字を区別せずに検証する
		key := strings.ToLower(e.Name)
		if _, ok := seen[key]; ok {
			return nil, fmt.Errorf("locations[%d]: duplicate name: %s", i, e.Name)
		}
		seen[key] = struct{}{}

		if e.Latitude < -90 || e.Latitude > 90 {
			return nil, fmt.Errorf("locations[%d] %s: latitude out of range: %v", i, e.Name, e.Latitude)
		}
		if e.Longitude < -180 || e.Longitude > 180 {
			return nil, fmt.Errorf("locations[%d] %s: longitude out of range: %v", i, e.Name, e.Longitude)
		}

		radius := e.RadiusMeters
		if radius == 0 {
			radius = DefaultRadiusMeters
		}
		if radius < 0 {
			return nil, fmt.Errorf("locations[%d] %s: radius_meters must be positive: %v", i, e.Name, e.RadiusMeters)
		}

		locs = append(locs, model.Location{
			Name:         e.Name,
			Latitude:     e.Latitude,
			Longitude:    e.Longitude,
			RadiusMeters: radius,
		})
	}
	return locs, nil
}
