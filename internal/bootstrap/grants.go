// Package bootstrap はサーバーを経由せずにクレームを付与するオフライン処理を提供する。
// 最初の管理者はSetClaimsを呼べないため、この経路でのみ作成できる。
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/hitoshi/accessportal/internal/model"
)

// GrantClaims はYAML上のクレーム表現。
type GrantClaims struct {
	IsAdmin    bool    `yaml:"isAdmin"`
	IsTechLead bool    `yaml:"isTechLead"`
	TeamID     *string `yaml:"teamId,omitempty"`
}

// Grant は1ユーザー分の付与内容。
type Grant struct {
	UID    string      `yaml:"uid"`
	Claims GrantClaims `yaml:"claims"`
	// SyncProfile がtrueの場合、プロフィールのロールも同じ値に揃える。
	SyncProfile bool `yaml:"syncProfile"`
}

// File は付与リストファイルの形式。
type File struct {
	Grants []Grant `yaml:"grants"`
}

// RoleClaims はモデルのクレームに変換する。
func (c GrantClaims) RoleClaims() model.RoleClaims {
	return model.RoleClaims{IsAdmin: c.IsAdmin, IsTechLead: c.IsTechLead, TeamID: c.TeamID}
}

// Parse は付与リストを読み込み検証する。未知のキーはエラーとする。
func Parse(r io.Reader) ([]Grant, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var f File
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("grant list is empty")
		}
		return nil, fmt.Errorf("failed to parse grant list: %w", err)
	}
	if len(f.Grants) == 0 {
		return nil, errors.New("grant list is empty")
	}

	seen := make(map[string]bool, len(f.Grants))
	for i := range f.Grants {
		g := &f.Grants[i]
		g.UID = strings.TrimSpace(g.UID)
		if g.UID == "" {
			return nil, fmt.Errorf("grants[%d]: uid is required", i)
		}
		if seen[g.UID] {
			return nil, fmt.Errorf("grants[%d]: duplicate uid %s", i, g.UID)
		}
		seen[g.UID] = true
	}
	return f.Grants, nil
}

// ClaimsApplier はクレームを検証して書き込む。claims.Issuerが満たす。
type ClaimsApplier interface {
	Apply(ctx context.Context, uid string, requested model.RoleClaims) (model.RoleClaims, error)
}

// ProfileRoleWriter はプロフィールのロールを書き込む。
type ProfileRoleWriter interface {
	UpdateRole(ctx context.Context, id string, role model.RoleClaims) error
}

// Failure は付与に失敗したユーザーと理由。
type Failure struct {
	UID string
	Err error
}

// Report は付与処理の結果。
type Report struct {
	Applied  []string
	Failures []Failure
}

// Runner は付与リストを順に適用する。
type Runner struct {
	applier  ClaimsApplier
	profiles ProfileRoleWriter
	logger   *slog.Logger
}

// NewRunner はRunnerを生成する。profilesがnilの場合はプロフィールを更新しない。
func NewRunner(applier ClaimsApplier, profiles ProfileRoleWriter, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{applier: applier, profiles: profiles, logger: logger}
}

// Run は全件を適用する。1件の失敗で中断せず、失敗はReportに集める。
// dryRunの場合は書き込まずに内容のみ記録する。
func (r *Runner) Run(ctx context.Context, grants []Grant, dryRun bool) (Report, error) {
	var report Report
	for _, g := range grants {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		requested := g.Claims.RoleClaims()

		if dryRun {
			r.logger.Info("dry-run: クレームを付与します",
				slog.String("uid", g.UID),
				slog.Bool("is_admin", requested.IsAdmin),
				slog.Bool("is_tech_lead", requested.IsTechLead),
				slog.String("team_id", requested.TeamIDValue()),
			)
			report.Applied = append(report.Applied, g.UID)
			continue
		}

		// プロフィールを先に更新し、クレームの更新日時を後にする
		if g.SyncProfile && r.profiles != nil {
			if err := r.profiles.UpdateRole(ctx, g.UID, requested); err != nil {
				r.fail(&report, g.UID, fmt.Errorf("failed to update profile role: %w", err))
				continue
			}
		}

		applied, err := r.applier.Apply(ctx, g.UID, requested)
		if err != nil {
			r.fail(&report, g.UID, err)
			continue
		}
		r.logger.Info("クレームを付与しました",
			slog.String("uid", g.UID),
			slog.Bool("is_admin", applied.IsAdmin),
			slog.Bool("is_tech_lead", applied.IsTechLead),
			slog.String("team_id", applied.TeamIDValue()),
		)
		report.Applied = append(report.Applied, g.UID)
	}
	return report, nil
}

func (r *Runner) fail(report *Report, uid string, err error) {
	r.logger.Error("クレームの付与に失敗しました",
		slog.String("uid", uid),
		slog.String("error", err.Error()),
	)
	report.Failures = append(report.Failures, Failure{UID: uid, Err: err})
}
