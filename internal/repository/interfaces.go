// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"errors"

	"github.com/hitoshi/accessportal/internal/model"
)

// リポジトリ層のエラー。
var (
	// ErrNotFound は更新・削除対象のレコードが存在しないことを示す。
	ErrNotFound = errors.New("record not found")
	// ErrDuplicateOpenRequest は同一ユーザー・同一サービスの未完了申請が既に存在することを示す。
	ErrDuplicateOpenRequest = errors.New("open request already exists for user and service")
)

// ProfileRepository はプロフィール文書（usersコレクション）の永続化インターフェース。
type ProfileRepository interface {
	// FindByID は指定IDのプロフィールを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Profile, error)

	// FindByIDForUpdate はトランザクション内で行ロックを取得してプロフィールを取得する。
	FindByIDForUpdate(ctx context.Context, id string) (*model.Profile, error)

	// List は全プロフィールを名前順で返す。
	List(ctx context.Context) ([]*model.Profile, error)

	// ListByTeamID は指定チームに所属するプロフィールを返す。
	ListByTeamID(ctx context.Context, teamID string) ([]*model.Profile, error)

	// Create はプロフィールを作成する。CreatedAt/UpdatedAtはサーバー時刻で設定される。
	Create(ctx context.Context, profile *model.Profile) error

	// UpdateRole はロールフィールド（isAdmin, isTechLead, teamId）を上書きする。
	UpdateRole(ctx context.Context, id string, role model.RoleClaims) error

	// SetTechLead はisTechLeadフラグのみを変更する。
	SetTechLead(ctx context.Context, id string, isTechLead bool) error

	// SetTeam はteamIdのみを変更する。
	SetTeam(ctx context.Context, id, teamID string) error
}

// TeamRepository はチームの永続化インターフェース。
type TeamRepository interface {
	// FindByID は指定IDのチームを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Team, error)

	// FindByIDForUpdate はトランザクション内で行ロックを取得してチームを取得する。
	FindByIDForUpdate(ctx context.Context, id string) (*model.Team, error)

	// List は全チームを返す。リード重複判定の走査にも使用する。
	List(ctx context.Context) ([]*model.Team, error)

	// Create はチームを作成し、IDとタイムスタンプを設定する。
	Create(ctx context.Context, team *model.Team) error

	// Update はチームの名前、テックリード、申請可能サービスを更新する。
	Update(ctx context.Context, team *model.Team) error

	// Delete は指定IDのチームを削除する。
	Delete(ctx context.Context, id string) error
}

// ServiceRepository はサービスの永続化インターフェース。
type ServiceRepository interface {
	// FindByID は指定IDのサービスを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Service, error)

	// List は全サービスを名前順で返す。
	List(ctx context.Context) ([]*model.Service, error)

	// ListByIDs は指定ID集合に含まれるサービスを返す（in検索）。
	ListByIDs(ctx context.Context, ids []string) ([]*model.Service, error)

	// Create はサービスを作成する。
	Create(ctx context.Context, service *model.Service) error

	// Update はサービスの名前と説明を更新する。
	Update(ctx context.Context, service *model.Service) error

	// Delete は指定IDのサービスを削除する。
	Delete(ctx context.Context, id string) error
}

// RequestFilter はアクセス申請一覧の絞り込み条件。
// UserIDとOwnerTeamIDの両方が指定された場合はOR条件となる。
// どちらも空の場合は全件を対象とする。
type RequestFilter struct {
	UserID      string
	OwnerTeamID string
	Status      model.RequestStatus
}

// RequestWithOwner は申請と申請者の所属チームを結合した構造体。
type RequestWithOwner struct {
	model.AccessRequest
	OwnerTeamID *string
}

// RequestRepository はアクセス申請（requestsコレクション）の永続化インターフェース。
type RequestRepository interface {
	// FindByID は指定IDの申請を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*RequestWithOwner, error)

	// FindByIDForUpdate はトランザクション内で行ロックを取得して申請を取得する。
	FindByIDForUpdate(ctx context.Context, id string) (*RequestWithOwner, error)

	// List は条件に一致する申請をrequestedAt降順で返す。
	List(ctx context.Context, filter RequestFilter) ([]*RequestWithOwner, error)

	// Create は申請を作成する。ID、status=pending、requestedAt（サーバー時刻）が設定される。
	// 未完了申請の一意制約に違反した場合はErrDuplicateOpenRequestを返す。
	Create(ctx context.Context, request *model.AccessRequest) error

	// Resolve は申請の状態を更新し、resolvedAt（サーバー時刻）とresolvedByを記録する。
	Resolve(ctx context.Context, id string, status model.RequestStatus, resolvedBy string, notes *string) (*model.AccessRequest, error)

	// Delete は指定IDの申請を物理削除する。
	Delete(ctx context.Context, id string) error
}

// ContactRepository は連絡先の永続化インターフェース。
type ContactRepository interface {
	// FindByID は指定IDの連絡先を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Contact, error)

	// List は全連絡先をorder順で返す。
	List(ctx context.Context) ([]*model.Contact, error)

	// ListVisible は全体向けの連絡先と指定チーム向けの連絡先をorder順で返す。
	// teamIDが空の場合は全体向けのみを返す。
	ListVisible(ctx context.Context, teamID string) ([]*model.Contact, error)

	// Create は連絡先を作成する。
	Create(ctx context.Context, contact *model.Contact) error

	// Update は連絡先を更新する。
	Update(ctx context.Context, contact *model.Contact) error

	// Delete は指定IDの連絡先を削除する。
	Delete(ctx context.Context, id string) error
}

// IdentityRepository はIdP側のID（クレームを含む）の永続化インターフェース。
type IdentityRepository interface {
	// FindByID は指定IDのidentityを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Identity, error)

	// FindByProviderAndProviderUserID はproviderとprovider_user_idでidentityを検索する。
	// 見つからない場合はnilを返す。
	FindByProviderAndProviderUserID(ctx context.Context, provider, providerUserID string) (*model.Identity, error)

	// List は全identityを返す。
	List(ctx context.Context) ([]*model.Identity, error)

	// Create はidentityを作成する。クレームは既定値で初期化される。
	Create(ctx context.Context, identity *model.Identity) error

	// ReplaceClaims はクレーム全体を上書きする（マージしない）。
	ReplaceClaims(ctx context.Context, id string, claims model.RoleClaims) error
}

// Repositories は1つの接続またはトランザクションに束縛されたリポジトリの集合。
type Repositories struct {
	Profiles   ProfileRepository
	Teams      TeamRepository
	Services   ServiceRepository
	Requests   RequestRepository
	Contacts   ContactRepository
	Identities IdentityRepository
}

// Store は永続化層の入口。RunInTxは複数文書への書き込みを
// 全件コミットか全件ロールバックのいずれかで実行する。
type Store interface {
	// Repos はトランザクション外で使用するリポジトリを返す。
	Repos() *Repositories

	// RunInTx はfnを1つのトランザクション内で実行する。
	// fnがエラーを返した場合はロールバックし、そのエラーを返す。
	// 直列化失敗はストア側で再試行するため、fnは複数回呼ばれることがある。
	RunInTx(ctx context.Context, fn func(repos *Repositories) error) error

	// Ping はストアへの疎通を確認する。
	Ping(ctx context.Context) error
}
