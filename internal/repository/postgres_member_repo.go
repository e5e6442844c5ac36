package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/henworth/trent-six/internal/model"
)

// PostgresMemberRepo はPostgreSQLを使用したメンバーリポジトリ。
type PostgresMemberRepo struct {
	db *sql.DB
}

// NewPostgresMemberRepo はPostgresMemberRepoを生成する。
func NewPostgresMemberRepo(db *sql.DB) *PostgresMemberRepo {
	return &PostgresMemberRepo{db: db}
}

// FindByID は指定IDのメンバーを取得する。見つからない場合はnilを返す。
func (r *PostgresMemberRepo) FindByID(ctx context.Context, id string) (*model.Member, error) {
	member := &model.Member{}
	var emblemData []byte
	var emblemMime sql.NullString

	err := r.db.QueryRowContext(ctx,
		`SELECT id, display_name, emblem_data, emblem_mime, created_at, updated_at
		 FROM members WHERE id = $1`,
		id,
	).Scan(
		&member.ID, &member.DisplayName, &emblemData, &emblemMime,
		&member.CreatedAt, &member.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("メンバーの取得に失敗しました: %w", err)
	}

	member.EmblemData = emblemData
	member.EmblemMime = nullStringValue(emblemMime)

	if err := r.loadIdentities(ctx, member); err != nil {
		return nil, err
	}
	return member, nil
}

// FindByIdentity はIdentityKeyでメンバーを検索する。見つからない場合はnilを返す。
func (r *PostgresMemberRepo) FindByIdentity(ctx context.Context, key model.IdentityKey) (*model.Member, error) {
	var memberID string
	err := r.db.QueryRowContext(ctx,
		`SELECT member_id FROM member_identities WHERE namespace = $1 AND membership_id = $2`,
		string(key.Namespace), key.MembershipID,
	).Scan(&memberID)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("identityによるメンバーの検索に失敗しました: %w", err)
	}

	return r.FindByID(ctx, memberID)
}

// ListByClan はクランのアクティブメンバー一覧をidentities付きで取得する。
func (r *PostgresMemberRepo) ListByClan(ctx context.Context, clanID string) ([]*model.Member, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT m.id, m.display_name, m.emblem_mime, m.created_at, m.updated_at,
		        cm.join_date, cm.is_active, cm.last_active, cm.member_type
		 FROM members m
		 INNER JOIN clan_members cm ON m.id = cm.member_id
		 WHERE cm.clan_id = $1 AND cm.is_active
		 ORDER BY cm.join_date ASC`,
		clanID,
	)
	if err != nil {
		return nil, fmt.Errorf("クランメンバー一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var members []*model.Member
	byID := make(map[string]*model.Member)
	for rows.Next() {
		member := &model.Member{}
		var emblemMime sql.NullString
		var lastActive sql.NullTime

		if err := rows.Scan(
			&member.ID, &member.DisplayName, &emblemMime,
			&member.CreatedAt, &member.UpdatedAt,
			&member.JoinedAt, &member.IsActive, &lastActive, &member.MemberType,
		); err != nil {
			return nil, fmt.Errorf("クランメンバーの読み取りに失敗しました: %w", err)
		}

		member.EmblemMime = nullStringValue(emblemMime)
		if lastActive.Valid {
			member.LastActive = lastActive.Time
		}

		members = append(members, member)
		byID[member.ID] = member
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("クランメンバー一覧の走査に失敗しました: %w", err)
	}

	if len(members) == 0 {
		return members, nil
	}

	// identitiesを一括で読み込んで各メンバーに割り当てる
	ids := make([]string, 0, len(members))
	for _, m := range members {
		ids = append(ids, m.ID)
	}

	idRows, err := r.db.QueryContext(ctx,
		`SELECT member_id, namespace, membership_id, display_name
		 FROM member_identities WHERE member_id = ANY($1)
		 ORDER BY member_id, namespace`,
		pq.Array(ids),
	)
	if err != nil {
		return nil, fmt.Errorf("identitiesの取得に失敗しました: %w", err)
	}
	defer idRows.Close()

	for idRows.Next() {
		var memberID, namespace, displayName string
		var membershipID int64
		if err := idRows.Scan(&memberID, &namespace, &membershipID, &displayName); err != nil {
			return nil, fmt.Errorf("identityの読み取りに失敗しました: %w", err)
		}
		if m, ok := byID[memberID]; ok {
			m.Identities = append(m.Identities, model.Identity{
				Key:         model.IdentityKey{Namespace: model.Namespace(namespace), MembershipID: membershipID},
				DisplayName: displayName,
			})
		}
	}
	if err := idRows.Err(); err != nil {
		return nil, fmt.Errorf("identitiesの走査に失敗しました: %w", err)
	}

	return members, nil
}

// Create はメンバーとidentitiesを同一トランザクションで作成する。
func (r *PostgresMemberRepo) Create(ctx context.Context, member *model.Member) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("トランザクションの開始に失敗しました: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO members (id, display_name, created_at, updated_at)
		 VALUES ($1, $2, $3, $4)`,
		member.ID, member.DisplayName, member.CreatedAt, member.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("メンバーの作成に失敗しました: %w", err)
	}

	for _, identity := range member.Identities {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO member_identities (member_id, namespace, membership_id, display_name)
			 VALUES ($1, $2, $3, $4)`,
			member.ID, string(identity.Key.Namespace), identity.Key.MembershipID, identity.DisplayName,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return &model.DuplicateIdentityError{Key: identity.Key}
			}
			return fmt.Errorf("identityの作成に失敗しました: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("トランザクションのコミットに失敗しました: %w", err)
	}
	return nil
}

// UpsertIdentity はメンバーのidentityを追加または更新する。
func (r *PostgresMemberRepo) UpsertIdentity(ctx context.Context, memberID string, identity model.Identity) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO member_identities (member_id, namespace, membership_id, display_name)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (member_id, namespace)
		 DO UPDATE SET membership_id = EXCLUDED.membership_id, display_name = EXCLUDED.display_name`,
		memberID, string(identity.Key.Namespace), identity.Key.MembershipID, identity.DisplayName,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return &model.DuplicateIdentityError{Key: identity.Key}
		}
		return fmt.Errorf("identityの更新に失敗しました: %w", err)
	}
	return nil
}

// UpdateDisplayName はメンバーの表示名を更新する。
func (r *PostgresMemberRepo) UpdateDisplayName(ctx context.Context, memberID, displayName string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE members SET display_name = $2, updated_at = now() WHERE id = $1`,
		memberID, displayName,
	)
	if err != nil {
		return fmt.Errorf("表示名の更新に失敗しました: %w", err)
	}
	return nil
}

// UpdateEmblem はメンバーのエンブレム画像データを更新する。
func (r *PostgresMemberRepo) UpdateEmblem(ctx context.Context, memberID string, emblemData []byte, emblemMime string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE members SET emblem_data = $2, emblem_mime = $3, updated_at = now() WHERE id = $1`,
		memberID, emblemData, nullString(emblemMime),
	)
	if err != nil {
		return fmt.Errorf("エンブレムの更新に失敗しました: %w", err)
	}
	return nil
}

// UpdateTokens はメンバーのBungie OAuthトークンを更新する。
func (r *PostgresMemberRepo) UpdateTokens(ctx context.Context, memberID string, token *model.BungieToken) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE members SET
		    bungie_access_token = $2,
		    bungie_refresh_token = $3,
		    bungie_access_expires_at = $4,
		    bungie_refresh_expires_at = $5,
		    updated_at = now()
		 WHERE id = $1`,
		memberID, token.AccessToken, token.RefreshToken,
		token.AccessExpires, token.RefreshExpires,
	)
	if err != nil {
		return fmt.Errorf("トークンの更新に失敗しました: %w", err)
	}
	return nil
}

// FindTokens はメンバーのBungie OAuthトークンを取得する。未設定の場合はnilを返す。
func (r *PostgresMemberRepo) FindTokens(ctx context.Context, memberID string) (*model.BungieToken, error) {
	var accessToken, refreshToken sql.NullString
	var accessExpires, refreshExpires sql.NullTime

	err := r.db.QueryRowContext(ctx,
		`SELECT bungie_access_token, bungie_refresh_token,
		        bungie_access_expires_at, bungie_refresh_expires_at
		 FROM members WHERE id = $1`,
		memberID,
	).Scan(&accessToken, &refreshToken, &accessExpires, &refreshExpires)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("トークンの取得に失敗しました: %w", err)
	}

	if !accessToken.Valid {
		return nil, nil
	}

	token := &model.BungieToken{
		AccessToken:  accessToken.String,
		RefreshToken: nullStringValue(refreshToken),
	}
	if accessExpires.Valid {
		token.AccessExpires = accessExpires.Time
	}
	if refreshExpires.Valid {
		token.RefreshExpires = refreshExpires.Time
	}
	return token, nil
}

// loadIdentities はメンバーのidentitiesを読み込む。
func (r *PostgresMemberRepo) loadIdentities(ctx context.Context, member *model.Member) error {
	rows, err := r.db.QueryContext(ctx,
		`SELECT namespace, membership_id, display_name
		 FROM member_identities WHERE member_id = $1
		 ORDER BY namespace`,
		member.ID,
	)
	if err != nil {
		return fmt.Errorf("identitiesの取得に失敗しました: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var namespace, displayName string
		var membershipID int64
		if err := rows.Scan(&namespace, &membershipID, &displayName); err != nil {
			return fmt.Errorf("identityの読み取りに失敗しました: %w", err)
		}
		member.Identities = append(member.Identities, model.Identity{
			Key:         model.IdentityKey{Namespace: model.Namespace(namespace), MembershipID: membershipID},
			DisplayName: displayName,
		})
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("identitiesの走査に失敗しました: %w", err)
	}
	return nil
}

// isUniqueViolation はPostgreSQLの一意制約違反かどうかを判定する。
func isUniqueViolation(err error) bool {
	if pqErr, ok := err.(*pq.Error); ok {
		return pqErr.Code == "23505"
	}
	return false
}

// nullString は空文字列をsql.NullStringに変換する。
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// nullStringValue はsql.NullStringから文字列を取得する。
func nullStringValue(ns sql.NullString) string {
	if ns.Valid {
		return ns.String
	}
	return ""
}

// compile-time interface check
var _ MemberRepository = (*PostgresMemberRepo)(nil)
