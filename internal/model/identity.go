// Package model はドメインモデルを定義する。
package model

// Role はポータル利用者の役割を表す。
type Role string

const (
	// RolePatient は患者アカウントを示す。
	RolePatient Role = "patient"
	// RoleDoctor は医師アカウントを示す。
	RoleDoctor Role = "doctor"
	// RoleAdmin は管理者アカウントを示す。
	RoleAdmin Role = "admin"
)

// IsValid は既知の役割かどうかを返す。
func (r Role) IsValid() bool {
	switch r {
	case RolePatient, RoleDoctor, RoleAdmin:
		return true
	}
	return false
}

// Identity はログイン中のユーザーを表す。
// SessionStoreのみが生成・破棄する。
// 不変条件: IdentityがnilでないときTokenは必ず非空であり、両者は常に同時に設定・消去される。
type Identity struct {
	ID    string
	Role  Role
	Name  string
	Email string
	Token string
}

// Correspondent はチャット相手の候補を表す。
// 会話履歴の有無にかかわらず、連絡可能なユーザーの一覧に現れる。
type Correspondent struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Role Role   `json:"role"`
}
