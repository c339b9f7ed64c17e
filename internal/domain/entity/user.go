package entity

import "time"

// TypeUser discrimine les variantes d'utilisateur (héritage monotable).
type TypeUser string

const (
	TypeCitoyen    TypeUser = "citoyen"
	TypeAutorite   TypeUser = "autorite"
	TypeModerateur TypeUser = "moderateur"
	TypeAdmin      TypeUser = "admin"
)

// User définit un utilisateur de la plateforme. La colonne type_user discrimine
// la variante ; le code aval doit brancher sur TypeUser, jamais sur un cast.
type User struct {
	ID           int64     `json:"id" db:"id"`
	Nom          string    `json:"nom" db:"nom"`
	Email        string    `json:"email" db:"email"`
	PasswordHash string    `json:"-" db:"password_hash"` // Le hash ne doit jamais sortir en JSON
	TypeUser     TypeUser  `json:"type_user" db:"type_user"`
	Telephone    string    `json:"telephone,omitempty" db:"telephone"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

// IsModerator indique si l'utilisateur peut modérer du contenu.
func (u *User) IsModerator() bool {
	return u.TypeUser == TypeModerateur || u.TypeUser == TypeAdmin
}

func (User) TableName() string {
	return "users"
}
