package entity

import "time"

// NotificationPriority ordonne l'urgence d'une notification.
type NotificationPriority string

const (
	NotifLow    NotificationPriority = "low"
	NotifNormal NotificationPriority = "normal"
	NotifHigh   NotificationPriority = "high"
	NotifUrgent NotificationPriority = "urgent"
)

// Catégories logiques de notification, mappées sur les préférences utilisateur.
const (
	NotifCatSignalement        = "signalement"
	NotifCatCommentSignalement = "comment_signalement"
	NotifCatPetition           = "petition"
	NotifCatCommentPetition    = "comment_petition"
	NotifCatPublication        = "publication"
	NotifCatCommentPublication = "comment_publication"
	NotifCatVoteSignature      = "vote_signature"
	NotifCatReponseAutorite    = "reponse_autorite"
	NotifCatMention            = "mention"
	NotifCatStatusChange       = "status_change"
	NotifCatModeration         = "moderation"
	NotifCatSystem             = "system"
	NotifCatTest               = "test"
)

// Canaux de livraison consignés dans l'historique.
const (
	DeliveryPush     = "push"
	DeliveryRealtime = "realtime"
	DeliveryFailed   = "failed"
)

// NotificationPreferences porte les réglages de notification d'un utilisateur.
// Créées à la première consultation avec les valeurs par défaut (tout activé
// sauf email).
type NotificationPreferences struct {
	ID     int64 `json:"id" db:"id"`
	UserID int64 `json:"user_id" db:"user_id"`

	PushEnabled     bool `json:"push_enabled" db:"push_enabled"`
	RealtimeEnabled bool `json:"realtime_enabled" db:"realtime_enabled"`
	EmailEnabled    bool `json:"email_enabled" db:"email_enabled"`

	NewSignalements      bool `json:"new_signalements" db:"new_signalements"`
	CommentsSignalements bool `json:"comments_signalements" db:"comments_signalements"`
	NewPetitions         bool `json:"new_petitions" db:"new_petitions"`
	CommentsPetitions    bool `json:"comments_petitions" db:"comments_petitions"`
	NewPublications      bool `json:"new_publications" db:"new_publications"`
	CommentsPublications bool `json:"comments_publications" db:"comments_publications"`
	VotesSignatures      bool `json:"votes_signatures" db:"votes_signatures"`
	AuthorityResponses   bool `json:"authority_responses" db:"authority_responses"`
	Mentions             bool `json:"mentions" db:"mentions"`
	StatusChanges        bool `json:"status_changes" db:"status_changes"`

	UrgentOnly bool `json:"urgent_only" db:"urgent_only"`

	QuietHoursEnabled bool   `json:"quiet_hours_enabled" db:"quiet_hours_enabled"`
	QuietHoursStart   string `json:"quiet_hours_start" db:"quiet_hours_start"` // "HH:MM"
	QuietHoursEnd     string `json:"quiet_hours_end" db:"quiet_hours_end"`

	LocationEnabled bool    `json:"location_enabled" db:"location_enabled"`
	LocationRadius  float64 `json:"location_radius" db:"location_radius"` // km

	// Point de référence de l'abonnement de zone ; nil tant que
	// l'utilisateur n'a pas activé les alertes de proximité.
	LocationLatitude  *float64 `json:"location_latitude,omitempty" db:"location_latitude"`
	LocationLongitude *float64 `json:"location_longitude,omitempty" db:"location_longitude"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// DefaultPreferences retourne les réglages par défaut d'un utilisateur.
func DefaultPreferences(userID int64) *NotificationPreferences {
	return &NotificationPreferences{
		UserID:               userID,
		PushEnabled:          true,
		RealtimeEnabled:      true,
		EmailEnabled:         false,
		NewSignalements:      true,
		CommentsSignalements: true,
		NewPetitions:         true,
		CommentsPetitions:    true,
		NewPublications:      true,
		CommentsPublications: true,
		VotesSignatures:      true,
		AuthorityResponses:   true,
		Mentions:             true,
		StatusChanges:        true,
		QuietHoursStart:      "22:00",
		QuietHoursEnd:        "08:00",
		LocationRadius:       5,
	}
}

func (NotificationPreferences) TableName() string {
	return "notification_preferences"
}

// NotificationHistory est une ligne d'historique, en append-only
// (seuls read et clicked_at sont mis à jour après coup).
type NotificationHistory struct {
	ID             int64                `json:"id" db:"id"`
	UserID         int64                `json:"user_id" db:"user_id"`
	Title          string               `json:"title" db:"title"`
	Message        string               `json:"message" db:"message"`
	EntityType     string               `json:"entity_type,omitempty" db:"entity_type"`
	EntityID       *int64               `json:"entity_id,omitempty" db:"entity_id"`
	Success        bool                 `json:"success" db:"success"`
	DeliveryMethod []string             `json:"delivery_method" db:"delivery_method"`
	Priority       NotificationPriority `json:"priority" db:"priority"`
	Category       string               `json:"category" db:"category"`
	Read           bool                 `json:"read" db:"read"`
	ClickedAt      *time.Time           `json:"clicked_at,omitempty" db:"clicked_at"`
	SenderID       *int64               `json:"sender_id,omitempty" db:"sender_id"`
	Metadata       map[string]any       `json:"metadata,omitempty" db:"metadata"`
	CreatedAt      time.Time            `json:"created_at" db:"created_at"`
}

func (NotificationHistory) TableName() string {
	return "notification_history"
}

// RealtimeNotification est la ligne insérée dans la table qui alimente le
// backplane temps réel (livraison via le change feed du fournisseur).
type RealtimeNotification struct {
	ID        int64          `json:"id" db:"id"`
	UserID    int64          `json:"user_id" db:"user_id"`
	Title     string         `json:"title" db:"title"`
	Message   string         `json:"message" db:"message"`
	Data      map[string]any `json:"data,omitempty" db:"data"`
	CreatedAt time.Time      `json:"created_at" db:"created_at"`
}

func (RealtimeNotification) TableName() string {
	return "realtime_notifications"
}

// DeviceType identifie la plateforme d'un jeton d'appareil.
type DeviceType string

const (
	DeviceAndroid DeviceType = "android"
	DeviceIOS     DeviceType = "ios"
	DeviceWeb     DeviceType = "web"
)

// DeviceToken enregistre un jeton push. Au plus un jeton actif par couple
// (user, device_id) : un nouvel enregistrement désactive le précédent.
type DeviceToken struct {
	ID         int64      `json:"id" db:"id"`
	UserID     int64      `json:"user_id" db:"user_id"`
	Token      string     `json:"-" db:"token"` // jeton opaque, jamais exposé en JSON
	DeviceType DeviceType `json:"device_type" db:"device_type"`
	DeviceID   string     `json:"device_id,omitempty" db:"device_id"`
	AppVersion string     `json:"app_version,omitempty" db:"app_version"`
	Active     bool       `json:"active" db:"active"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
	LastUsed   *time.Time `json:"last_used,omitempty" db:"last_used"`
}

func (DeviceToken) TableName() string {
	return "device_tokens"
}
